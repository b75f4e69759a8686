package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/sidingops/rakeserial/internal/services"
)

func dialEvents(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) services.ReassignmentEvent {
	t.Helper()
	var ev services.ReassignmentEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestEventsWSHandler_SplitPushesReassignments(t *testing.T) {
	ts := newTestServer(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	server := httptest.NewServer(ts.handler)
	defer server.Close()

	conn := dialEvents(t, server, "?serial="+originalPath)
	defer conn.Close()
	require.Eventually(t, func() bool { return ts.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	seedThreeIndents(t, ts.db)
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/rakes/"+originalPath+"/split/unique", nil)
	require.NoError(t, err)
	req.Header.Set("X-Reviewer-Username", "asha")
	req.Header.Set("X-User-Role", "REVIEWER")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	moved := map[string]string{}
	for i := 0; i < 2; i++ {
		ev := readEvent(t, conn)
		assert.Equal(t, services.EventTypeSerialReassigned, ev.Type)
		assert.Equal(t, original, ev.OriginalSerial)
		moved[ev.Indent] = ev.Serial
	}
	assert.Equal(t, map[string]string{"B": "2025-26/02/002", "C": "2025-26/02/003"}, moved)

	conn.Close()
	require.Eventually(t, func() bool { return ts.hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestEventsWSHandler_FiltersBySerial(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewEventsWSHandler(zap.NewNop())
	mux := http.NewServeMux()
	hub.SetupRoutes(mux)
	server := httptest.NewServer(mux)
	defer server.Close()
	defer hub.Close()

	all := dialEvents(t, server, "")
	defer all.Close()
	one := dialEvents(t, server, "?serial=2025-26_02_009")
	defer one.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	hub.Publish(services.ReassignmentEvent{Type: services.EventTypeSerialReassigned, OriginalSerial: original, Serial: "2025-26/02/002", Indent: "B"})
	hub.Publish(services.ReassignmentEvent{Type: services.EventTypeSerialReassigned, OriginalSerial: "2025-26/02/008", Serial: "2025-26/02/009", Indent: "Q"})

	assert.Equal(t, "B", readEvent(t, all).Indent)
	assert.Equal(t, "Q", readEvent(t, all).Indent)
	assert.Equal(t, "Q", readEvent(t, one).Indent, "filtered client only sees its own serial")
}

func TestEventsWSHandler_CloseDisconnectsClients(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewEventsWSHandler(zap.NewNop())
	mux := http.NewServeMux()
	hub.SetupRoutes(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dialEvents(t, server, "")
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	late := dialEvents(t, server, "")
	defer late.Close()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.Error(t, err, "closed hub refuses new clients")
	assert.Zero(t, hub.ClientCount())
}

func TestEventsWSHandler_PublishWithoutClients(t *testing.T) {
	hub := NewEventsWSHandler(zap.NewNop())
	assert.NotPanics(t, func() {
		hub.Publish(services.ReassignmentEvent{Type: services.EventTypeSplitShared, Serial: original})
	})
}
