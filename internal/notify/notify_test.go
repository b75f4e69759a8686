package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recorder) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestMulti_DeliversToAll(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := NewMulti(1, a, b)

	err := m.Notify(context.Background(), Message{Event: EventCustomerMapped, Serial: "2025-26/02/001"})
	require.NoError(t, err)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestMulti_ReturnsError(t *testing.T) {
	failing := &recorder{err: errors.New("slack down")}
	m := NewMulti(0, &recorder{}, failing)

	err := m.Notify(context.Background(), Message{Event: EventSerialReassigned})
	assert.EqualError(t, err, "slack down")
}

func TestCooldown_SuppressesRepeats(t *testing.T) {
	next := &recorder{}
	c := NewCooldown(next, NewMemoryCooldownStore(), time.Hour, zap.NewNop())
	msg := Message{Event: EventCustomerMapped, Serial: "2025-26/02/001", Indent: "A"}

	require.NoError(t, c.Notify(context.Background(), msg))
	require.NoError(t, c.Notify(context.Background(), msg))
	assert.Equal(t, 1, next.count())

	other := msg
	other.Indent = "B"
	require.NoError(t, c.Notify(context.Background(), other))
	assert.Equal(t, 2, next.count())
}

func TestCooldown_ZeroWindowPassesThrough(t *testing.T) {
	next := &recorder{}
	c := NewCooldown(next, NewMemoryCooldownStore(), 0, zap.NewNop())
	msg := Message{Event: EventCustomerMapped, Serial: "S"}

	require.NoError(t, c.Notify(context.Background(), msg))
	require.NoError(t, c.Notify(context.Background(), msg))
	assert.Equal(t, 2, next.count())
}

func TestMemoryCooldownStore_Expires(t *testing.T) {
	store := NewMemoryCooldownStore()
	now := time.Date(2026, 2, 3, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ok, _ := store.Acquire("k", time.Minute)
	assert.True(t, ok)
	ok, _ = store.Acquire("k", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = store.Acquire("k", time.Minute)
	assert.True(t, ok)
}

func TestBadgerCooldownStore(t *testing.T) {
	store, err := OpenBadgerCooldownStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ok, err := store.Acquire("customer_mapped|S|A", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Acquire("customer_mapped|S|A", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Acquire("customer_mapped|S|B", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDispatcher_DeliversAndDrains(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	next := &recorder{}
	d := NewDispatcher(next, zap.NewNop(), 4, time.Second)
	for i := 0; i < 3; i++ {
		d.Send(Message{Event: EventSerialReassigned, Serial: "S"})
	}
	d.Close()

	assert.Equal(t, 3, next.count())
}

func TestSlackNotifier_PostsToChannel(t *testing.T) {
	var got struct {
		channel string
		text    string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		got.channel = r.FormValue("channel")
		got.text = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "channel": "C0123456789", "ts": "1700000000.000100"})
	}))
	defer srv.Close()

	n := NewSlackNotifier("xoxb-test", "C0123456789", slack.OptionAPIURL(srv.URL+"/"))
	err := n.Notify(context.Background(), Message{
		Event:  EventSerialReassigned,
		Serial: "2025-26/02/002",
		Indent: "A",
		Text:   "moved from 2025-26/02/001",
	})
	require.NoError(t, err)
	assert.Equal(t, "C0123456789", got.channel)
	assert.Equal(t, "*serial_reassigned* `2025-26/02/002` (indent A): moved from 2025-26/02/001", got.text)
}

func TestFormatText(t *testing.T) {
	assert.Equal(t, "*customer_mapped* `S`", FormatText(Message{Event: EventCustomerMapped, Serial: "S"}))
}
