package services

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sidingops/rakeserial/internal/actor"
	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/notify"
	"github.com/sidingops/rakeserial/internal/testhelpers"
)

// feb2026 falls in fiscal year 2025-26, month 02.
var feb2026 = time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

var (
	operator = actor.Actor{Username: "ravi", Role: actor.RoleOperator}
	reviewer = actor.Actor{Username: "asha", Role: actor.RoleReviewer}
	admin    = actor.Actor{Username: "kiran", Role: actor.RoleAdmin}
)

type testServices struct {
	db       *gorm.DB
	seq      *Sequencer
	sessions *SessionService
	split    *SplitService
	recovery *RecoveryService
	drafts   *DraftService
	dispatch *DispatchService
	bags     *BagCountService
	workflow *WorkflowService
	events   *recordingPublisher
	sent     *recordingSender
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	log := zap.NewNop()

	ts := &testServices{db: db, events: &recordingPublisher{}, sent: &recordingSender{}}
	ts.seq = NewSequencer(db, log, 0).WithClock(testhelpers.FixedClock(feb2026))
	ts.sessions = NewSessionService(db, ts.seq, log, 0)
	ts.split = NewSplitService(db, ts.seq, log, 0).WithEvents(ts.events).WithNotifier(ts.sent)
	ts.recovery = NewRecoveryService(db, ts.split, log).WithNotifier(ts.sent)
	ts.drafts = NewDraftService(db, ts.recovery, log).WithNotifier(ts.sent)
	ts.dispatch = NewDispatchService(db, log)
	ts.bags = NewBagCountService(db, log)
	ts.workflow = NewWorkflowService(db, log).WithClock(testhelpers.FixedClock(feb2026))
	return ts
}

func (ts *testServices) headers(t *testing.T, rakeSerial string) []database.IndentHeader {
	t.Helper()
	var out []database.IndentHeader
	if err := ts.db.Where("serial = ?", rakeSerial).Order("id ASC").Find(&out).Error; err != nil {
		t.Fatalf("load headers: %v", err)
	}
	return out
}

func (ts *testServices) wagons(t *testing.T, rakeSerial string) []database.WagonRow {
	t.Helper()
	var out []database.WagonRow
	if err := ts.db.Where("serial = ?", rakeSerial).Order("tower_position ASC").Find(&out).Error; err != nil {
		t.Fatalf("load wagons: %v", err)
	}
	return out
}

func (ts *testServices) allWagons(t *testing.T) []database.WagonRow {
	t.Helper()
	var out []database.WagonRow
	if err := ts.db.Order("id ASC").Find(&out).Error; err != nil {
		t.Fatalf("load wagons: %v", err)
	}
	return out
}

func (ts *testServices) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	if err := ts.db.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ReassignmentEvent
}

func (p *recordingPublisher) Publish(e ReassignmentEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) all() []ReassignmentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ReassignmentEvent(nil), p.events...)
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (s *recordingSender) Send(m notify.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
}

func (s *recordingSender) events() []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.Event, 0, len(s.msgs))
	for _, m := range s.msgs {
		out = append(out, m.Event)
	}
	return out
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }
