package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// CooldownStore remembers when a key was last notified.
type CooldownStore interface {
	// Acquire returns true and records the key when it was not notified within window.
	Acquire(key string, window time.Duration) (bool, error)
}

// Cooldown suppresses repeats of the same message within a window.
type Cooldown struct {
	next   Notifier
	store  CooldownStore
	window time.Duration
	logger *zap.Logger
}

// NewCooldown wraps next with a per-message cooldown.
func NewCooldown(next Notifier, store CooldownStore, window time.Duration, logger *zap.Logger) *Cooldown {
	return &Cooldown{next: next, store: store, window: window, logger: logger.Named("cooldown")}
}

func (c *Cooldown) Notify(ctx context.Context, msg Message) error {
	if c.window <= 0 {
		return c.next.Notify(ctx, msg)
	}
	ok, err := c.store.Acquire(msg.Key(), c.window)
	if err != nil {
		c.logger.Warn("cooldown store failed, sending anyway", zap.Error(err))
		return c.next.Notify(ctx, msg)
	}
	if !ok {
		c.logger.Debug("notification suppressed", zap.String("key", msg.Key()))
		return nil
	}
	return c.next.Notify(ctx, msg)
}

// MemoryCooldownStore keeps cooldowns in process memory.
type MemoryCooldownStore struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewMemoryCooldownStore creates an in-memory store.
func NewMemoryCooldownStore() *MemoryCooldownStore {
	return &MemoryCooldownStore{last: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryCooldownStore) Acquire(key string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if at, ok := s.last[key]; ok && now.Sub(at) < window {
		return false, nil
	}
	s.last[key] = now
	return true, nil
}

// BadgerCooldownStore keeps cooldowns in a badger database so they survive restarts.
// Keys expire through badger TTLs.
type BadgerCooldownStore struct {
	db *badger.DB
}

// OpenBadgerCooldownStore opens (or creates) the store at dir. An empty dir opens an in-memory store.
func OpenBadgerCooldownStore(dir string) (*BadgerCooldownStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerCooldownStore{db: db}, nil
}

func (s *BadgerCooldownStore) Acquire(key string, window time.Duration) (bool, error) {
	acquired := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		acquired = true
		stamp := []byte(time.Now().UTC().Format(time.RFC3339))
		return txn.SetEntry(badger.NewEntry([]byte(key), stamp).WithTTL(window))
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// Close releases the database.
func (s *BadgerCooldownStore) Close() error {
	return s.db.Close()
}
