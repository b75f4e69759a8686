package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/services"
	"github.com/sidingops/rakeserial/internal/testhelpers"
)

type fakeSweeper struct {
	calls  atomic.Int32
	grace  atomic.Int64
	result int
	err    error
}

func (f *fakeSweeper) Sweep(ctx context.Context, grace time.Duration) (int, error) {
	f.calls.Add(1)
	f.grace.Store(int64(grace))
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("sweep without deadline")
	}
	return f.result, f.err
}

func TestRecoveryMonitor_CheckAndRecover(t *testing.T) {
	sweeper := &fakeSweeper{result: 3}
	m := NewRecoveryMonitor(sweeper, 90*time.Second, zap.NewNop())

	resolved, err := m.CheckAndRecover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, resolved)
	assert.Equal(t, int64(90*time.Second), sweeper.grace.Load())
}

func TestRecoveryMonitor_StartAndStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	sweeper := &fakeSweeper{err: errors.New("database unavailable")}
	m := NewRecoveryMonitor(sweeper, time.Minute, zap.NewNop())

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Start(5*time.Millisecond, stop)
	}()

	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, time.Millisecond,
		"sweeps continue after an error")

	close(stop)
	testhelpers.MustCompleteWithin(t, time.Second, wg.Wait)
}

func TestRecoveryMonitor_RollsBackMixedHeaders(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	log := zap.NewNop()
	seq := services.NewSequencer(db, log, 0)
	split := services.NewSplitService(db, seq, log, 0)
	recovery := services.NewRecoveryService(db, split, log)

	const mixed = "2025-26/02/001"
	testhelpers.NewRakeBuilder(mixed).WithIndentHeaders("A", "B").WithWagons("A", 1, 0).Seed(t, db)
	testhelpers.NewRakeBuilder("2025-26/02/002").WithWagons("", 1, 0).Seed(t, db)

	m := NewRecoveryMonitor(recovery, time.Minute, log)
	resolved, err := m.CheckAndRecover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	var headers []database.IndentHeader
	require.NoError(t, db.Where("serial = ?", mixed).Find(&headers).Error)
	require.Len(t, headers, 1)
	assert.True(t, headers[0].Scope().IsParent())

	resolved, err = m.CheckAndRecover(context.Background())
	require.NoError(t, err)
	assert.Zero(t, resolved, "second sweep finds nothing")
}
