package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper resolves serials left between parent and per-indent form.
type Sweeper interface {
	Sweep(ctx context.Context, grace time.Duration) (int, error)
}

// RecoveryMonitor periodically completes interrupted splits and rolls back
// mixed headers that no split job owns.
type RecoveryMonitor struct {
	sweeper Sweeper
	grace   time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

// NewRecoveryMonitor creates a new recovery monitor. Split jobs younger than
// grace are left to the request that started them.
func NewRecoveryMonitor(sweeper Sweeper, grace time.Duration, logger *zap.Logger) *RecoveryMonitor {
	return &RecoveryMonitor{
		sweeper: sweeper,
		grace:   grace,
		timeout: time.Minute,
		logger:  logger.Named("recovery-monitor"),
	}
}

// CheckAndRecover runs one sweep and returns the number of serials resolved.
func (m *RecoveryMonitor) CheckAndRecover(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.sweeper.Sweep(ctx, m.grace)
}

// Start begins the periodic monitoring and returns when stop is closed.
func (m *RecoveryMonitor) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ticker.C:
			resolved, err := m.CheckAndRecover(ctx)
			if err != nil {
				m.logger.Error("recovery sweep failed", zap.Error(err))
			} else if resolved > 0 {
				m.logger.Info("recovered serials", zap.Int("count", resolved))
			}
		case <-stop:
			m.logger.Info("recovery monitor stopped")
			return
		}
	}
}
