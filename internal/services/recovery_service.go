package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sidingops/rakeserial/internal/actor"
	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/notify"
	"github.com/sidingops/rakeserial/internal/serial"
)

// PartialState describes an interrupted migration.
type PartialState struct {
	Serial string
	// Job is the unfinished split, if one was recorded.
	Job *database.SplitJob
	// Mixed is true when parent and indent headers coexist.
	Mixed bool
}

// RecoveryService detects serials caught between parent and per-indent form
// and brings them back to a consistent shape.
type RecoveryService struct {
	db       *gorm.DB
	split    *SplitService
	logger   *zap.Logger
	notifier NotificationSender
	now      func() time.Time
}

// NewRecoveryService creates a new recovery service
func NewRecoveryService(db *gorm.DB, split *SplitService, logger *zap.Logger) *RecoveryService {
	return &RecoveryService{
		db:       db,
		split:    split,
		logger:   logger.Named("recovery"),
		notifier: nopSender{},
		now:      time.Now,
	}
}

// WithNotifier sets where recovery notifications are queued.
func (r *RecoveryService) WithNotifier(n NotificationSender) *RecoveryService {
	r.notifier = n
	return r
}

// Detect returns the partial state of a serial, or nil when it is consistent.
func (r *RecoveryService) Detect(ctx context.Context, rakeSerial string) (*PartialState, error) {
	db := r.db.WithContext(ctx)

	job, err := activeJobFor(db, rakeSerial)
	if err != nil {
		return nil, err
	}

	mixed, err := hasMixedHeaders(db, rakeSerial)
	if err != nil {
		return nil, err
	}
	if job == nil && !mixed {
		return nil, nil
	}
	return &PartialState{Serial: rakeSerial, Job: job, Mixed: mixed}, nil
}

// Resolve completes an interrupted split when a plan was recorded; otherwise
// it rolls the serial back to a single parent header. It returns nil when the
// serial was already consistent.
func (r *RecoveryService) Resolve(ctx context.Context, rakeSerial string) (*SplitResult, error) {
	state, err := r.Detect(ctx, rakeSerial)
	if err != nil || state == nil {
		return nil, err
	}

	if state.Job != nil {
		r.logger.Warn("completing interrupted split",
			zap.String("serial", rakeSerial),
			zap.Uint("job_id", state.Job.ID))
		return r.split.Resume(ctx, state.Job.ID)
	}

	r.logger.Warn("rolling back mixed headers to parent", zap.String("serial", rakeSerial))
	var removed int64
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockSession(tx, rakeSerial); err != nil {
			return err
		}
		res := database.WhereIndented(tx.Where("serial = ?", rakeSerial)).Delete(&database.IndentHeader{})
		if res.Error != nil {
			return fmt.Errorf("remove indent headers: %w", res.Error)
		}
		removed = res.RowsAffected
		return database.AppendActivity(tx, &database.ActivityEntry{
			Serial:   rakeSerial,
			Type:     database.ActivityRecovered,
			Username: actor.System.Name(),
			Notes:    fmt.Sprintf("Removed %d indent headers left beside the parent header", removed),
		})
	})
	if err != nil {
		return nil, err
	}

	r.notifier.Send(notify.Message{
		Event:  notify.EventRecovered,
		Serial: rakeSerial,
		Text:   fmt.Sprintf("rolled back to parent header, %d indent headers removed", removed),
	})
	return &SplitResult{OriginalSerial: rakeSerial, Reassigned: map[string]string{}}, nil
}

// Sweep resolves every split job older than grace and every serial with mixed
// headers and no recorded job. It returns the number of serials resolved.
func (r *RecoveryService) Sweep(ctx context.Context, grace time.Duration) (int, error) {
	db := r.db.WithContext(ctx)
	cutoff := r.now().Add(-grace)

	var stale []database.SplitJob
	if err := db.Where("status = ? AND created_at < ?", database.SplitJobInProgress, cutoff).
		Order("id ASC").Find(&stale).Error; err != nil {
		return 0, err
	}

	resolved := 0
	for _, job := range stale {
		if _, err := r.split.Resume(ctx, job.ID); err != nil {
			r.logger.Error("resume failed",
				zap.Uint("job_id", job.ID),
				zap.String("serial", job.OriginalSerial),
				zap.Error(err))
			continue
		}
		resolved++
	}

	mixed, err := mixedSerials(db)
	if err != nil {
		return resolved, err
	}
	for _, s := range mixed {
		job, err := activeJobFor(db, s)
		if err != nil {
			return resolved, err
		}
		if job != nil {
			// still running and within grace
			continue
		}
		if _, err := r.Resolve(ctx, s); err != nil {
			r.logger.Error("rollback failed", zap.String("serial", s), zap.Error(err))
			continue
		}
		resolved++
	}
	return resolved, nil
}

func hasMixedHeaders(db *gorm.DB, rakeSerial string) (bool, error) {
	var parents, indents int64
	if err := database.WhereScope(db.Model(&database.IndentHeader{}).Where("serial = ?", rakeSerial), serial.Parent()).
		Count(&parents).Error; err != nil {
		return false, err
	}
	if parents == 0 {
		return false, nil
	}
	if err := database.WhereIndented(db.Model(&database.IndentHeader{}).Where("serial = ?", rakeSerial)).
		Count(&indents).Error; err != nil {
		return false, err
	}
	return indents > 0, nil
}

// mixedSerials lists serials that have a parent header and indent headers at once.
func mixedSerials(db *gorm.DB) ([]string, error) {
	var out []string
	err := db.Model(&database.IndentHeader{}).
		Select("serial").
		Group("serial").
		Having("SUM(CASE WHEN indent_number IS NULL OR indent_number = '' THEN 1 ELSE 0 END) > 0").
		Having("SUM(CASE WHEN indent_number IS NOT NULL AND indent_number <> '' THEN 1 ELSE 0 END) > 0").
		Pluck("serial", &out).Error
	return out, err
}
