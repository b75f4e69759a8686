package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/serial"
)

// DefaultSequenceAttemptLimit bounds the collision search of MintNextAfter.
const DefaultSequenceAttemptLimit = 1000

// Sequencer mints rake serial numbers. Every claim locks the counter row of
// its fiscal year and month, so concurrent callers never receive the same serial.
type Sequencer struct {
	db         *gorm.DB
	logger     *zap.Logger
	attemptLimit int
	now        func() time.Time
}

// NewSequencer creates a new sequencer
func NewSequencer(db *gorm.DB, logger *zap.Logger, attemptLimit int) *Sequencer {
	if attemptLimit <= 0 {
		attemptLimit = DefaultSequenceAttemptLimit
	}
	return &Sequencer{
		db:         db,
		logger:     logger.Named("sequencer"),
		attemptLimit: attemptLimit,
		now:        time.Now,
	}
}

// WithClock replaces the time source used to pick the fiscal year and month.
func (s *Sequencer) WithClock(now func() time.Time) *Sequencer {
	s.now = now
	return s
}

// Mint returns the next free serial for the current fiscal year and month.
func (s *Sequencer) Mint(ctx context.Context) (serial.Serial, error) {
	var out serial.Serial
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = s.MintTx(tx)
		return err
	})
	return out, err
}

// MintNextAfter returns a free serial in the same fiscal year and month as prev
// with a strictly greater sequence number.
func (s *Sequencer) MintNextAfter(ctx context.Context, prev string) (serial.Serial, error) {
	var out serial.Serial
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = s.MintNextAfterTx(tx, prev)
		return err
	})
	return out, err
}

// MintTx is Mint inside the caller's transaction.
func (s *Sequencer) MintTx(tx *gorm.DB) (serial.Serial, error) {
	now := s.now()
	fy, month := serial.FiscalYearOf(now), int(now.Month())

	counter, err := s.lockCounter(tx, fy, month)
	if err != nil {
		return serial.Serial{}, err
	}

	highest, err := highestSequence(tx, serial.Prefix(fy, month))
	if err != nil {
		return serial.Serial{}, err
	}
	start := counter.LastSequence
	if highest > start {
		start = highest
	}

	candidate := serial.Serial{FiscalYear: fy, Month: month, Sequence: start + 1}
	claimed, err := s.claimFree(tx, counter, candidate)
	if err != nil {
		return serial.Serial{}, err
	}

	s.logger.Debug("minted serial", zap.String("serial", claimed.String()))
	return claimed, nil
}

// MintNextAfterTx is MintNextAfter inside the caller's transaction. A malformed
// prev falls back to Mint; so does an exhausted search.
func (s *Sequencer) MintNextAfterTx(tx *gorm.DB, prev string) (serial.Serial, error) {
	p, err := serial.Parse(prev)
	if err != nil {
		s.logger.Warn("previous serial malformed, minting fresh", zap.String("previous", prev))
		return s.MintTx(tx)
	}

	counter, err := s.lockCounter(tx, p.FiscalYear, p.Month)
	if err != nil {
		return serial.Serial{}, err
	}

	candidate := p.Next()
	if counter.LastSequence >= candidate.Sequence {
		candidate.Sequence = counter.LastSequence + 1
	}

	claimed, err := s.claimFree(tx, counter, candidate)
	if err == nil {
		return claimed, nil
	}
	if !errors.Is(err, ErrSequenceExhausted) {
		return serial.Serial{}, err
	}

	s.logger.Warn("sequence search exhausted, minting fresh",
		zap.String("previous", prev),
		zap.Int("attempt_limit", s.attemptLimit))
	fresh, ferr := s.MintTx(tx)
	if ferr != nil {
		return serial.Serial{}, fmt.Errorf("next after %s: %w", prev, ferr)
	}
	return fresh, nil
}

// claimFree walks forward from candidate until a serial absent from both the
// session and header tables is found, then records it on the counter.
func (s *Sequencer) claimFree(tx *gorm.DB, counter *database.SerialCounter, candidate serial.Serial) (serial.Serial, error) {
	for attempt := 0; attempt < s.attemptLimit; attempt++ {
		taken, err := serialTaken(tx, candidate.String())
		if err != nil {
			return serial.Serial{}, err
		}
		if !taken {
			if candidate.Sequence > counter.LastSequence {
				counter.LastSequence = candidate.Sequence
			}
			if err := tx.Model(counter).Update("last_sequence", counter.LastSequence).Error; err != nil {
				return serial.Serial{}, fmt.Errorf("advance counter: %w", err)
			}
			return candidate, nil
		}
		candidate = candidate.Next()
	}
	return serial.Serial{}, fmt.Errorf("%w: %s after %d attempts", ErrSequenceExhausted, candidate.Prefix(), s.attemptLimit)
}

// lockCounter returns the counter row for (fy, month) locked for update,
// seeding it from existing rows the first time the month is seen.
func (s *Sequencer) lockCounter(tx *gorm.DB, fy string, month int) (*database.SerialCounter, error) {
	var counter database.SerialCounter
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("fiscal_year = ? AND month = ?", fy, month).
		First(&counter).Error
	if err == nil {
		return &counter, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lock counter: %w", err)
	}

	seed, err := highestSequence(tx, serial.Prefix(fy, month))
	if err != nil {
		return nil, err
	}
	counter = database.SerialCounter{FiscalYear: fy, Month: month, LastSequence: seed}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&counter).Error; err != nil {
		return nil, fmt.Errorf("seed counter: %w", err)
	}

	// another transaction may have seeded first
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("fiscal_year = ? AND month = ?", fy, month).
		First(&counter).Error
	if err != nil {
		return nil, fmt.Errorf("lock counter: %w", err)
	}
	s.logger.Info("seeded serial counter",
		zap.String("fiscal_year", fy),
		zap.Int("month", month),
		zap.Int("last_sequence", counter.LastSequence))
	return &counter, nil
}

// highestSequence scans sessions and headers for the largest sequence under prefix.
func highestSequence(tx *gorm.DB, prefix string) (int, error) {
	var serials []string
	for _, model := range []interface{}{&database.LoadingSession{}, &database.IndentHeader{}} {
		var found []string
		if err := tx.Model(model).Where("serial LIKE ?", prefix+"%").Distinct().Pluck("serial", &found).Error; err != nil {
			return 0, fmt.Errorf("scan serials: %w", err)
		}
		serials = append(serials, found...)
	}

	highest := 0
	for _, raw := range serials {
		p, err := serial.Parse(raw)
		if err != nil {
			continue
		}
		if p.Sequence > highest {
			highest = p.Sequence
		}
	}
	return highest, nil
}

// serialTaken reports whether any session or header already uses s.
func serialTaken(tx *gorm.DB, s string) (bool, error) {
	var sessions, headers int64
	if err := tx.Model(&database.LoadingSession{}).Where("serial = ?", s).Count(&sessions).Error; err != nil {
		return false, err
	}
	if err := tx.Model(&database.IndentHeader{}).Where("serial = ?", s).Count(&headers).Error; err != nil {
		return false, err
	}
	return sessions+headers > 0, nil
}
