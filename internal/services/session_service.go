package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sidingops/rakeserial/internal/actor"
	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/serial"
)

// DefaultTokenAttemptLimit bounds attempts to find an unused session token.
const DefaultTokenAttemptLimit = 10

// CreateSessionRequest is the input for a new loading session.
type CreateSessionRequest struct {
	WagonCount  int    `json:"wagon_count" validate:"required,min=1,max=200"`
	Siding      string `json:"siding" validate:"required,max=128"`
	Commodity   string `json:"commodity" validate:"max=128"`
	Destination string `json:"destination" validate:"max=128"`
	CustomerID  *uint  `json:"customer_id"`
}

// SessionView is a loading session with its headers and wagons.
type SessionView struct {
	Session database.LoadingSession `json:"session"`
	Headers []database.IndentHeader `json:"headers"`
	Wagons  []database.WagonRow     `json:"wagons"`
}

// SessionService creates and reads loading sessions
type SessionService struct {
	db         *gorm.DB
	sequencer  *Sequencer
	logger     *zap.Logger
	tokenAttempts int
}

// NewSessionService creates a new session service
func NewSessionService(db *gorm.DB, sequencer *Sequencer, logger *zap.Logger, tokenAttempts int) *SessionService {
	if tokenAttempts <= 0 {
		tokenAttempts = DefaultTokenAttemptLimit
	}
	return &SessionService{
		db:         db,
		sequencer:  sequencer,
		logger:     logger.Named("sessions"),
		tokenAttempts: tokenAttempts,
	}
}

// Create mints a serial and stores the session with a draft parent header
// and one wagon row per tower position.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest, who actor.Actor) (*SessionView, error) {
	var view SessionView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		minted, err := s.sequencer.MintTx(tx)
		if err != nil {
			return err
		}
		token, err := mintToken(tx, s.tokenAttempts)
		if err != nil {
			return err
		}

		view.Session = database.LoadingSession{
			Token:      token,
			Serial:     minted.String(),
			WagonCount: req.WagonCount,
			Siding:     req.Siding,
		}
		if err := tx.Create(&view.Session).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}

		header := database.IndentHeader{
			Serial:      view.Session.Serial,
			CustomerID:  req.CustomerID,
			Commodity:   req.Commodity,
			Destination: req.Destination,
			Status:      database.StatusDraft,
			Siding:      req.Siding,
		}
		if err := tx.Create(&header).Error; err != nil {
			return fmt.Errorf("create header: %w", err)
		}
		view.Headers = []database.IndentHeader{header}

		wagons := make([]database.WagonRow, 0, req.WagonCount)
		for i := 1; i <= req.WagonCount; i++ {
			wagons = append(wagons, database.WagonRow{
				Serial:        view.Session.Serial,
				TowerPosition: i,
				Commodity:     req.Commodity,
				Destination:   req.Destination,
				CustomerID:    req.CustomerID,
			})
		}
		if err := tx.Create(&wagons).Error; err != nil {
			return fmt.Errorf("create wagons: %w", err)
		}
		view.Wagons = wagons

		return database.AppendActivity(tx, &database.ActivityEntry{
			Serial:   view.Session.Serial,
			Type:     database.ActivityCreated,
			Username: who.Name(),
			Notes:    fmt.Sprintf("Loading session created with %d wagons", req.WagonCount),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("loading session created",
		zap.String("serial", view.Session.Serial),
		zap.Int("wagons", req.WagonCount),
		zap.String("by", who.Name()))
	return &view, nil
}

// Get returns the session for a serial with its headers and wagons.
func (s *SessionService) Get(ctx context.Context, rawSerial string) (*SessionView, error) {
	rakeSerial, err := parseSerial(rawSerial)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var view SessionView
	session, err := findSession(db, rakeSerial)
	if err != nil {
		return nil, err
	}
	view.Session = *session

	if err := db.Where("serial = ?", rakeSerial).Order("indent_number ASC").Find(&view.Headers).Error; err != nil {
		return nil, err
	}
	if err := db.Where("serial = ?", rakeSerial).Order("tower_position ASC, id ASC").Find(&view.Wagons).Error; err != nil {
		return nil, err
	}
	return &view, nil
}

// Activity returns the timeline of a serial, including entries for indents
// that were logged under the serial they were split from.
func (s *SessionService) Activity(ctx context.Context, rawSerial string) ([]database.ActivityEntry, error) {
	rakeSerial, err := parseSerial(rawSerial)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if _, err := findSession(db, rakeSerial); err != nil {
		return nil, err
	}
	return database.ListActivity(db, rakeSerial)
}

// findSession loads the session of a serial.
func findSession(db *gorm.DB, rakeSerial string) (*database.LoadingSession, error) {
	var session database.LoadingSession
	err := db.Where("serial = ?", rakeSerial).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("loading session %s: %w", rakeSerial, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// lockSession loads the session of a serial with a row lock held until tx ends.
func lockSession(tx *gorm.DB, rakeSerial string) (*database.LoadingSession, error) {
	return findSession(tx.Clauses(clause.Locking{Strength: "UPDATE"}), rakeSerial)
}

// mintToken returns an unused opaque session token.
func mintToken(tx *gorm.DB, attempts int) (string, error) {
	for i := 0; i < attempts; i++ {
		token := "TRAIN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		var count int64
		if err := tx.Model(&database.LoadingSession{}).Where("token = ?", token).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return token, nil
		}
	}
	return "", fmt.Errorf("no unused session token after %d attempts", attempts)
}

// parseSerial validates a serial supplied by a caller and returns its
// canonical form.
func parseSerial(raw string) (string, error) {
	s, err := serial.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidSerial, raw)
	}
	return s.String(), nil
}
