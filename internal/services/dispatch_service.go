package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sidingops/rakeserial/internal/actor"
	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/serial"
)

// DispatchDraft is the editable part of a dispatch row. Client values for the
// rake loading window are accepted but ignored.
type DispatchDraft struct {
	Source              string     `json:"source" validate:"max=128"`
	Siding              string     `json:"siding" validate:"max=128"`
	IndentWagonCount    int        `json:"indent_wagon_count" validate:"min=0"`
	VesselName          string     `json:"vessel_name" validate:"max=128"`
	RakeType            string     `json:"rake_type" validate:"max=64"`
	RakePlacementAt     *time.Time `json:"rake_placement_at"`
	RakeClearanceAt     *time.Time `json:"rake_clearance_at"`
	RakeIdleTime        string     `json:"rake_idle_time" validate:"max=32"`
	LoadingStartRailway *time.Time `json:"loading_start_railway"`
	LoadingEndRailway   *time.Time `json:"loading_end_railway"`
	DoorClosingAt       *time.Time `json:"door_closing_at"`
	HaulOutAt           *time.Time `json:"haul_out_at"`
	RailwayOfficer      string     `json:"railway_officer" validate:"max=128"`
	SidingOfficer       string     `json:"siding_officer" validate:"max=128"`
	Remarks             string     `json:"remarks"`
	RRNumber            string     `json:"rr_number" validate:"max=64"`
	RakeLoadingStart    *time.Time `json:"rake_loading_start,omitempty"`
	RakeLoadingEnd      *time.Time `json:"rake_loading_end,omitempty"`
}

// DispatchService reads and saves dispatch drafts
type DispatchService struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewDispatchService creates a new dispatch service
func NewDispatchService(db *gorm.DB, logger *zap.Logger) *DispatchService {
	return &DispatchService{db: db, logger: logger.Named("dispatch")}
}

// Get returns the dispatch row of a serial and scope with the rake loading
// window recomputed. A serial without a stored row gets an empty one.
func (s *DispatchService) Get(ctx context.Context, rawSerial string, scope serial.Scope) (*database.DispatchRow, error) {
	rakeSerial, err := parseSerial(rawSerial)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if _, err := findSession(db, rakeSerial); err != nil {
		return nil, err
	}

	row, err := findDispatch(db, rakeSerial, scope)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = &database.DispatchRow{Serial: rakeSerial, IndentNumber: scope.Ptr()}
	}
	row.RakeLoadingStart, row.RakeLoadingEnd, err = rakeLoadingWindow(db, rakeSerial, scope)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// SaveDraft stores the dispatch facts and recomputes the rake loading window.
// Reviewer edits are logged as REVIEWER_EDITED when a field changed.
func (s *DispatchService) SaveDraft(ctx context.Context, rawSerial string, scope serial.Scope, draft DispatchDraft, who actor.Actor) (*database.DispatchRow, error) {
	rakeSerial, err := parseSerial(rawSerial)
	if err != nil {
		return nil, err
	}

	var saved database.DispatchRow
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockSession(tx, rakeSerial); err != nil {
			return err
		}

		existing, err := findDispatch(tx, rakeSerial, scope)
		if err != nil {
			return err
		}
		before := database.DispatchRow{}
		if existing != nil {
			before = *existing
			saved = *existing
		} else {
			saved = database.DispatchRow{Serial: rakeSerial, IndentNumber: scope.Ptr()}
		}

		applyDispatchDraft(&saved, draft)
		if saved.Status == "" {
			saved.Status = database.DispatchStatusDraft
		}
		saved.RakeLoadingStart, saved.RakeLoadingEnd, err = rakeLoadingWindow(tx, rakeSerial, scope)
		if err != nil {
			return err
		}
		if err := tx.Save(&saved).Error; err != nil {
			return fmt.Errorf("save dispatch: %w", err)
		}

		if !who.IsReviewer() {
			return nil
		}
		changes := diffDispatch(before, saved)
		if len(changes) == 0 {
			return nil
		}
		return database.AppendActivity(tx, &database.ActivityEntry{
			Serial:       rakeSerial,
			IndentNumber: scope.Ptr(),
			Type:         database.ActivityReviewerEdited,
			Username:     who.Name(),
			Notes:        "Reviewer made changes: " + changes.String(),
			Details:      database.JSONB{"changes": changes.Details(), "change_count": len(changes)},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("dispatch draft saved",
		zap.String("serial", rakeSerial),
		zap.String("scope", scope.String()),
		zap.String("by", who.Name()))
	return &saved, nil
}

func findDispatch(db *gorm.DB, rakeSerial string, scope serial.Scope) (*database.DispatchRow, error) {
	var row database.DispatchRow
	err := database.WhereScope(db.Where("serial = ?", rakeSerial), scope).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// rakeLoadingWindow derives the rake loading start (first wagon by tower
// position with a start time) and end (last wagon with an end time). The
// parent scope covers every wagon of the serial.
func rakeLoadingWindow(db *gorm.DB, rakeSerial string, scope serial.Scope) (*time.Time, *time.Time, error) {
	q := db.Where("serial = ?", rakeSerial)
	if !scope.IsParent() {
		q = database.WhereScope(q, scope)
	}
	var wagons []database.WagonRow
	if err := q.Order("tower_position ASC, id ASC").Find(&wagons).Error; err != nil {
		return nil, nil, err
	}

	var start, end *time.Time
	for i := range wagons {
		if wagons[i].LoadingStart != nil {
			start = wagons[i].LoadingStart
			break
		}
	}
	for i := len(wagons) - 1; i >= 0; i-- {
		if wagons[i].LoadingEnd != nil {
			end = wagons[i].LoadingEnd
			break
		}
	}
	return start, end, nil
}

func applyDispatchDraft(row *database.DispatchRow, d DispatchDraft) {
	row.Source = d.Source
	row.Siding = d.Siding
	row.IndentWagonCount = d.IndentWagonCount
	row.VesselName = d.VesselName
	row.RakeType = d.RakeType
	row.RakePlacementAt = d.RakePlacementAt
	row.RakeClearanceAt = d.RakeClearanceAt
	row.RakeIdleTime = d.RakeIdleTime
	row.LoadingStartRailway = d.LoadingStartRailway
	row.LoadingEndRailway = d.LoadingEndRailway
	row.DoorClosingAt = d.DoorClosingAt
	row.HaulOutAt = d.HaulOutAt
	row.RailwayOfficer = d.RailwayOfficer
	row.SidingOfficer = d.SidingOfficer
	row.Remarks = d.Remarks
	row.RRNumber = d.RRNumber
}

func diffDispatch(before, after database.DispatchRow) changeSet {
	var c changeSet
	c.add("", "source", before.Source, after.Source)
	c.add("", "siding", before.Siding, after.Siding)
	c.add("", "indent_wagon_count", before.IndentWagonCount, after.IndentWagonCount)
	c.add("", "vessel_name", before.VesselName, after.VesselName)
	c.add("", "rake_type", before.RakeType, after.RakeType)
	c.add("", "rake_placement_at", fmtTime(before.RakePlacementAt), fmtTime(after.RakePlacementAt))
	c.add("", "rake_clearance_at", fmtTime(before.RakeClearanceAt), fmtTime(after.RakeClearanceAt))
	c.add("", "rake_idle_time", before.RakeIdleTime, after.RakeIdleTime)
	c.add("", "loading_start_railway", fmtTime(before.LoadingStartRailway), fmtTime(after.LoadingStartRailway))
	c.add("", "loading_end_railway", fmtTime(before.LoadingEndRailway), fmtTime(after.LoadingEndRailway))
	c.add("", "door_closing_at", fmtTime(before.DoorClosingAt), fmtTime(after.DoorClosingAt))
	c.add("", "haul_out_at", fmtTime(before.HaulOutAt), fmtTime(after.HaulOutAt))
	c.add("", "railway_officer", before.RailwayOfficer, after.RailwayOfficer)
	c.add("", "siding_officer", before.SidingOfficer, after.SidingOfficer)
	c.add("", "remarks", strings.TrimSpace(before.Remarks), strings.TrimSpace(after.Remarks))
	c.add("", "rr_number", before.RRNumber, after.RRNumber)
	return c
}
