package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sidingops/rakeserial/internal/actor"
	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/serial"
)

// WorkflowService moves indent headers through review: submit, assign,
// approve, reject, cancel and revoke. Every step but assign logs one
// activity entry.
type WorkflowService struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewWorkflowService creates a new workflow service
func NewWorkflowService(db *gorm.DB, logger *zap.Logger) *WorkflowService {
	return &WorkflowService{db: db, logger: logger.Named("workflow"), now: time.Now}
}

// WithClock sets the clock used for submission timestamps.
func (s *WorkflowService) WithClock(now func() time.Time) *WorkflowService {
	s.now = now
	return s
}

// step is the outcome of a transition decided against the current header.
type step struct {
	status   database.HeaderStatus
	assignee string
	activity database.ActivityType
	notes    string
	dispatch string
}

// Submit hands a header over for review. Admin submissions are approved
// directly.
func (s *WorkflowService) Submit(ctx context.Context, rawSerial string, scope serial.Scope, who actor.Actor) (*database.IndentHeader, error) {
	return s.apply(ctx, "submit", rawSerial, scope, who, func(h database.IndentHeader) (step, error) {
		switch h.Status {
		case database.StatusDraft, database.StatusLoadingInProgress, database.StatusRejected, "":
		default:
			return step{}, fmt.Errorf("%w: cannot submit from %s", ErrInvalidTransition, h.Status)
		}
		if who.IsAdmin() {
			return step{
				status:   database.StatusApproved,
				assignee: h.AssignedReviewer,
				activity: database.ActivityApproved,
				notes:    "Entry has been approved by admin",
				dispatch: database.DispatchStatusSubmitted,
			}, nil
		}
		return step{
			status:   database.StatusPendingApproval,
			assignee: h.AssignedReviewer,
			activity: database.ActivitySubmitted,
			notes:    "Record submitted for review",
			dispatch: database.DispatchStatusSubmitted,
		}, nil
	})
}

// Assign claims a pending header for a reviewer and reopens it for loading edits.
func (s *WorkflowService) Assign(ctx context.Context, rawSerial string, scope serial.Scope, who actor.Actor) (*database.IndentHeader, error) {
	return s.apply(ctx, "assign", rawSerial, scope, who, func(h database.IndentHeader) (step, error) {
		if err := checkAssignee(h, who, true); err != nil {
			return step{}, err
		}
		if h.Status != database.StatusPendingApproval && h.Status != database.StatusLoadingInProgress {
			return step{}, fmt.Errorf("%w: cannot assign from %s", ErrInvalidTransition, h.Status)
		}
		return step{status: database.StatusLoadingInProgress, assignee: who.Name()}, nil
	})
}

// Approve marks a header approved. An unassigned header is assigned to the
// approving reviewer.
func (s *WorkflowService) Approve(ctx context.Context, rawSerial string, scope serial.Scope, who actor.Actor) (*database.IndentHeader, error) {
	return s.apply(ctx, "approve", rawSerial, scope, who, func(h database.IndentHeader) (step, error) {
		if err := checkAssignee(h, who, true); err != nil {
			return step{}, err
		}
		if h.Status != database.StatusPendingApproval && h.Status != database.StatusLoadingInProgress {
			return step{}, fmt.Errorf("%w: cannot approve from %s", ErrInvalidTransition, h.Status)
		}
		return step{
			status:   database.StatusApproved,
			assignee: who.Name(),
			activity: database.ActivityReviewerSubmitted,
			notes:    "Dispatch approved by reviewer",
		}, nil
	})
}

// Reject sends a header assigned to the caller back to the operator.
func (s *WorkflowService) Reject(ctx context.Context, rawSerial string, scope serial.Scope, remarks string, who actor.Actor) (*database.IndentHeader, error) {
	return s.apply(ctx, "reject", rawSerial, scope, who, func(h database.IndentHeader) (step, error) {
		if err := checkAssignee(h, who, false); err != nil {
			return step{}, err
		}
		if h.Status != database.StatusPendingApproval && h.Status != database.StatusLoadingInProgress {
			return step{}, fmt.Errorf("%w: cannot reject from %s", ErrInvalidTransition, h.Status)
		}
		notes := "Task rejected"
		if remarks != "" {
			notes += ": " + remarks
		}
		return step{
			status:   database.StatusRejected,
			activity: database.ActivityRejected,
			notes:    notes,
			dispatch: database.DispatchStatusDraft,
		}, nil
	})
}

// Cancel closes a header assigned to the caller for good.
func (s *WorkflowService) Cancel(ctx context.Context, rawSerial string, scope serial.Scope, remarks string, who actor.Actor) (*database.IndentHeader, error) {
	return s.apply(ctx, "cancel", rawSerial, scope, who, func(h database.IndentHeader) (step, error) {
		if err := checkAssignee(h, who, false); err != nil {
			return step{}, err
		}
		if h.Status == database.StatusApproved || h.Status == database.StatusCancelled {
			return step{}, fmt.Errorf("%w: cannot cancel from %s", ErrInvalidTransition, h.Status)
		}
		notes := "Indent cancelled by reviewer"
		if remarks != "" {
			notes = "Indent cancelled: " + remarks
		}
		return step{
			status:   database.StatusCancelled,
			assignee: h.AssignedReviewer,
			activity: database.ActivityCancelled,
			notes:    notes,
		}, nil
	})
}

// Revoke pulls a header back to LOADING_IN_PROGRESS. Admins revoke approved
// headers and drop the assignment. Anyone else may only revoke a pending
// submission no reviewer has claimed yet.
func (s *WorkflowService) Revoke(ctx context.Context, rawSerial string, scope serial.Scope, who actor.Actor) (*database.IndentHeader, error) {
	return s.apply(ctx, "revoke", rawSerial, scope, who, func(h database.IndentHeader) (step, error) {
		if who.IsAdmin() {
			if h.Status != database.StatusApproved && h.Status != database.StatusPendingApproval {
				return step{}, fmt.Errorf("%w: cannot revoke from %s", ErrInvalidTransition, h.Status)
			}
			return step{
				status:   database.StatusLoadingInProgress,
				activity: database.ActivityRevoked,
				notes:    fmt.Sprintf("Status revoked from %s to %s by admin", h.Status, database.StatusLoadingInProgress),
				dispatch: database.DispatchStatusDraft,
			}, nil
		}
		if h.Status != database.StatusPendingApproval {
			return step{}, fmt.Errorf("%w: only pending submissions can be revoked, status is %s", ErrInvalidTransition, h.Status)
		}
		if h.AssignedReviewer != "" {
			return step{}, fmt.Errorf("%w: already assigned to %s", ErrInvalidTransition, h.AssignedReviewer)
		}
		return step{
			status:   database.StatusLoadingInProgress,
			activity: database.ActivityRevoked,
			notes:    fmt.Sprintf("Status revoked from %s to %s", h.Status, database.StatusLoadingInProgress),
			dispatch: database.DispatchStatusDraft,
		}, nil
	})
}

// checkAssignee passes when the header is assigned to who, or is unassigned
// and open is set.
func checkAssignee(h database.IndentHeader, who actor.Actor, open bool) error {
	if h.AssignedReviewer == who.Name() || (open && h.AssignedReviewer == "") {
		return nil
	}
	if h.AssignedReviewer == "" {
		return fmt.Errorf("%w: task is not assigned to %s", ErrNotAssignee, who.Name())
	}
	return fmt.Errorf("%w: %s", ErrNotAssignee, h.AssignedReviewer)
}

func (s *WorkflowService) apply(ctx context.Context, action, rawSerial string, scope serial.Scope, who actor.Actor, decide func(database.IndentHeader) (step, error)) (*database.IndentHeader, error) {
	rakeSerial, err := parseSerial(rawSerial)
	if err != nil {
		return nil, err
	}

	var header database.IndentHeader
	var from database.HeaderStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockSession(tx, rakeSerial); err != nil {
			return err
		}
		err := database.WhereScope(tx.Where("serial = ?", rakeSerial), scope).First(&header).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%s header of %s: %w", scope, rakeSerial, ErrNotFound)
		}
		if err != nil {
			return err
		}

		next, err := decide(header)
		if err != nil {
			return err
		}
		from = header.Status
		if err := tx.Model(&database.IndentHeader{}).Where("id = ?", header.ID).Updates(map[string]interface{}{
			"status":            next.status,
			"assigned_reviewer": next.assignee,
		}).Error; err != nil {
			return fmt.Errorf("update header status: %w", err)
		}
		header.Status = next.status
		header.AssignedReviewer = next.assignee

		if next.dispatch != "" {
			if err := s.markDispatch(tx, rakeSerial, scope, next.dispatch, who); err != nil {
				return err
			}
		}
		if next.activity == "" {
			return nil
		}
		return database.AppendActivity(tx, &database.ActivityEntry{
			Serial:       rakeSerial,
			IndentNumber: scope.Ptr(),
			Type:         next.activity,
			Username:     who.Name(),
			Notes:        next.notes,
			Details:      database.JSONB{"from": string(from), "to": string(next.status)},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("workflow step applied",
		zap.String("action", action),
		zap.String("serial", rakeSerial),
		zap.String("scope", scope.String()),
		zap.String("from", string(from)),
		zap.String("to", string(header.Status)),
		zap.String("by", who.Name()))
	return &header, nil
}

// markDispatch records a submission on the dispatch row of the scope, creating
// the row when none was saved yet. Moving back to DRAFT clears the submitter.
func (s *WorkflowService) markDispatch(tx *gorm.DB, rakeSerial string, scope serial.Scope, status string, who actor.Actor) error {
	row, err := findDispatch(tx, rakeSerial, scope)
	if err != nil {
		return err
	}
	if row == nil {
		if status == database.DispatchStatusDraft {
			return nil
		}
		row = &database.DispatchRow{Serial: rakeSerial, IndentNumber: scope.Ptr()}
		row.RakeLoadingStart, row.RakeLoadingEnd, err = rakeLoadingWindow(tx, rakeSerial, scope)
		if err != nil {
			return err
		}
	}

	row.Status = status
	if status == database.DispatchStatusSubmitted {
		at := s.now()
		row.SubmittedBy = who.Name()
		row.SubmittedAt = &at
	} else {
		row.SubmittedBy = ""
		row.SubmittedAt = nil
	}
	if err := tx.Save(row).Error; err != nil {
		return fmt.Errorf("save dispatch: %w", err)
	}
	return nil
}
