package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sidingops/rakeserial/internal/actor"
	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/notify"
	"github.com/sidingops/rakeserial/internal/serial"
)

// SplitResult reports what a split (or a resumed split) did.
type SplitResult struct {
	OriginalSerial string             `json:"original_serial"`
	Mode           database.SplitMode `json:"mode,omitempty"`
	JobID          uint               `json:"job_id,omitempty"`
	FirstStarter   string             `json:"first_starter,omitempty"`
	SplitChanged   bool               `json:"split_changed"`
	Reassigned     map[string]string  `json:"reassigned"`
}

// SplitStatus describes the split state of a serial.
type SplitStatus struct {
	Serial           string             `json:"serial"`
	HasParent        bool               `json:"has_parent"`
	Indents          []string           `json:"indents"`
	AlreadySplit     bool               `json:"already_split"`
	SharedSplit      bool               `json:"shared_split"`
	PartialMigration bool               `json:"partial_migration"`
	ActiveJob        *database.SplitJob `json:"active_job,omitempty"`
	Family           map[string]string  `json:"family,omitempty"`
}

// Reassignment is one indent that moved to a new serial.
type Reassignment struct {
	Indent string    `json:"indent_number"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	At     time.Time `json:"at"`
}

// SplitService plans and executes the decomposition of a serial by indent.
// Each indent migrates in its own transaction and is marked done; the parent
// header is retired only after every indent of the job is done.
type SplitService struct {
	db         *gorm.DB
	sequencer  *Sequencer
	logger     *zap.Logger
	events     EventPublisher
	notifier   NotificationSender
	tokenAttempts int
	now        func() time.Time
}

// NewSplitService creates a new split service
func NewSplitService(db *gorm.DB, sequencer *Sequencer, logger *zap.Logger, tokenAttempts int) *SplitService {
	if tokenAttempts <= 0 {
		tokenAttempts = DefaultTokenAttemptLimit
	}
	return &SplitService{
		db:         db,
		sequencer:  sequencer,
		logger:     logger.Named("split"),
		events:     nopPublisher{},
		notifier:   nopSender{},
		tokenAttempts: tokenAttempts,
		now:        time.Now,
	}
}

// WithEvents sets where reassignment events are broadcast.
func (s *SplitService) WithEvents(p EventPublisher) *SplitService {
	s.events = p
	return s
}

// WithNotifier sets where reassignment notifications are queued.
func (s *SplitService) WithNotifier(n NotificationSender) *SplitService {
	s.notifier = n
	return s
}

// SplitUnique gives every indent of the serial its own serial. The first
// indent to start loading keeps the original. indents, when given, are merged
// with the indent numbers found on wagon rows.
func (s *SplitService) SplitUnique(ctx context.Context, rawSerial string, indents []string, who actor.Actor) (*SplitResult, error) {
	original, err := parseSerial(rawSerial)
	if err != nil {
		return nil, err
	}

	var job database.SplitJob
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockSession(tx, original); err != nil {
			return err
		}
		if err := ensureNoActiveJob(tx, original); err != nil {
			return err
		}
		if err := ensureNotUniquelySplit(tx, original); err != nil {
			return err
		}

		loads, err := indentLoads(tx, original, indents)
		if err != nil {
			return err
		}
		plan, err := PlanSplit(original, database.SplitUnique, loads)
		if err != nil {
			return err
		}
		err = plan.AssignTargets(func(prev string) (string, error) {
			next, err := s.sequencer.MintNextAfterTx(tx, prev)
			if err != nil {
				return "", err
			}
			return next.String(), nil
		})
		if err != nil {
			return err
		}

		job, err = createJob(tx, plan, who)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("unique split planned",
		zap.String("serial", original),
		zap.Uint("job_id", job.ID),
		zap.String("first_starter", job.FirstStarter),
		zap.Int("indents", len(job.Steps)))
	return s.execute(ctx, job.ID)
}

// SplitShared keeps one serial for all indents: each indent gets its own
// header under the same serial and the parent header is retired. Without
// indent numbers the parent is kept and only marked as non-sequential.
func (s *SplitService) SplitShared(ctx context.Context, rawSerial string, who actor.Actor) (*SplitResult, error) {
	original, err := parseSerial(rawSerial)
	if err != nil {
		return nil, err
	}

	var job database.SplitJob
	unchanged := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockSession(tx, original); err != nil {
			return err
		}
		if err := ensureNoActiveJob(tx, original); err != nil {
			return err
		}

		loads, err := indentLoads(tx, original, nil)
		if err != nil {
			return err
		}
		plan, err := PlanSplit(original, database.SplitShared, loads)
		if err != nil {
			return err
		}
		if len(plan.Steps) == 0 {
			unchanged = true
			return database.WhereScope(tx.Model(&database.IndentHeader{}).Where("serial = ?", original), serial.Parent()).
				Update("has_sequential_serials", false).Error
		}

		job, err = createJob(tx, plan, who)
		return err
	})
	if err != nil {
		return nil, err
	}
	if unchanged {
		return &SplitResult{OriginalSerial: original, Mode: database.SplitShared, Reassigned: map[string]string{}}, nil
	}

	s.logger.Info("shared split planned",
		zap.String("serial", original),
		zap.Uint("job_id", job.ID),
		zap.Int("indents", len(job.Steps)))
	return s.execute(ctx, job.ID)
}

// Resume finishes a job that stopped part way.
func (s *SplitService) Resume(ctx context.Context, jobID uint) (*SplitResult, error) {
	s.logger.Warn("resuming split job", zap.Uint("job_id", jobID))
	return s.execute(ctx, jobID)
}

// execute migrates every pending step of a job and then retires the parent.
func (s *SplitService) execute(ctx context.Context, jobID uint) (*SplitResult, error) {
	job, err := loadJob(s.db.WithContext(ctx), jobID)
	if err != nil {
		return nil, err
	}

	for _, step := range job.Pending() {
		if err := s.migrateStep(ctx, step.ID); err != nil {
			s.logger.Error("indent migration failed",
				zap.Uint("job_id", job.ID),
				zap.String("indent", step.IndentNumber),
				zap.Error(err))
			return nil, fmt.Errorf("%w: indent %s of %s: %w", ErrPartialMigration, step.IndentNumber, job.OriginalSerial, err)
		}
	}

	return s.retire(ctx, job.ID)
}

// migrateStep moves one indent to its target serial in a single transaction
// and sets its completion marker.
func (s *SplitService) migrateStep(ctx context.Context, stepID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var step database.SplitStep
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&step, stepID).Error; err != nil {
			return err
		}
		if step.Done {
			return nil
		}
		var job database.SplitJob
		if err := tx.First(&job, step.JobID).Error; err != nil {
			return err
		}

		scope := serial.Indent(step.IndentNumber)
		parent, err := findHeader(tx, step.SourceSerial, serial.Parent())
		if err != nil {
			return err
		}

		if step.Moves() {
			err := database.WhereScope(tx.Model(&database.WagonRow{}).Where("serial = ?", step.SourceSerial), scope).
				UpdateColumn("serial", step.TargetSerial).Error
			if err != nil {
				return fmt.Errorf("move wagons: %w", err)
			}
		}
		if err := migrateDispatch(tx, step.SourceSerial, step.TargetSerial, scope); err != nil {
			return err
		}
		if err := migrateHeader(tx, job.Mode, step.SourceSerial, step.TargetSerial, scope, parent); err != nil {
			return err
		}
		if step.Moves() {
			if err := registerSession(tx, step.SourceSerial, step.TargetSerial, s.tokenAttempts); err != nil {
				return err
			}
		}

		now := s.now()
		return tx.Model(&step).Updates(map[string]interface{}{
			"done":         true,
			"completed_at": now,
		}).Error
	})
}

// retire removes the parent rows of a job's serial once every step is done.
func (s *SplitService) retire(ctx context.Context, jobID uint) (*SplitResult, error) {
	var job database.SplitJob
	alreadyDone := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
			First(&job, jobID).Error
		if err != nil {
			return err
		}
		if job.Status == database.SplitJobCompleted {
			alreadyDone = true
			return nil
		}
		if pending := job.Pending(); len(pending) > 0 {
			return fmt.Errorf("%w: %d indents of %s not migrated", ErrPartialMigration, len(pending), job.OriginalSerial)
		}

		original := tx.Where("serial = ?", job.OriginalSerial)
		if err := database.WhereScope(original, serial.Parent()).Delete(&database.IndentHeader{}).Error; err != nil {
			return fmt.Errorf("retire parent header: %w", err)
		}
		// every migrated indent holds its own dispatch row by now
		original = tx.Where("serial = ?", job.OriginalSerial)
		if err := database.WhereScope(original, serial.Parent()).Delete(&database.DispatchRow{}).Error; err != nil {
			return fmt.Errorf("retire parent dispatch: %w", err)
		}

		now := s.now()
		if err := tx.Model(&job).Updates(map[string]interface{}{
			"status":       database.SplitJobCompleted,
			"active_key":   nil,
			"completed_at": now,
		}).Error; err != nil {
			return err
		}

		kind := database.ActivitySplitUnique
		if job.Mode == database.SplitShared {
			kind = database.ActivitySplitShared
		}
		for _, st := range job.Steps {
			notes := fmt.Sprintf("Indent %s kept serial %s", st.IndentNumber, st.TargetSerial)
			if st.Moves() {
				notes = fmt.Sprintf("Indent %s moved from %s to %s", st.IndentNumber, st.SourceSerial, st.TargetSerial)
			}
			err := database.AppendActivity(tx, &database.ActivityEntry{
				Serial:       st.TargetSerial,
				IndentNumber: serial.Indent(st.IndentNumber).Ptr(),
				Type:         kind,
				Username:     job.RequestedBy,
				Notes:        notes,
				Details: database.JSONB{
					"job_id":          job.ID,
					"original_serial": st.SourceSerial,
					"first_starter":   job.FirstStarter,
				},
				OccurredAt: now,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := resultFromJob(job)
	if !alreadyDone {
		s.announce(job)
		s.logger.Info("split completed",
			zap.String("serial", job.OriginalSerial),
			zap.String("mode", string(job.Mode)),
			zap.Bool("split_changed", result.SplitChanged))
	}
	return result, nil
}

// announce broadcasts and notifies about each moved indent.
func (s *SplitService) announce(job database.SplitJob) {
	at := s.now()
	for _, st := range job.Steps {
		if job.Mode == database.SplitShared {
			s.events.Publish(ReassignmentEvent{
				Type:           EventTypeSplitShared,
				OriginalSerial: st.SourceSerial,
				Serial:         st.TargetSerial,
				Indent:         st.IndentNumber,
				At:             at,
			})
			continue
		}
		if !st.Moves() {
			continue
		}
		s.events.Publish(ReassignmentEvent{
			Type:           EventTypeSerialReassigned,
			OriginalSerial: st.SourceSerial,
			Serial:         st.TargetSerial,
			Indent:         st.IndentNumber,
			At:             at,
		})
		s.notifier.Send(notify.Message{
			Event:  notify.EventSerialReassigned,
			Serial: st.TargetSerial,
			Indent: st.IndentNumber,
			Text:   "moved from " + st.SourceSerial,
		})
	}
	if job.Mode == database.SplitShared {
		s.notifier.Send(notify.Message{
			Event:  notify.EventSplitShared,
			Serial: job.OriginalSerial,
			Text:   fmt.Sprintf("%d indents share this serial", len(job.Steps)),
		})
	}
}

// Status reports the split state of a serial.
func (s *SplitService) Status(ctx context.Context, rawSerial string) (*SplitStatus, error) {
	rakeSerial, err := parseSerial(rawSerial)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if _, err := findSession(db, rakeSerial); err != nil {
		return nil, err
	}

	status := &SplitStatus{Serial: rakeSerial, Indents: []string{}}

	var headers []database.IndentHeader
	if err := db.Where("serial = ?", rakeSerial).Find(&headers).Error; err != nil {
		return nil, err
	}
	for _, h := range headers {
		if h.Scope().IsParent() {
			status.HasParent = true
			continue
		}
		status.Indents = append(status.Indents, h.Scope().ID())
	}
	sort.Strings(status.Indents)

	if err := ensureNotUniquelySplit(db, rakeSerial); errors.Is(err, ErrAlreadySplit) {
		status.AlreadySplit = true
	} else if err != nil {
		return nil, err
	}

	var shared int64
	if err := db.Model(&database.SplitJob{}).
		Where("original_serial = ? AND mode = ? AND status = ?", rakeSerial, database.SplitShared, database.SplitJobCompleted).
		Count(&shared).Error; err != nil {
		return nil, err
	}
	status.SharedSplit = shared > 0

	active, err := activeJobFor(db, rakeSerial)
	if err != nil {
		return nil, err
	}
	status.ActiveJob = active
	status.PartialMigration = active != nil || (status.HasParent && len(status.Indents) > 0)

	family, err := familyOf(db, rakeSerial)
	if err != nil {
		return nil, err
	}
	status.Family = family
	return status, nil
}

// RecentReassignments lists indents that moved to a new serial within window.
func (s *SplitService) RecentReassignments(ctx context.Context, window time.Duration) ([]Reassignment, error) {
	since := s.now().Add(-window)
	var steps []database.SplitStep
	err := s.db.WithContext(ctx).
		Where("done = ? AND source_serial <> target_serial AND completed_at >= ?", true, since).
		Order("completed_at ASC, id ASC").
		Find(&steps).Error
	if err != nil {
		return nil, err
	}

	out := make([]Reassignment, 0, len(steps))
	for _, st := range steps {
		r := Reassignment{Indent: st.IndentNumber, From: st.SourceSerial, To: st.TargetSerial}
		if st.CompletedAt != nil {
			r.At = *st.CompletedAt
		}
		out = append(out, r)
	}
	return out, nil
}

// createJob persists a plan as an active job with one step per indent.
func createJob(tx *gorm.DB, plan SplitPlan, who actor.Actor) (database.SplitJob, error) {
	key := plan.OriginalSerial
	job := database.SplitJob{
		OriginalSerial: plan.OriginalSerial,
		Mode:           plan.Mode,
		Status:         database.SplitJobInProgress,
		ActiveKey:      &key,
		FirstStarter:   plan.FirstStarter,
		RequestedBy:    who.Name(),
	}
	for i, st := range plan.Steps {
		job.Steps = append(job.Steps, database.SplitStep{
			IndentNumber: st.Indent,
			SourceSerial: plan.OriginalSerial,
			TargetSerial: st.Target,
			Position:     i,
		})
	}
	if err := tx.Create(&job).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return job, fmt.Errorf("%w: %s", ErrSplitInProgress, plan.OriginalSerial)
		}
		return job, fmt.Errorf("create split job: %w", err)
	}
	return job, nil
}

func loadJob(db *gorm.DB, jobID uint) (database.SplitJob, error) {
	var job database.SplitJob
	err := db.Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&job, jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return job, fmt.Errorf("split job %d: %w", jobID, ErrNotFound)
	}
	return job, err
}

func resultFromJob(job database.SplitJob) *SplitResult {
	result := &SplitResult{
		OriginalSerial: job.OriginalSerial,
		Mode:           job.Mode,
		JobID:          job.ID,
		FirstStarter:   job.FirstStarter,
		Reassigned:     job.Reassigned(),
	}
	for _, st := range job.Steps {
		if st.Moves() {
			result.SplitChanged = true
		}
	}
	return result
}

// activeJobFor returns the unfinished job touching a serial, as original or as target.
func activeJobFor(db *gorm.DB, rakeSerial string) (*database.SplitJob, error) {
	var job database.SplitJob
	err := db.Where("status = ?", database.SplitJobInProgress).
		Where("(original_serial = ? OR id IN (?))", rakeSerial,
			db.Session(&gorm.Session{NewDB: true}).Model(&database.SplitStep{}).Select("job_id").Where("target_serial = ?", rakeSerial)).
		Order("id ASC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func ensureNoActiveJob(tx *gorm.DB, rakeSerial string) error {
	job, err := activeJobFor(tx, rakeSerial)
	if err != nil {
		return err
	}
	if job != nil {
		return fmt.Errorf("%w: job %d on %s", ErrSplitInProgress, job.ID, rakeSerial)
	}
	return nil
}

// ensureNotUniquelySplit fails when unique serials were already generated for
// the serial, or the serial is itself one of the generated ones.
func ensureNotUniquelySplit(tx *gorm.DB, rakeSerial string) error {
	var jobs int64
	err := tx.Model(&database.SplitJob{}).
		Where("original_serial = ? AND mode = ? AND status = ?", rakeSerial, database.SplitUnique, database.SplitJobCompleted).
		Count(&jobs).Error
	if err != nil {
		return err
	}
	if jobs > 0 {
		return fmt.Errorf("%w: %s", ErrAlreadySplit, rakeSerial)
	}

	var generated int64
	err = tx.Model(&database.SplitStep{}).
		Joins("JOIN split_jobs ON split_jobs.id = split_steps.job_id").
		Where("split_steps.target_serial = ? AND split_steps.source_serial <> split_steps.target_serial", rakeSerial).
		Where("split_jobs.mode = ? AND split_jobs.status = ?", database.SplitUnique, database.SplitJobCompleted).
		Count(&generated).Error
	if err != nil {
		return err
	}
	if generated > 0 {
		return fmt.Errorf("%w: %s was generated by a split", ErrAlreadySplit, rakeSerial)
	}

	// older deployments suffixed generated serials with -N
	var legacy int64
	if err := tx.Model(&database.LoadingSession{}).Where("serial LIKE ?", rakeSerial+"-%").Count(&legacy).Error; err != nil {
		return err
	}
	if legacy > 0 {
		return fmt.Errorf("%w: %s", ErrAlreadySplit, rakeSerial)
	}
	return nil
}

// indentLoads sums loaded bags per indent, read inside the caller's transaction.
func indentLoads(tx *gorm.DB, rakeSerial string, extra []string) ([]IndentLoad, error) {
	var rows []struct {
		IndentNumber string
		Total        int
	}
	err := database.WhereIndented(tx.Model(&database.WagonRow{}).
		Select("indent_number, COALESCE(SUM(loaded_bag_count), 0) AS total").
		Where("serial = ?", rakeSerial)).
		Group("indent_number").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sum indent loads: %w", err)
	}

	loads := make([]IndentLoad, 0, len(rows)+len(extra))
	for _, r := range rows {
		loads = append(loads, IndentLoad{Indent: r.IndentNumber, TotalLoaded: r.Total})
	}
	for _, id := range extra {
		loads = append(loads, IndentLoad{Indent: id})
	}
	return loads, nil
}

// findHeader returns the header of a serial in a scope, or nil.
func findHeader(tx *gorm.DB, rakeSerial string, scope serial.Scope) (*database.IndentHeader, error) {
	var h database.IndentHeader
	err := database.WhereScope(tx.Where("serial = ?", rakeSerial), scope).Order("id ASC").First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// migrateDispatch rewrites the indent's dispatch row to the target serial, or
// clones the parent's dispatch facts when the indent has none.
func migrateDispatch(tx *gorm.DB, from, to string, scope serial.Scope) error {
	var existing database.DispatchRow
	err := database.WhereScope(tx.Where("serial = ?", from), scope).First(&existing).Error
	if err == nil {
		if from == to {
			return nil
		}
		return tx.Model(&existing).UpdateColumn("serial", to).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	var parent database.DispatchRow
	err = database.WhereScope(tx.Where("serial = ?", from), serial.Parent()).First(&parent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	clone := parent.CloneFor(to, scope)
	start, end, err := rakeLoadingWindow(tx, to, scope)
	if err != nil {
		return err
	}
	clone.RakeLoadingStart, clone.RakeLoadingEnd = start, end
	if err := tx.Create(&clone).Error; err != nil {
		return fmt.Errorf("clone dispatch: %w", err)
	}
	return nil
}

// migrateHeader rewrites the indent's header to the target serial, or creates
// one from wagon values with the parent header as fallback.
func migrateHeader(tx *gorm.DB, mode database.SplitMode, from, to string, scope serial.Scope, parent *database.IndentHeader) error {
	sequential := mode == database.SplitUnique

	existing, err := findHeader(tx, from, scope)
	if err != nil {
		return err
	}
	if existing != nil {
		return tx.Model(existing).Updates(map[string]interface{}{
			"serial":                    to,
			"multiple_indent_confirmed": true,
			"has_sequential_serials":    sequential,
		}).Error
	}

	header := database.IndentHeader{
		Serial:                  to,
		IndentNumber:            scope.Ptr(),
		Status:                  database.StatusDraft,
		MultipleIndentConfirmed: true,
		HasSequentialSerials:    sequential,
	}
	if parent != nil {
		header.CustomerID = parent.CustomerID
		header.Commodity = parent.Commodity
		header.Destination = parent.Destination
		header.Status = parent.Status
		header.HLOnly = parent.HLOnly
		header.AssignedReviewer = parent.AssignedReviewer
		header.Siding = parent.Siding
	}

	var wagons []database.WagonRow
	if err := database.WhereScope(tx.Where("serial = ?", to), scope).Order("tower_position ASC").Find(&wagons).Error; err != nil {
		return err
	}
	for _, w := range wagons {
		if w.CustomerID != nil {
			header.CustomerID = w.CustomerID
			break
		}
	}
	for _, w := range wagons {
		if w.Commodity != "" {
			header.Commodity = w.Commodity
			break
		}
	}
	for _, w := range wagons {
		if w.Destination != "" {
			header.Destination = w.Destination
			break
		}
	}

	if err := tx.Create(&header).Error; err != nil {
		return fmt.Errorf("create indent header: %w", err)
	}
	return nil
}

// registerSession creates the loading session for a newly minted serial,
// copying capacity and siding from the source session.
func registerSession(tx *gorm.DB, from, to string, tokenAttempts int) error {
	var count int64
	if err := tx.Model(&database.LoadingSession{}).Where("serial = ?", to).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	src, err := findSession(tx, from)
	if err != nil {
		return err
	}
	token, err := mintToken(tx, tokenAttempts)
	if err != nil {
		return err
	}
	session := database.LoadingSession{
		Token:      token,
		Serial:     to,
		WagonCount: src.WagonCount,
		Siding:     src.Siding,
	}
	if err := tx.Create(&session).Error; err != nil {
		return fmt.Errorf("register session %s: %w", to, err)
	}
	return nil
}

// familyOf maps the indents of the most recent completed unique split that
// produced or kept this serial to their serials.
func familyOf(db *gorm.DB, rakeSerial string) (map[string]string, error) {
	var job database.SplitJob
	err := db.Where("mode = ? AND status = ?", database.SplitUnique, database.SplitJobCompleted).
		Where("(original_serial = ? OR id IN (?))", rakeSerial,
			db.Session(&gorm.Session{NewDB: true}).Model(&database.SplitStep{}).Select("job_id").Where("target_serial = ?", rakeSerial)).
		Order("id DESC").
		Preload("Steps").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job.Reassigned(), nil
}
