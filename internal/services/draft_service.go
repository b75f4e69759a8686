package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sidingops/rakeserial/internal/actor"
	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/notify"
	"github.com/sidingops/rakeserial/internal/serial"
)

// DraftHeader is the header part of a draft save.
type DraftHeader struct {
	IndentNumber string `json:"indent_number" validate:"max=64"`
	CustomerID   *uint  `json:"customer_id"`
	Commodity    string `json:"commodity" validate:"max=128"`
	Destination  string `json:"destination" validate:"max=128"`
	SingleIndent bool   `json:"single_indent"`
	HLOnly       bool   `json:"hl_only"`
	Siding       string `json:"siding" validate:"max=128"`
}

// DraftWagon carries the operator-entered columns of one wagon. Bag counts
// and loading times are not accepted here.
type DraftWagon struct {
	TowerPosition   int    `json:"tower_position" validate:"required,min=1"`
	IndentNumber    string `json:"indent_number" validate:"max=64"`
	WagonNumber     string `json:"wagon_number" validate:"max=64"`
	WagonType       string `json:"wagon_type" validate:"max=64"`
	CCWeight        string `json:"cc_weight" validate:"max=32"`
	SickBox         bool   `json:"sick_box"`
	TargetBagCount  int    `json:"target_bag_count" validate:"min=0"`
	SealNumber      string `json:"seal_number" validate:"max=128"`
	StoppageMinutes int    `json:"stoppage_minutes" validate:"min=0"`
	Remarks         string `json:"remarks"`
	LoadingComplete *bool  `json:"loading_complete"`
	Commodity       string `json:"commodity" validate:"max=128"`
	Destination     string `json:"destination" validate:"max=128"`
	CustomerID      *uint  `json:"customer_id"`
}

// DraftRequest is a full draft save of a serial.
type DraftRequest struct {
	Header DraftHeader  `json:"header"`
	Wagons []DraftWagon `json:"wagons" validate:"dive"`
}

// SaveResult reports the outcome of a draft save. When SplitChanged is set the
// payload was not applied and the caller must reload under the reassigned serials.
type SaveResult struct {
	Serial          string            `json:"serial"`
	Saved           bool              `json:"saved"`
	SplitChanged    bool              `json:"split_changed"`
	Reassigned      map[string]string `json:"reassigned,omitempty"`
	WagonsUpdated   int               `json:"wagons_updated"`
	WagonsInserted  int               `json:"wagons_inserted"`
	ReviewerChanges int               `json:"reviewer_changes,omitempty"`
}

// wagonWrite pairs the stored row before a save with the row written.
type wagonWrite struct {
	before *database.WagonRow
	after  database.WagonRow
}

// DraftService applies draft saves. It decides the header shape for the save
// mode and upserts wagon rows in place.
type DraftService struct {
	db       *gorm.DB
	recovery *RecoveryService
	logger   *zap.Logger
	notifier NotificationSender
}

// NewDraftService creates a new draft service
func NewDraftService(db *gorm.DB, recovery *RecoveryService, logger *zap.Logger) *DraftService {
	return &DraftService{
		db:       db,
		recovery: recovery,
		logger:   logger.Named("draft"),
		notifier: nopSender{},
	}
}

// WithNotifier sets where customer-mapping notifications are queued.
func (s *DraftService) WithNotifier(n NotificationSender) *DraftService {
	s.notifier = n
	return s
}

// SaveDraft saves the header and wagons of a serial.
//
// Single-indent saves replace every header with one. Saves scoped to an indent
// update only that indent's header. Other saves replace every header with one
// parent header. Wagon rows are matched by tower position and indent and only
// their operator columns change.
func (s *DraftService) SaveDraft(ctx context.Context, rawSerial string, scope serial.Scope, req DraftRequest, who actor.Actor) (*SaveResult, error) {
	rakeSerial, err := parseSerial(rawSerial)
	if err != nil {
		return nil, err
	}

	recovered, err := s.recovery.Resolve(ctx, rakeSerial)
	if err != nil {
		return nil, err
	}
	if recovered != nil && recovered.SplitChanged {
		s.logger.Info("save skipped, serial reassigned during recovery",
			zap.String("serial", rakeSerial),
			zap.Any("reassigned", recovered.Reassigned))
		return &SaveResult{
			Serial:       rakeSerial,
			SplitChanged: true,
			Reassigned:   recovered.Reassigned,
		}, nil
	}

	result := &SaveResult{Serial: rakeSerial}
	var mappedCustomer *uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockSession(tx, rakeSerial); err != nil {
			return err
		}

		// A client that has not reloaded since a unique split may still send
		// indents that now live under another serial.
		family, err := familyOf(tx, rakeSerial)
		if err != nil {
			return err
		}
		if movedAway(family, rakeSerial, scope, req) {
			result.SplitChanged = true
			result.Reassigned = family
			return nil
		}

		var headers []database.IndentHeader
		if err := tx.Where("serial = ?", rakeSerial).Order("id ASC").Find(&headers).Error; err != nil {
			return err
		}

		var previous *database.IndentHeader
		var saved database.IndentHeader
		switch {
		case req.Header.SingleIndent:
			previous = baseHeader(headers)
			saved, err = collapseSingle(tx, rakeSerial, previous, req.Header)
		case !scope.IsParent():
			previous = headerFor(headers, scope)
			if previous == nil {
				return fmt.Errorf("indent %s of %s: %w", scope.ID(), rakeSerial, ErrNotFound)
			}
			saved, err = saveChild(tx, *previous, req.Header)
		default:
			previous = baseHeader(headers)
			saved, err = collapseParent(tx, rakeSerial, previous, req)
		}
		if err != nil {
			return err
		}

		writes, err := upsertWagons(tx, rakeSerial, req.Wagons)
		if err != nil {
			return err
		}
		for _, w := range writes {
			if w.before == nil {
				result.WagonsInserted++
			} else {
				result.WagonsUpdated++
			}
		}

		if req.Header.CustomerID != nil && (previous == nil || previous.CustomerID == nil || *previous.CustomerID != *req.Header.CustomerID) {
			mappedCustomer = req.Header.CustomerID
		}

		if !who.IsReviewer() {
			return nil
		}
		changes := diffHeader(previous, saved)
		changes = append(changes, diffWagons(writes)...)
		if len(changes) == 0 {
			return nil
		}
		result.ReviewerChanges = len(changes)
		return database.AppendActivity(tx, &database.ActivityEntry{
			Serial:       rakeSerial,
			IndentNumber: scope.Ptr(),
			Type:         database.ActivityReviewerTrainEdited,
			Username:     who.Name(),
			Notes:        "Reviewer made changes: " + changes.String(),
			Details:      database.JSONB{"changes": changes.Details(), "change_count": len(changes)},
		})
	})
	if err != nil {
		return nil, err
	}
	if result.SplitChanged {
		s.logger.Info("save skipped, payload names indents split to other serials",
			zap.String("serial", rakeSerial),
			zap.Any("reassigned", result.Reassigned))
		return result, nil
	}
	result.Saved = true

	if mappedCustomer != nil {
		s.notifier.Send(notify.Message{
			Event:  notify.EventCustomerMapped,
			Serial: rakeSerial,
			Indent: scope.ID(),
			Text:   fmt.Sprintf("customer %d mapped", *mappedCustomer),
		})
	}

	s.logger.Info("draft saved",
		zap.String("serial", rakeSerial),
		zap.String("scope", scope.String()),
		zap.Bool("single_indent", req.Header.SingleIndent),
		zap.Int("wagons_updated", result.WagonsUpdated),
		zap.Int("wagons_inserted", result.WagonsInserted),
		zap.String("by", who.Name()))
	return result, nil
}

// baseHeader picks the header whose workflow fields a collapsing save keeps:
// the parent when present, else the first indent header.
func baseHeader(headers []database.IndentHeader) *database.IndentHeader {
	for i := range headers {
		if headers[i].Scope().IsParent() {
			return &headers[i]
		}
	}
	if len(headers) > 0 {
		return &headers[0]
	}
	return nil
}

func headerFor(headers []database.IndentHeader, scope serial.Scope) *database.IndentHeader {
	for i := range headers {
		if headers[i].Scope() == scope {
			return &headers[i]
		}
	}
	return nil
}

// keptStatus resets a status to DRAFT unless loading or approval is under way.
func keptStatus(prev *database.IndentHeader) database.HeaderStatus {
	if prev != nil && prev.Status.InFlight() {
		return prev.Status
	}
	return database.StatusDraft
}

// replaceHeaders deletes every header of the serial and inserts h, carrying
// workflow fields over from prev.
func replaceHeaders(tx *gorm.DB, rakeSerial string, prev *database.IndentHeader, h database.IndentHeader) (database.IndentHeader, error) {
	h.Serial = rakeSerial
	h.Status = keptStatus(prev)
	if prev != nil {
		h.AssignedReviewer = prev.AssignedReviewer
		h.HasSequentialSerials = prev.HasSequentialSerials
		h.CreatedAt = prev.CreatedAt
		if h.Siding == "" {
			h.Siding = prev.Siding
		}
	}

	if err := tx.Where("serial = ?", rakeSerial).Delete(&database.IndentHeader{}).Error; err != nil {
		return h, fmt.Errorf("clear headers: %w", err)
	}
	if err := tx.Create(&h).Error; err != nil {
		return h, fmt.Errorf("create header: %w", err)
	}
	return h, nil
}

func collapseSingle(tx *gorm.DB, rakeSerial string, prev *database.IndentHeader, in DraftHeader) (database.IndentHeader, error) {
	return replaceHeaders(tx, rakeSerial, prev, database.IndentHeader{
		IndentNumber:            serial.Indent(in.IndentNumber).Ptr(),
		CustomerID:              in.CustomerID,
		Commodity:               in.Commodity,
		Destination:             in.Destination,
		SingleIndent:            true,
		HLOnly:                  in.HLOnly,
		MultipleIndentConfirmed: false,
		Siding:                  in.Siding,
	})
}

func collapseParent(tx *gorm.DB, rakeSerial string, prev *database.IndentHeader, req DraftRequest) (database.IndentHeader, error) {
	commodity, destination := req.Header.Commodity, req.Header.Destination
	if c := firstWagonValue(req.Wagons, func(w DraftWagon) string { return w.Commodity }); c != "" {
		commodity = c
	}
	if d := firstWagonValue(req.Wagons, func(w DraftWagon) string { return w.Destination }); d != "" {
		destination = d
	}
	multiple := firstWagonValue(req.Wagons, func(w DraftWagon) string { return strings.TrimSpace(w.IndentNumber) }) != ""

	return replaceHeaders(tx, rakeSerial, prev, database.IndentHeader{
		CustomerID:              req.Header.CustomerID,
		Commodity:               commodity,
		Destination:             destination,
		SingleIndent:            false,
		HLOnly:                  req.Header.HLOnly,
		MultipleIndentConfirmed: multiple,
		Siding:                  req.Header.Siding,
	})
}

func saveChild(tx *gorm.DB, existing database.IndentHeader, in DraftHeader) (database.IndentHeader, error) {
	updates := map[string]interface{}{
		"customer_id":               in.CustomerID,
		"commodity":                 in.Commodity,
		"destination":               in.Destination,
		"hl_only":                   in.HLOnly,
		"status":                    keptStatus(&existing),
		"multiple_indent_confirmed": true,
	}
	if in.Siding != "" {
		updates["siding"] = in.Siding
	}
	if err := tx.Model(&database.IndentHeader{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return existing, fmt.Errorf("update indent header: %w", err)
	}

	saved := existing
	saved.CustomerID = in.CustomerID
	saved.Commodity = in.Commodity
	saved.Destination = in.Destination
	saved.HLOnly = in.HLOnly
	saved.Status = keptStatus(&existing)
	saved.MultipleIndentConfirmed = true
	if in.Siding != "" {
		saved.Siding = in.Siding
	}
	return saved, nil
}

func firstWagonValue(wagons []DraftWagon, get func(DraftWagon) string) string {
	for _, w := range wagons {
		if v := get(w); v != "" {
			return v
		}
	}
	return ""
}

// upsertWagons updates each wagon's operator columns in place, matching on
// (serial, tower position, indent). An indented wagon with no match takes over
// the parent-scoped row at its tower position. Unmatched wagons are inserted
// with zero counts.
func upsertWagons(tx *gorm.DB, rakeSerial string, wagons []DraftWagon) ([]wagonWrite, error) {
	writes := make([]wagonWrite, 0, len(wagons))
	for _, w := range wagons {
		scope := serial.Indent(w.IndentNumber)
		atTower := func() *gorm.DB {
			return tx.Where("serial = ? AND tower_position = ?", rakeSerial, w.TowerPosition)
		}

		var row database.WagonRow
		err := database.WhereScope(atTower(), scope).Order("id ASC").First(&row).Error
		adopted := false
		if errors.Is(err, gorm.ErrRecordNotFound) && !scope.IsParent() {
			err = database.WhereScope(atTower(), serial.Parent()).Order("id ASC").First(&row).Error
			adopted = err == nil
		}

		switch {
		case err == nil:
			before := row
			after := row
			applyWagon(&after, w)
			updates := operatorColumns(after)
			if adopted {
				after.IndentNumber = scope.Ptr()
				updates["indent_number"] = after.IndentNumber
			}
			if err := tx.Model(&database.WagonRow{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
				return nil, fmt.Errorf("update wagon %d: %w", w.TowerPosition, err)
			}
			writes = append(writes, wagonWrite{before: &before, after: after})

		case errors.Is(err, gorm.ErrRecordNotFound):
			row = database.WagonRow{
				Serial:        rakeSerial,
				TowerPosition: w.TowerPosition,
				IndentNumber:  scope.Ptr(),
			}
			applyWagon(&row, w)
			if err := tx.Create(&row).Error; err != nil {
				return nil, fmt.Errorf("insert wagon %d: %w", w.TowerPosition, err)
			}
			writes = append(writes, wagonWrite{after: row})

		default:
			return nil, err
		}
	}
	return writes, nil
}

// applyWagon copies operator columns and derives the loading flag from the
// stored bag count unless the operator set it.
func applyWagon(row *database.WagonRow, w DraftWagon) {
	row.WagonNumber = w.WagonNumber
	row.WagonType = w.WagonType
	row.CCWeight = w.CCWeight
	row.SickBox = w.SickBox
	row.TargetBagCount = w.TargetBagCount
	row.SealNumber = w.SealNumber
	row.StoppageMinutes = w.StoppageMinutes
	row.Remarks = w.Remarks
	row.Commodity = w.Commodity
	row.Destination = w.Destination
	row.CustomerID = w.CustomerID
	if w.LoadingComplete != nil {
		row.LoadingComplete = *w.LoadingComplete
	} else {
		row.LoadingComplete = row.LoadedBagCount > 0 && row.LoadedBagCount >= w.TargetBagCount
	}
}

func operatorColumns(row database.WagonRow) map[string]interface{} {
	return map[string]interface{}{
		"wagon_number":     row.WagonNumber,
		"wagon_type":       row.WagonType,
		"cc_weight":        row.CCWeight,
		"sick_box":         row.SickBox,
		"target_bag_count": row.TargetBagCount,
		"seal_number":      row.SealNumber,
		"stoppage_minutes": row.StoppageMinutes,
		"remarks":          row.Remarks,
		"loading_complete": row.LoadingComplete,
		"commodity":        row.Commodity,
		"destination":      row.Destination,
		"customer_id":      row.CustomerID,
	}
}

func diffHeader(prev *database.IndentHeader, saved database.IndentHeader) changeSet {
	var before database.IndentHeader
	if prev != nil {
		before = *prev
	}
	var c changeSet
	c.add("Header", "indent_number", before.IndentNumber, saved.IndentNumber)
	c.add("Header", "customer_id", before.CustomerID, saved.CustomerID)
	c.add("Header", "commodity", before.Commodity, saved.Commodity)
	c.add("Header", "destination", before.Destination, saved.Destination)
	c.add("Header", "single_indent", before.SingleIndent, saved.SingleIndent)
	c.add("Header", "hl_only", before.HLOnly, saved.HLOnly)
	c.add("Header", "siding", before.Siding, saved.Siding)
	return c
}

func diffWagons(writes []wagonWrite) changeSet {
	var c changeSet
	for _, w := range writes {
		section := fmt.Sprintf("Tower %d", w.after.TowerPosition)
		before := database.WagonRow{}
		if w.before != nil {
			before = *w.before
		}
		c.add(section, "indent_number", before.IndentNumber, w.after.IndentNumber)
		c.add(section, "wagon_number", before.WagonNumber, w.after.WagonNumber)
		c.add(section, "wagon_type", before.WagonType, w.after.WagonType)
		c.add(section, "cc_weight", before.CCWeight, w.after.CCWeight)
		c.add(section, "sick_box", before.SickBox, w.after.SickBox)
		c.add(section, "target_bag_count", before.TargetBagCount, w.after.TargetBagCount)
		c.add(section, "seal_number", before.SealNumber, w.after.SealNumber)
		c.add(section, "stoppage_minutes", before.StoppageMinutes, w.after.StoppageMinutes)
		c.add(section, "remarks", before.Remarks, w.after.Remarks)
		c.add(section, "loading_complete", before.LoadingComplete, w.after.LoadingComplete)
		c.add(section, "commodity", before.Commodity, w.after.Commodity)
		c.add(section, "destination", before.Destination, w.after.Destination)
		c.add(section, "customer_id", before.CustomerID, w.after.CustomerID)
	}
	return c
}

// movedAway reports whether the save addresses an indent that a unique split
// assigned to a serial other than rakeSerial.
func movedAway(family map[string]string, rakeSerial string, scope serial.Scope, req DraftRequest) bool {
	if len(family) == 0 {
		return false
	}
	elsewhere := func(indent string) bool {
		indent = strings.TrimSpace(indent)
		if indent == "" {
			return false
		}
		target, ok := family[indent]
		return ok && target != rakeSerial
	}
	if elsewhere(scope.ID()) || elsewhere(req.Header.IndentNumber) {
		return true
	}
	for _, w := range req.Wagons {
		if elsewhere(w.IndentNumber) {
			return true
		}
	}
	return false
}
