package database

import (
	"time"

	"gorm.io/gorm"

	"github.com/sidingops/rakeserial/internal/serial"
)

// ActivityType classifies audit log entries.
type ActivityType string

const (
	ActivityCreated             ActivityType = "CREATED"
	ActivitySubmitted           ActivityType = "SUBMITTED"
	ActivityRevoked             ActivityType = "REVOKED"
	ActivityApproved            ActivityType = "APPROVED"
	ActivityRejected            ActivityType = "REJECTED"
	ActivityCancelled           ActivityType = "CANCELLED"
	ActivityReviewerSubmitted   ActivityType = "REVIEWER_SUBMITTED"
	ActivityReviewerEdited      ActivityType = "REVIEWER_EDITED"
	ActivityReviewerTrainEdited ActivityType = "REVIEWER_TRAIN_EDITED"
	ActivitySplitUnique         ActivityType = "SPLIT_UNIQUE"
	ActivitySplitShared         ActivityType = "SPLIT_SHARED"
	ActivityRecovered           ActivityType = "RECOVERED"
)

// ActivityEntry is one audit log record. Entries are never updated or deleted.
type ActivityEntry struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	Serial       string       `gorm:"size:32;not null;index" json:"serial"`
	IndentNumber *string      `gorm:"size:64" json:"indent_number"`
	Type         ActivityType `gorm:"size:40;not null" json:"type"`
	Username     string       `gorm:"size:128" json:"username"`
	Notes        string       `gorm:"type:text" json:"notes"`
	Details      JSONB        `gorm:"type:jsonb" json:"details,omitempty"`
	OccurredAt   time.Time    `gorm:"not null;index" json:"occurred_at"`
}

func (ActivityEntry) TableName() string {
	return "activity_entries"
}

// BeforeUpdate rejects updates to logged activity.
func (ActivityEntry) BeforeUpdate(*gorm.DB) error {
	return ErrActivityImmutable
}

// BeforeDelete rejects deletes of logged activity.
func (ActivityEntry) BeforeDelete(*gorm.DB) error {
	return ErrActivityImmutable
}

// AppendActivity inserts an entry, stamping OccurredAt when unset.
func AppendActivity(db *gorm.DB, entry *ActivityEntry) error {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
	return db.Create(entry).Error
}

// ListActivity returns the timeline of a serial in time order. Entries logged
// under an earlier serial for an indent that later moved to this serial are
// included, so the history survives a split.
func ListActivity(db *gorm.DB, s string) ([]ActivityEntry, error) {
	var steps []SplitStep
	if err := db.Where("target_serial = ? AND source_serial <> target_serial AND done = ?", s, true).
		Find(&steps).Error; err != nil {
		return nil, err
	}

	q := db.Session(&gorm.Session{NewDB: true}).Where("serial = ?", s)
	for _, st := range steps {
		q = q.Or("serial = ? AND indent_number = ?", st.SourceSerial, st.IndentNumber)
	}

	var entries []ActivityEntry
	err := db.Where(q).Order("occurred_at ASC, id ASC").Find(&entries).Error
	return entries, err
}

// WhereScope narrows a query on a table with an indent_number column.
// Legacy rows with an empty indent number count as parent rows.
func WhereScope(db *gorm.DB, scope serial.Scope) *gorm.DB {
	if scope.IsParent() {
		return db.Where("(indent_number IS NULL OR indent_number = '')")
	}
	return db.Where("indent_number = ?", scope.ID())
}

// WhereIndented narrows a query to rows that carry an indent number.
func WhereIndented(db *gorm.DB) *gorm.DB {
	return db.Where("indent_number IS NOT NULL AND indent_number <> ''")
}
