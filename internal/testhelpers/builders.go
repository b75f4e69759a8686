package testhelpers

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/serial"
)

// ========================================
// Rake Builder
// ========================================

var seededTokens atomic.Int64

// WagonSpec describes one wagon row seeded by RakeBuilder.
type WagonSpec struct {
	Indent       string
	Loaded       int
	Target       int
	WagonNumber  string
	LoadingStart *time.Time
	LoadingEnd   *time.Time
}

// RakeBuilder seeds a loading session with its headers and wagons.
type RakeBuilder struct {
	serial        string
	siding        string
	commodity     string
	status        database.HeaderStatus
	parent        bool
	indentHeaders []string
	wagons        []WagonSpec
	dispatch      *database.DispatchRow
}

// NewRakeBuilder creates a builder for serial with a draft parent header.
func NewRakeBuilder(rakeSerial string) *RakeBuilder {
	return &RakeBuilder{
		serial:    rakeSerial,
		siding:    "Siding A",
		commodity: "Rice",
		status:    database.StatusDraft,
		parent:    true,
	}
}

// WithSiding sets the siding
func (b *RakeBuilder) WithSiding(siding string) *RakeBuilder {
	b.siding = siding
	return b
}

// WithCommodity sets the parent header commodity
func (b *RakeBuilder) WithCommodity(commodity string) *RakeBuilder {
	b.commodity = commodity
	return b
}

// WithStatus sets the status of every seeded header
func (b *RakeBuilder) WithStatus(status database.HeaderStatus) *RakeBuilder {
	b.status = status
	return b
}

// WithoutParent skips the parent header.
func (b *RakeBuilder) WithoutParent() *RakeBuilder {
	b.parent = false
	return b
}

// WithIndentHeaders adds one header per indent beside the parent.
func (b *RakeBuilder) WithIndentHeaders(indents ...string) *RakeBuilder {
	b.indentHeaders = append(b.indentHeaders, indents...)
	return b
}

// WithWagon appends a wagon at the next tower position.
func (b *RakeBuilder) WithWagon(w WagonSpec) *RakeBuilder {
	b.wagons = append(b.wagons, w)
	return b
}

// WithWagons appends n wagons of one indent, each with loaded bags.
func (b *RakeBuilder) WithWagons(indent string, n, loaded int) *RakeBuilder {
	for i := 0; i < n; i++ {
		b.wagons = append(b.wagons, WagonSpec{Indent: indent, Loaded: loaded, Target: 100})
	}
	return b
}

// WithParentDispatch adds a parent-scoped dispatch row.
func (b *RakeBuilder) WithParentDispatch(d database.DispatchRow) *RakeBuilder {
	b.dispatch = &d
	return b
}

// Seed writes the rake to db and returns its session.
func (b *RakeBuilder) Seed(t *testing.T, db *gorm.DB) database.LoadingSession {
	t.Helper()
	session := database.LoadingSession{
		Token:      fmt.Sprintf("TRAIN-T%07d", seededTokens.Add(1)),
		Serial:     b.serial,
		WagonCount: len(b.wagons),
		Siding:     b.siding,
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("seed session %s: %v", b.serial, err)
	}

	if b.parent {
		b.createHeader(t, db, serial.Parent())
	}
	for _, id := range b.indentHeaders {
		b.createHeader(t, db, serial.Indent(id))
	}

	for i, w := range b.wagons {
		row := database.WagonRow{
			Serial:         b.serial,
			TowerPosition:  i + 1,
			IndentNumber:   serial.Indent(w.Indent).Ptr(),
			WagonNumber:    w.WagonNumber,
			TargetBagCount: w.Target,
			LoadedBagCount: w.Loaded,
			Commodity:      b.commodity,
			LoadingStart:   w.LoadingStart,
			LoadingEnd:     w.LoadingEnd,
		}
		if row.WagonNumber == "" {
			row.WagonNumber = fmt.Sprintf("W%03d", i+1)
		}
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed wagon %d: %v", i+1, err)
		}
	}

	if b.dispatch != nil {
		d := *b.dispatch
		d.Serial = b.serial
		d.IndentNumber = nil
		if err := db.Create(&d).Error; err != nil {
			t.Fatalf("seed dispatch: %v", err)
		}
	}
	return session
}

func (b *RakeBuilder) createHeader(t *testing.T, db *gorm.DB, scope serial.Scope) {
	t.Helper()
	h := database.IndentHeader{
		Serial:       b.serial,
		IndentNumber: scope.Ptr(),
		Commodity:    b.commodity,
		Status:       b.status,
		Siding:       b.siding,
	}
	if err := db.Create(&h).Error; err != nil {
		t.Fatalf("seed header %s %s: %v", b.serial, scope, err)
	}
}
