package testhelpers

import (
	"testing"

	"github.com/sidingops/rakeserial/internal/database"
)

func TestRakeBuilder_Seed(t *testing.T) {
	db := SetupTestDB(t)

	session := NewRakeBuilder("2025-26/02/001").
		WithSiding("North").
		WithIndentHeaders("B").
		WithWagons("A", 2, 10).
		WithWagon(WagonSpec{Indent: "B", Loaded: 5, Target: 50, WagonNumber: "X9"}).
		WithParentDispatch(database.DispatchRow{VesselName: "MV Star"}).
		Seed(t, db)

	if session.WagonCount != 3 {
		t.Errorf("expected wagon count 3, got %d", session.WagonCount)
	}
	if session.Siding != "North" {
		t.Errorf("expected siding North, got %q", session.Siding)
	}

	var headers []database.IndentHeader
	db.Where("serial = ?", session.Serial).Order("id").Find(&headers)
	if len(headers) != 2 {
		t.Fatalf("expected parent and one indent header, got %d", len(headers))
	}
	if !headers[0].Scope().IsParent() || headers[1].Scope().ID() != "B" {
		t.Errorf("unexpected header scopes: %s, %s", headers[0].Scope(), headers[1].Scope())
	}

	var wagons []database.WagonRow
	db.Where("serial = ?", session.Serial).Order("tower_position").Find(&wagons)
	if len(wagons) != 3 {
		t.Fatalf("expected 3 wagons, got %d", len(wagons))
	}
	if wagons[0].WagonNumber != "W001" || wagons[2].WagonNumber != "X9" {
		t.Errorf("unexpected wagon numbers %q, %q", wagons[0].WagonNumber, wagons[2].WagonNumber)
	}
	if wagons[2].TowerPosition != 3 || wagons[2].LoadedBagCount != 5 {
		t.Errorf("unexpected third wagon %+v", wagons[2])
	}

	var dispatch database.DispatchRow
	if err := db.Where("serial = ?", session.Serial).First(&dispatch).Error; err != nil {
		t.Fatalf("dispatch not seeded: %v", err)
	}
	if dispatch.IndentNumber != nil || dispatch.VesselName != "MV Star" {
		t.Errorf("unexpected dispatch %+v", dispatch)
	}
}

func TestRakeBuilder_WithoutParent(t *testing.T) {
	db := SetupTestDB(t)
	NewRakeBuilder("2025-26/02/002").
		WithoutParent().
		WithIndentHeaders("A", "B").
		WithStatus(database.StatusPendingApproval).
		Seed(t, db)

	var headers []database.IndentHeader
	db.Where("serial = ?", "2025-26/02/002").Find(&headers)
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(headers))
	}
	for _, h := range headers {
		if h.Scope().IsParent() {
			t.Error("no parent header expected")
		}
		if h.Status != database.StatusPendingApproval {
			t.Errorf("expected PENDING_APPROVAL, got %s", h.Status)
		}
	}
}

func TestRakeBuilder_DistinctTokens(t *testing.T) {
	db := SetupTestDB(t)
	a := NewRakeBuilder("2025-26/02/003").Seed(t, db)
	b := NewRakeBuilder("2025-26/02/004").Seed(t, db)
	if a.Token == b.Token {
		t.Errorf("tokens should differ, both %q", a.Token)
	}
}
