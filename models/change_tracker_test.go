package models_test

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/inspect_backend/models"
)

func TestTouchStampsAreStrictlyIncreasing(t *testing.T) {
	var entity models.SyncEntity
	previous := entity.LastModifiedUtc
	for i := 0; i < 1000; i++ {
		entity.Touch()
		if !entity.LastModifiedUtc.After(previous) {
			t.Fatalf("stamp %d did not advance: %v then %v", i, previous, entity.LastModifiedUtc)
		}
		previous = entity.LastModifiedUtc
	}
	if !entity.IsDirty {
		t.Fatal("Touch must set the dirty flag")
	}
}

func TestClearDirtyIgnoresStaleAcknowledgment(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	company, err := models.SaveCompany(ctx, &models.Company{Name: "Delta Fuels"})
	if err != nil {
		t.Fatalf("SaveCompany: %v", err)
	}
	pushed := company.LastModifiedUtc

	// A local edit lands after the push was sent but before the ack returns.
	company.Location = "East Depot"
	if _, err := models.SaveCompany(ctx, company); err != nil {
		t.Fatalf("SaveCompany edit: %v", err)
	}

	if err := models.ClearDirty[models.Company](ctx, company.ID, pushed); err != nil {
		t.Fatalf("ClearDirty: %v", err)
	}
	stored, err := models.GetCompany(ctx, company.ID)
	if err != nil {
		t.Fatalf("GetCompany: %v", err)
	}
	if !stored.IsDirty {
		t.Fatal("stale acknowledgment must not clear a record edited after the push")
	}

	if err := models.ClearDirty[models.Company](ctx, company.ID, stored.LastModifiedUtc); err != nil {
		t.Fatalf("ClearDirty current: %v", err)
	}
	stored, err = models.GetCompany(ctx, company.ID)
	if err != nil {
		t.Fatalf("GetCompany after clear: %v", err)
	}
	if stored.IsDirty {
		t.Fatal("current acknowledgment must clear the dirty flag")
	}
}

func TestDeleteTombstonesAndHidesFromListing(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	company, err := models.SaveCompany(ctx, &models.Company{Name: "Gone Fuels"})
	if err != nil {
		t.Fatalf("SaveCompany: %v", err)
	}
	if err := models.ClearDirty[models.Company](ctx, company.ID, company.LastModifiedUtc); err != nil {
		t.Fatalf("ClearDirty: %v", err)
	}

	if err := models.DeleteCompany(ctx, company.ID); err != nil {
		t.Fatalf("DeleteCompany: %v", err)
	}

	stored, err := models.GetCompany(ctx, company.ID)
	if err != nil {
		t.Fatalf("GetCompany: %v", err)
	}
	if !stored.IsDeleted {
		t.Fatal("delete must tombstone, not remove")
	}
	if !stored.IsDirty {
		t.Fatal("tombstone must be dirty so the deletion propagates")
	}

	companies, err := models.ListCompanies(ctx)
	if err != nil {
		t.Fatalf("ListCompanies: %v", err)
	}
	for _, c := range companies {
		if c.ID == company.ID {
			t.Fatal("tombstoned company must not appear in listings")
		}
	}

	dirty, err := models.DirtyRecords[models.Company](ctx)
	if err != nil {
		t.Fatalf("DirtyRecords: %v", err)
	}
	if len(dirty) != 1 || dirty[0].ID != company.ID {
		t.Fatalf("tombstone must appear in the dirty set, got %d records", len(dirty))
	}
}

func TestAdoptCanonicalIDRekeysRow(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	company, err := models.SaveCompany(ctx, &models.Company{Name: "Rekeyed Fuels"})
	if err != nil {
		t.Fatalf("SaveCompany: %v", err)
	}

	canonical := "00000000-0000-0000-0000-00000000c0de"
	if err := models.AdoptCanonicalID[models.Company](ctx, company.ID, canonical); err != nil {
		t.Fatalf("AdoptCanonicalID: %v", err)
	}

	if _, err := models.GetCompany(ctx, company.ID); err == nil {
		t.Fatal("old ID must be gone after adoption")
	}
	stored, err := models.GetCompany(ctx, canonical)
	if err != nil {
		t.Fatalf("GetCompany canonical: %v", err)
	}
	if stored.Name != "Rekeyed Fuels" {
		t.Fatalf("unexpected row after adoption: %+v", stored)
	}
}

func TestAdoptCanonicalIDDropsDuplicateWhenCanonicalExists(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	original, err := models.SaveCompany(ctx, &models.Company{FileNumber: "F-1", Name: "Original Fuels"})
	if err != nil {
		t.Fatalf("SaveCompany original: %v", err)
	}
	duplicate, err := models.SaveCompany(ctx, &models.Company{FileNumber: "F-2", Name: "Duplicate Fuels"})
	if err != nil {
		t.Fatalf("SaveCompany duplicate: %v", err)
	}

	if err := models.AdoptCanonicalID[models.Company](ctx, duplicate.ID, original.ID); err != nil {
		t.Fatalf("AdoptCanonicalID: %v", err)
	}
	if got := countCompanies(t); got != 1 {
		t.Fatalf("expected duplicate row dropped, got %d rows", got)
	}
	if _, err := models.GetCompany(ctx, original.ID); err != nil {
		t.Fatalf("canonical row must survive: %v", err)
	}
}

func TestCheckpointNeverRewinds(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	checkpoint, err := models.GetSyncCheckpoint(ctx)
	if err != nil {
		t.Fatalf("GetSyncCheckpoint: %v", err)
	}
	if !checkpoint.IsZero() {
		t.Fatalf("expected zero checkpoint before first sync, got %v", checkpoint)
	}

	later := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	if err := models.AdvanceSyncCheckpoint(ctx, later); err != nil {
		t.Fatalf("AdvanceSyncCheckpoint: %v", err)
	}
	if err := models.AdvanceSyncCheckpoint(ctx, earlier); err != nil {
		t.Fatalf("AdvanceSyncCheckpoint earlier: %v", err)
	}

	checkpoint, err = models.GetSyncCheckpoint(ctx)
	if err != nil {
		t.Fatalf("GetSyncCheckpoint after advance: %v", err)
	}
	if !checkpoint.Equal(later) {
		t.Fatalf("checkpoint rewound: got %v want %v", checkpoint, later)
	}
}
