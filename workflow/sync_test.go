package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"bitbucket.org/mmdatafocus/inspect_backend/models"
	"bitbucket.org/mmdatafocus/inspect_backend/workflow"
)

type pushedRecord struct {
	entityType string
	id         string
}

// fakeRemote is an in-memory authoritative store double. Canonical remaps and
// per-record failures are scripted by the test.
type fakeRemote struct {
	mu        sync.Mutex
	pushed    []pushedRecord
	canonical map[string]string
	upsertErr map[string]error
	feed      []workflow.RemoteRecord
}

func (r *fakeRemote) UpsertByNaturalKey(ctx context.Context, entityType string, payload []byte) (string, error) {
	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.upsertErr[envelope.ID]; ok {
		return "", err
	}
	r.pushed = append(r.pushed, pushedRecord{entityType: entityType, id: envelope.ID})
	if canonical, ok := r.canonical[envelope.ID]; ok {
		return canonical, nil
	}
	return envelope.ID, nil
}

func (r *fakeRemote) FetchChangedSince(ctx context.Context, since time.Time) ([]workflow.RemoteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed []workflow.RemoteRecord
	for _, record := range r.feed {
		if record.LastModifiedUtc.After(since) {
			changed = append(changed, record)
		}
	}
	return changed, nil
}

func newTestCoordinator(remote workflow.RemoteStore) *workflow.Coordinator {
	return workflow.NewCoordinator(config.GetDB(), config.GetLogger(), remote)
}

func companyRecord(t *testing.T, company models.Company, modified time.Time) workflow.RemoteRecord {
	t.Helper()
	company.LastModifiedUtc = modified
	payload, err := json.Marshal(&company)
	if err != nil {
		t.Fatalf("marshal company: %v", err)
	}
	return workflow.RemoteRecord{
		EntityType:      models.EntityTypeCompany,
		ID:              company.ID,
		IsDeleted:       company.IsDeleted,
		LastModifiedUtc: modified,
		Payload:         payload,
	}
}

func TestSyncWithoutRemoteFails(t *testing.T) {
	setupTestDB(t)
	coordinator := newTestCoordinator(nil)
	if err := coordinator.RunSyncNow(context.Background()); err == nil {
		t.Fatal("expected error when no remote store is configured")
	}
}

func TestSyncPushClearsDirtyFlags(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	if _, err := models.SaveCompany(ctx, &models.Company{Name: "Push Fuels"}); err != nil {
		t.Fatalf("SaveCompany: %v", err)
	}
	if _, err := models.CreateUser(ctx, &models.NewUser{
		Username: "pusher",
		Name:     "Pusher",
		Password: "s3cret-pass",
		Role:     models.UserRoleInspector,
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	remote := &fakeRemote{}
	coordinator := newTestCoordinator(remote)
	if err := coordinator.RunSyncNow(ctx); err != nil {
		t.Fatalf("RunSyncNow: %v", err)
	}

	if len(remote.pushed) != 2 {
		t.Fatalf("expected 2 pushed records, got %v", remote.pushed)
	}
	for _, entity := range []string{models.EntityTypeCompany, models.EntityTypeUser} {
		found := false
		for _, p := range remote.pushed {
			if p.entityType == entity {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected a pushed %s record, got %v", entity, remote.pushed)
		}
	}

	dirtyCompanies, err := models.CountDirty[models.Company](ctx)
	if err != nil {
		t.Fatalf("CountDirty companies: %v", err)
	}
	dirtyUsers, err := models.CountDirty[models.User](ctx)
	if err != nil {
		t.Fatalf("CountDirty users: %v", err)
	}
	if dirtyCompanies != 0 || dirtyUsers != 0 {
		t.Fatalf("expected all dirty flags cleared, got %d companies %d users", dirtyCompanies, dirtyUsers)
	}
}

func TestSyncPushFailureKeepsRecordDirty(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	failing, err := models.SaveCompany(ctx, &models.Company{FileNumber: "F-1", Name: "Failing Fuels"})
	if err != nil {
		t.Fatalf("SaveCompany failing: %v", err)
	}
	if _, err := models.SaveCompany(ctx, &models.Company{FileNumber: "F-2", Name: "Working Fuels"}); err != nil {
		t.Fatalf("SaveCompany working: %v", err)
	}

	remote := &fakeRemote{upsertErr: map[string]error{failing.ID: errors.New("network unreachable")}}
	coordinator := newTestCoordinator(remote)
	if err := coordinator.RunSyncNow(ctx); err != nil {
		t.Fatalf("RunSyncNow: %v", err)
	}

	dirty, err := models.DirtyRecords[models.Company](ctx)
	if err != nil {
		t.Fatalf("DirtyRecords: %v", err)
	}
	if len(dirty) != 1 || dirty[0].ID != failing.ID {
		t.Fatalf("expected only the failed record dirty, got %+v", dirty)
	}
}

func TestSyncPushAdoptsCanonicalID(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	company, err := models.SaveCompany(ctx, &models.Company{Name: "Canonical Fuels"})
	if err != nil {
		t.Fatalf("SaveCompany: %v", err)
	}
	canonical := "00000000-0000-0000-0000-00000000abcd"

	remote := &fakeRemote{canonical: map[string]string{company.ID: canonical}}
	coordinator := newTestCoordinator(remote)
	if err := coordinator.RunSyncNow(ctx); err != nil {
		t.Fatalf("RunSyncNow: %v", err)
	}

	if _, err := models.GetCompany(ctx, company.ID); err == nil {
		t.Fatal("old ID must be gone after canonical adoption")
	}
	adopted, err := models.GetCompany(ctx, canonical)
	if err != nil {
		t.Fatalf("GetCompany canonical: %v", err)
	}
	if adopted.IsDirty {
		t.Fatal("adopted record must be clean after acknowledged push")
	}
}

func TestSyncPullLastWriterWins(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	company, err := models.SaveCompany(ctx, &models.Company{Name: "Merge Fuels", Location: "Local Depot"})
	if err != nil {
		t.Fatalf("SaveCompany: %v", err)
	}
	localStamp := company.LastModifiedUtc

	// Pushes fail throughout: the device keeps its local edit pending.
	remote := &fakeRemote{upsertErr: map[string]error{company.ID: errors.New("offline")}}
	coordinator := newTestCoordinator(remote)

	stale := *company
	stale.Location = "Stale Depot"
	remote.feed = []workflow.RemoteRecord{companyRecord(t, stale, localStamp.Add(-time.Hour))}

	if err := coordinator.RunSyncNow(ctx); err != nil {
		t.Fatalf("RunSyncNow stale: %v", err)
	}
	stored, err := models.GetCompany(ctx, company.ID)
	if err != nil {
		t.Fatalf("GetCompany: %v", err)
	}
	if stored.Location != "Local Depot" {
		t.Fatalf("older remote must not win, got %q", stored.Location)
	}
	if !stored.IsDirty {
		t.Fatal("pending local edit must stay dirty when the pull loses")
	}

	newer := *company
	newer.Location = "Remote Depot"
	remoteStamp := localStamp.Add(time.Hour)
	remote.feed = []workflow.RemoteRecord{companyRecord(t, newer, remoteStamp)}

	if err := coordinator.RunSyncNow(ctx); err != nil {
		t.Fatalf("RunSyncNow newer: %v", err)
	}
	stored, err = models.GetCompany(ctx, company.ID)
	if err != nil {
		t.Fatalf("GetCompany after overwrite: %v", err)
	}
	if stored.Location != "Remote Depot" {
		t.Fatalf("strictly newer remote must win, got %q", stored.Location)
	}
	if stored.IsDirty {
		t.Fatal("pulled record must come out clean")
	}
	if !stored.LastModifiedUtc.Equal(remoteStamp) {
		t.Fatalf("expected remote stamp %v, got %v", remoteStamp, stored.LastModifiedUtc)
	}
}

func TestSyncPullTimestampTieKeepsLocalEdit(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	company, err := models.SaveCompany(ctx, &models.Company{Name: "Tie Fuels", Location: "Local Depot"})
	if err != nil {
		t.Fatalf("SaveCompany: %v", err)
	}
	localStamp := company.LastModifiedUtc

	// Pushes fail, so the local edit is still pending when the pull arrives
	// with an identical stamp. Remote wins only when strictly newer.
	remote := &fakeRemote{upsertErr: map[string]error{company.ID: errors.New("offline")}}
	coordinator := newTestCoordinator(remote)

	tied := *company
	tied.Location = "Tied Depot"
	remote.feed = []workflow.RemoteRecord{companyRecord(t, tied, localStamp)}

	if err := coordinator.RunSyncNow(ctx); err != nil {
		t.Fatalf("RunSyncNow: %v", err)
	}
	stored, err := models.GetCompany(ctx, company.ID)
	if err != nil {
		t.Fatalf("GetCompany: %v", err)
	}
	if stored.Location != "Local Depot" {
		t.Fatalf("a tie must keep the local version, got %q", stored.Location)
	}
	if !stored.IsDirty {
		t.Fatal("a tie must leave the local edit dirty for the next push")
	}
}

func TestSyncPullUserWithoutActiveFlagApplies(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	// A payload from an older app version that predates the is_active field.
	stamp := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"00000000-0000-0000-0000-0000000000dd","username":"legacy","name":"Legacy Account"}`)
	remote := &fakeRemote{feed: []workflow.RemoteRecord{{
		EntityType:      models.EntityTypeUser,
		ID:              "00000000-0000-0000-0000-0000000000dd",
		LastModifiedUtc: stamp,
		Payload:         payload,
	}}}

	coordinator := newTestCoordinator(remote)
	if err := coordinator.RunSyncNow(ctx); err != nil {
		t.Fatalf("RunSyncNow: %v", err)
	}

	user, err := models.GetUser(ctx, "00000000-0000-0000-0000-0000000000dd")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.IsActive == nil || !*user.IsActive {
		t.Fatalf("expected account defaulted active, got %v", user.IsActive)
	}

	// The record applied cleanly, so the checkpoint must advance.
	checkpoint, err := models.GetSyncCheckpoint(ctx)
	if err != nil {
		t.Fatalf("GetSyncCheckpoint: %v", err)
	}
	if !checkpoint.Equal(stamp) {
		t.Fatalf("expected checkpoint at %v, got %v", stamp, checkpoint)
	}
}

func TestSyncPullCreatesAndTombstones(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	incoming := models.Company{Name: "Pulled Fuels"}
	incoming.ID = "00000000-0000-0000-0000-0000000000aa"
	stamp := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	remote := &fakeRemote{feed: []workflow.RemoteRecord{companyRecord(t, incoming, stamp)}}
	coordinator := newTestCoordinator(remote)
	if err := coordinator.RunSyncNow(ctx); err != nil {
		t.Fatalf("RunSyncNow create: %v", err)
	}

	stored, err := models.GetCompany(ctx, incoming.ID)
	if err != nil {
		t.Fatalf("GetCompany: %v", err)
	}
	if stored.IsDirty {
		t.Fatal("record created from a pull must not be pushed back")
	}

	deleted := incoming
	deleted.IsDeleted = true
	remote.feed = []workflow.RemoteRecord{companyRecord(t, deleted, stamp.Add(time.Minute))}
	if err := coordinator.RunSyncNow(ctx); err != nil {
		t.Fatalf("RunSyncNow tombstone: %v", err)
	}

	stored, err = models.GetCompany(ctx, incoming.ID)
	if err != nil {
		t.Fatalf("GetCompany after tombstone: %v", err)
	}
	if !stored.IsDeleted {
		t.Fatal("remote tombstone must propagate to the local row")
	}
}

func TestSyncCheckpointAdvancesOnlyOnCleanPass(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	good := models.Company{Name: "Good Fuels"}
	good.ID = "00000000-0000-0000-0000-0000000000bb"
	goodStamp := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	badStamp := goodStamp.Add(time.Minute)

	remote := &fakeRemote{feed: []workflow.RemoteRecord{
		companyRecord(t, good, goodStamp),
		{
			EntityType:      models.EntityTypeCompany,
			ID:              "00000000-0000-0000-0000-0000000000cc",
			LastModifiedUtc: badStamp,
			Payload:         json.RawMessage(`{not json`),
		},
	}}
	coordinator := newTestCoordinator(remote)

	if err := coordinator.RunSyncNow(ctx); err != nil {
		t.Fatalf("RunSyncNow with malformed record: %v", err)
	}
	checkpoint, err := models.GetSyncCheckpoint(ctx)
	if err != nil {
		t.Fatalf("GetSyncCheckpoint: %v", err)
	}
	if !checkpoint.IsZero() {
		t.Fatalf("checkpoint must not advance past a failed record, got %v", checkpoint)
	}

	// The malformed record is fixed upstream; the whole window replays.
	fixed := models.Company{Name: "Fixed Fuels"}
	fixed.ID = "00000000-0000-0000-0000-0000000000cc"
	remote.mu.Lock()
	remote.feed[1] = companyRecord(t, fixed, badStamp)
	remote.mu.Unlock()

	if err := coordinator.RunSyncNow(ctx); err != nil {
		t.Fatalf("RunSyncNow after fix: %v", err)
	}
	checkpoint, err = models.GetSyncCheckpoint(ctx)
	if err != nil {
		t.Fatalf("GetSyncCheckpoint after fix: %v", err)
	}
	if !checkpoint.Equal(badStamp) {
		t.Fatalf("expected checkpoint at %v, got %v", badStamp, checkpoint)
	}
	if _, err := models.GetCompany(ctx, fixed.ID); err != nil {
		t.Fatalf("fixed record must be applied: %v", err)
	}
}
