package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"bitbucket.org/mmdatafocus/inspect_backend/models"
	"bitbucket.org/mmdatafocus/inspect_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RemoteRecord is one changed entity from the authoritative store's feed.
type RemoteRecord struct {
	EntityType      string          `json:"entity_type"`
	ID              string          `json:"id"`
	IsDeleted       bool            `json:"is_deleted"`
	LastModifiedUtc time.Time       `json:"last_modified_utc"`
	Payload         json.RawMessage `json:"payload"`
}

// RemoteStore is the authoritative backend, reached over whatever transport
// the application wires in. UpsertByNaturalKey must deduplicate with the same
// natural-key resolution used locally and return the canonical ID, which may
// differ from the pushed one when another device created the entity first.
type RemoteStore interface {
	UpsertByNaturalKey(ctx context.Context, entityType string, payload []byte) (string, error)
	FetchChangedSince(ctx context.Context, since time.Time) ([]RemoteRecord, error)
}

// Coordinator runs bidirectional reconciliation: push dirty records, pull
// remote changes, merge last-writer-wins, clear dirty flags. A full pass is
// re-entrant; repeated invocations have no duplicate side effects because
// remote upserts are idempotent under natural-key resolution.
type Coordinator struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Remote RemoteStore

	PollInterval time.Duration

	mu sync.Mutex
}

func NewCoordinator(db *gorm.DB, logger *logrus.Logger, remote RemoteStore) *Coordinator {
	return &Coordinator{
		DB:           db,
		Logger:       logger,
		Remote:       remote,
		PollInterval: 2 * time.Minute,
	}
}

func (c *Coordinator) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		// One correlation id per pass ties every log line of a cycle together.
		cycleCtx := utils.SetCorrelationIdInContext(ctx, uuid.NewString())
		if err := c.RunSyncNow(cycleCtx); err != nil && c.Logger != nil {
			logPassError(c.Logger, "Coordinator.Run", cycleCtx, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.PollInterval):
		}
	}
}

// RunSyncNow performs one push+pull pass. Per-entity failures are isolated:
// a failed record stays dirty (push) or unapplied (pull) and retries next
// cycle; it never aborts the pass for other records or entity types.
func (c *Coordinator) RunSyncNow(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Remote == nil {
		return errors.New("remote store not configured")
	}

	c.pushAll(ctx)
	return c.pullAll(ctx)
}

func (c *Coordinator) pushAll(ctx context.Context) {
	// Entity types are independent; no cross-entity ordering is guaranteed.
	pushEntity[models.Company](ctx, c, models.EntityTypeCompany)
	pushEntity[models.User](ctx, c, models.EntityTypeUser)
	pushEntity[models.Inspection](ctx, c, models.EntityTypeInspection)
	pushEntity[models.Appointment](ctx, c, models.EntityTypeAppointment)
	pushEntity[models.Violation](ctx, c, models.EntityTypeViolation)
	pushEntity[models.CompanyRenewal](ctx, c, models.EntityTypeCompanyRenewal)
	pushEntity[models.ScheduledInspection](ctx, c, models.EntityTypeScheduledInspection)
}

func pushEntity[T any, PT models.SyncablePtr[T]](ctx context.Context, c *Coordinator, entityType string) {
	records, err := models.DirtyRecords[T](ctx)
	if err != nil {
		if c.Logger != nil {
			config.LogError(c.Logger, "workflow", "pushEntity", entityType, nil, err)
		}
		return
	}

	for _, record := range records {
		if ctx.Err() != nil {
			return
		}
		pr := PT(record)
		captured := pr.ModifiedUtc()

		payload, err := utils.MarshalToJSON(record)
		if err != nil {
			if c.Logger != nil {
				config.LogError(c.Logger, "workflow", "pushEntity", entityType, pr.GetID(), err)
			}
			continue
		}

		canonicalID, err := c.Remote.UpsertByNaturalKey(ctx, entityType, []byte(payload))
		if err != nil {
			// Transient: the record simply stays dirty for the next cycle.
			if c.Logger != nil {
				config.LogError(c.Logger, "workflow", "pushEntity", entityType, pr.GetID(), err)
			}
			continue
		}

		id := pr.GetID()
		if canonicalID != "" && canonicalID != id {
			if err := models.AdoptCanonicalID[T](ctx, id, canonicalID); err != nil {
				if c.Logger != nil {
					config.LogError(c.Logger, "workflow", "pushEntity", entityType, id, err)
				}
				continue
			}
			id = canonicalID
		}

		// Guarded by the timestamp captured before the push: an edit that
		// raced in keeps the record dirty.
		if err := models.ClearDirty[T](ctx, id, captured); err != nil {
			if c.Logger != nil {
				config.LogError(c.Logger, "workflow", "pushEntity", entityType, id, err)
			}
		}
	}
}

func (c *Coordinator) pullAll(ctx context.Context) error {
	checkpoint, err := models.GetSyncCheckpoint(ctx)
	if err != nil {
		return err
	}

	changed, err := c.Remote.FetchChangedSince(ctx, checkpoint)
	if err != nil {
		return err
	}

	applied := 0
	failed := 0
	highWater := checkpoint
	for _, record := range changed {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.applyRemoteRecord(ctx, record); err != nil {
			failed++
			if c.Logger != nil {
				config.LogError(c.Logger, "workflow", "pullAll", record.EntityType, record.ID, err)
			}
			continue
		}
		applied++
		if record.LastModifiedUtc.After(highWater) {
			highWater = record.LastModifiedUtc
		}
	}

	// Advance only after a fully clean pass: a failed record must reappear
	// in the next fetch, and re-applying the rest is harmless under LWW.
	if failed == 0 && applied > 0 {
		if err := models.AdvanceSyncCheckpoint(ctx, highWater); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) applyRemoteRecord(ctx context.Context, record RemoteRecord) error {
	switch record.EntityType {
	case models.EntityTypeCompany:
		return applyRemote[models.Company](ctx, record)
	case models.EntityTypeUser:
		return applyRemote[models.User](ctx, record)
	case models.EntityTypeInspection:
		return applyRemote[models.Inspection](ctx, record)
	case models.EntityTypeAppointment:
		return applyRemote[models.Appointment](ctx, record)
	case models.EntityTypeViolation:
		return applyRemote[models.Violation](ctx, record)
	case models.EntityTypeCompanyRenewal:
		return applyRemote[models.CompanyRenewal](ctx, record)
	case models.EntityTypeScheduledInspection:
		return applyRemote[models.ScheduledInspection](ctx, record)
	default:
		return fmt.Errorf("unknown entity type %q", record.EntityType)
	}
}

// applyRemote merges one pulled record. Remote wins only when strictly newer
// than the local stamp; ties and local-newer keep the local version, which
// stays dirty for the next push. Local changes are never silently discarded
// by an incoming pull.
func applyRemote[T any, PT models.SyncablePtr[T]](ctx context.Context, record RemoteRecord) error {
	var incoming T
	if err := utils.UnmarshalFromJSON(record.Payload, &incoming); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	pi := PT(&incoming)
	pi.SetID(record.ID)

	db := config.GetDB()
	var local T
	err := db.WithContext(ctx).First(&local, "id = ?", record.ID).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		pi.MarkSynced(record.LastModifiedUtc)
		return db.WithContext(ctx).Create(&incoming).Error
	}

	pl := PT(&local)
	if !record.LastModifiedUtc.After(pl.ModifiedUtc()) {
		return nil
	}
	pi.MarkSynced(record.LastModifiedUtc)
	return db.WithContext(ctx).Save(&incoming).Error
}
