package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncEntity carries the sync metadata every offline-tracked record needs.
// It is embedded by each concrete entity rather than stored in a shared base
// table, so every entity table repeats these columns and each table can be
// migrated independently.
//
// Invariant: no code path changes a business field without going through
// Touch, which sets the dirty flag and advances LastModifiedUtc together.
type SyncEntity struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	IsDirty         bool      `gorm:"not null;default:false;index" json:"is_dirty"`
	IsDeleted       bool      `gorm:"not null;default:false;index" json:"is_deleted"`
	LastModifiedUtc time.Time `gorm:"not null;index" json:"last_modified_utc"`
}

func (e *SyncEntity) GetID() string    { return e.ID }
func (e *SyncEntity) SetID(id string)  { e.ID = id }
func (e *SyncEntity) Dirty() bool      { return e.IsDirty }
func (e *SyncEntity) Tombstoned() bool { return e.IsDeleted }

func (e *SyncEntity) ModifiedUtc() time.Time { return e.LastModifiedUtc }

// EnsureID mints a UUID for records created offline. Once assigned the ID is
// immutable; only canonical-ID adoption during reconciliation may replace it.
func (e *SyncEntity) EnsureID() {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
}

// Touch marks the record dirty and stamps LastModifiedUtc with a strictly
// increasing UTC time. When the wall clock has not advanced past the previous
// stamp (coarse clocks, rapid edits) the stamp is bumped by a microsecond so
// last-writer-wins comparisons stay deterministic.
func (e *SyncEntity) Touch() {
	now := time.Now().UTC()
	if !now.After(e.LastModifiedUtc) {
		now = e.LastModifiedUtc.Add(time.Microsecond)
	}
	e.IsDirty = true
	e.LastModifiedUtc = now
}

// MarkSynced is used when a record arrives from the remote store already
// acknowledged: it must not be pushed back.
func (e *SyncEntity) MarkSynced(remoteModified time.Time) {
	e.IsDirty = false
	e.LastModifiedUtc = remoteModified
}

// Syncable is satisfied by every entity embedding SyncEntity.
type Syncable interface {
	GetID() string
	SetID(string)
	Dirty() bool
	Tombstoned() bool
	ModifiedUtc() time.Time
	EnsureID()
	Touch()
	MarkSynced(time.Time)
}

// SyncablePtr constrains a pointer-to-entity type so generic store helpers can
// call Syncable methods on values they allocate.
type SyncablePtr[T any] interface {
	*T
	Syncable
}

// Entity type tags used on the sync wire and in remote change feeds.
const (
	EntityTypeCompany             = "company"
	EntityTypeUser                = "user"
	EntityTypeInspection          = "inspection"
	EntityTypeAppointment         = "appointment"
	EntityTypeViolation           = "violation"
	EntityTypeCompanyRenewal      = "company_renewal"
	EntityTypeScheduledInspection = "scheduled_inspection"
)
