package models

import (
	"sync"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"gorm.io/gorm"
)

var (
	migrateMu  sync.Mutex
	migratedDB *gorm.DB
)

// MigrateTable applies the schema before any reads. AutoMigrate is additive
// only: new sync-metadata columns are appended with safe defaults, existing
// columns are never dropped or rewritten. The mutex is the single
// initialization gate required by the concurrency model: concurrent early
// callers serialize here and every caller after the first completed setup
// sees a no-op.
func MigrateTable() error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	db := config.GetDB()
	if db == migratedDB {
		return nil
	}

	err := db.AutoMigrate(
		&Company{}, &User{},
		&Inspection{}, &Appointment{}, &Violation{}, &CompanyRenewal{},
		&ScheduledInspection{}, &ScheduledInspectionHistory{},
		&OutboxMessage{},
		&SyncCheckpoint{},
	)
	if err != nil {
		return err
	}
	migratedDB = db
	return nil
}
