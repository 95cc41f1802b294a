package models_test

import (
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"bitbucket.org/mmdatafocus/inspect_backend/models"
)

// setupTestDB points the global connection at a fresh in-memory store named
// after the test, so tests never share state and never touch the filesystem.
func setupTestDB(t *testing.T) {
	t.Helper()
	name := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, t.Name())
	t.Setenv("DB_PATH", "file:"+name+"?mode=memory&cache=shared")
	if err := config.ConnectDatabase(); err != nil {
		t.Fatalf("ConnectDatabase: %v", err)
	}
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}
}
