package workflow_test

import (
	"context"
	"strings"
	"sync"
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

type fakeEmailSender struct {
	mu     sync.Mutex
	sent   []string
	failOn map[string]error
}

func (f *fakeEmailSender) Send(ctx context.Context, to string, subject string, body string, isHTML bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failOn[to]; ok {
		return err
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeSmsSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSmsSender) SendSms(ctx context.Context, e164Number string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, e164Number)
	return nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []any
}

func (f *fakeBus) Publish(event any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}
