package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"gestoria.cloud/internal/model"
	"gestoria.cloud/internal/obs"
)

type stubStore struct {
	mu      sync.Mutex
	entries []model.AuditEntry
	err     error
	panics  bool
}

func (s *stubStore) InsertAuditEntry(_ context.Context, e model.AuditEntry) error {
	if s.panics {
		panic("boom")
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *stubStore) ListAuditEntries(_ context.Context, tenantID string, f model.AuditFilter) ([]model.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AuditEntry
	for _, e := range s.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	original := logger.Out
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return &buf
}

func TestLogActionWritesEntryAndLogLine(t *testing.T) {
	buf := captureLog(t)
	store := &stubStore{}
	trail := NewTrail(store)

	ctx := WithRequestID(context.Background(), "req-123")
	trail.LogAction(ctx, model.AuditEntry{
		TenantID:    "tenant-1",
		ActorUserID: "user-42",
		Action:      "company.create",
		EntityType:  "company",
		EntityID:    "c-1",
		Metadata:    map[string]string{"foo": "bar"},
	})

	if len(store.entries) != 1 {
		t.Fatalf("expected one stored entry, got %d", len(store.entries))
	}
	if store.entries[0].ID == "" || store.entries[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", store.entries[0])
	}

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v (%q)", err, line)
	}
	if entry["type"] != "audit" || entry["event"] != "company.create" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
	if entry["request_id"] != "req-123" || entry["user_id"] != "user-42" {
		t.Fatalf("missing request context: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["foo"] != "bar" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogActionCoercesBlankValues(t *testing.T) {
	captureLog(t)
	store := &stubStore{}
	NewTrail(store).LogAction(context.Background(), model.AuditEntry{TenantID: "tenant-1", Action: "  "})

	got := store.entries[0]
	if got.Action != UnknownAction || got.EntityType != UnknownEntity || got.EntityID != UnknownID {
		t.Fatalf("expected sentinel values, got %+v", got)
	}
}

func TestLogActionSwallowsStoreFailures(t *testing.T) {
	buf := captureLog(t)
	for _, store := range []*stubStore{{err: errors.New("db down")}, {panics: true}} {
		NewTrail(store).LogAction(context.Background(), model.AuditEntry{TenantID: "tenant-1", Action: "x"})
	}
	NewTrail(&stubStore{}).LogAction(context.Background(), model.AuditEntry{Action: "no-tenant"})
	if !strings.Contains(buf.String(), "audit write failed") {
		t.Fatalf("expected failure to be logged, got %q", buf.String())
	}
}

func TestListActionsClampsLimit(t *testing.T) {
	captureLog(t)
	store := &stubStore{}
	trail := NewTrail(store)
	for i := 0; i < 3; i++ {
		trail.LogAction(context.Background(), model.AuditEntry{TenantID: "tenant-1", Action: "a"})
	}
	trail.LogAction(context.Background(), model.AuditEntry{TenantID: "tenant-2", Action: "a"})

	got, err := trail.ListActions(context.Background(), "tenant-1", model.AuditFilter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	got, _ = trail.ListActions(context.Background(), "tenant-1", model.AuditFilter{Limit: 10_000})
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
}
