package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gestoria.cloud/internal/ids"
	"gestoria.cloud/internal/model"
	"gestoria.cloud/internal/obs"
)

const (
	UnknownAction = "unknown_action"
	UnknownEntity = "unknown_entity"
	UnknownID     = "unknown_id"

	defaultListLimit = 50
	maxListLimit     = 200
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Store is the append-only audit persistence collaborator.
type Store interface {
	InsertAuditEntry(ctx context.Context, entry model.AuditEntry) error
	ListAuditEntries(ctx context.Context, tenantID string, filter model.AuditFilter) ([]model.AuditEntry, error)
}

// Trail records security-relevant actions. Writes are best-effort: failures
// are logged and counted, never returned.
type Trail struct {
	store Store
	now   func() time.Time
}

// NewTrail constructs a Trail. A nil store keeps only the log line.
func NewTrail(store Store) *Trail {
	return &Trail{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// LogAction normalizes and appends entry.
func (t *Trail) LogAction(ctx context.Context, entry model.AuditEntry) {
	entry = t.normalize(entry)
	fields := logrus.Fields{
		"type":        "audit",
		"event":       entry.Action,
		"audit_id":    entry.ID,
		"client_id":   entry.TenantID,
		"entity_type": entry.EntityType,
		"entity_id":   entry.EntityID,
		"fields":      entry.Metadata,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		fields["request_id"] = rid
	}
	if entry.ActorUserID != "" {
		fields["user_id"] = entry.ActorUserID
	}
	obs.Logger().WithFields(fields).Info("audit")

	if t == nil || t.store == nil {
		return
	}
	if err := t.persist(ctx, entry); err != nil {
		obs.AuditWriteFailed()
		obs.Logger().WithFields(logrus.Fields{
			"event":      entry.Action,
			"client_id":  entry.TenantID,
			"request_id": RequestIDFromContext(ctx),
		}).WithError(err).Warn("audit write failed")
	}
}

func (t *Trail) persist(ctx context.Context, entry model.AuditEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit store panic: %v", r)
		}
	}()
	if entry.TenantID == "" {
		return errors.New("audit entry without tenant")
	}
	return t.store.InsertAuditEntry(ctx, entry)
}

func (t *Trail) normalize(entry model.AuditEntry) model.AuditEntry {
	entry.Action = orDefault(entry.Action, UnknownAction)
	entry.EntityType = orDefault(entry.EntityType, UnknownEntity)
	entry.EntityID = orDefault(entry.EntityID, UnknownID)
	entry.TenantID = strings.TrimSpace(entry.TenantID)
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.CreatedAt.IsZero() {
		now := time.Now().UTC()
		if t != nil && t.now != nil {
			now = t.now()
		}
		entry.CreatedAt = now
	}
	meta := make(map[string]string, len(entry.Metadata))
	for k, v := range entry.Metadata {
		meta[k] = v
	}
	entry.Metadata = meta
	return entry
}

// ListActions returns the tenant's entries, newest first.
func (t *Trail) ListActions(ctx context.Context, tenantID string, filter model.AuditFilter) ([]model.AuditEntry, error) {
	if t == nil || t.store == nil {
		return nil, errors.New("audit: store unavailable")
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.EntityType = strings.TrimSpace(filter.EntityType)
	filter.EntityID = strings.TrimSpace(filter.EntityID)
	filter.UserID = strings.TrimSpace(filter.UserID)
	return t.store.ListAuditEntries(ctx, tenantID, filter)
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}
