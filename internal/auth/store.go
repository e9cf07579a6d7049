package auth

import (
	"context"
	"time"

	"gestoria.cloud/internal/model"
)

// UserStore is the identity persistence collaborator. Lookups are always
// tenant-scoped except ListActiveUsersByEmail, which backs login without an
// explicit tenant.
type UserStore interface {
	GetUser(ctx context.Context, tenantID, userID string) (model.User, error)
	GetUserByEmail(ctx context.Context, tenantID, email string) (model.User, error)
	ListActiveUsersByEmail(ctx context.Context, email string) ([]model.User, error)
	CreateUser(ctx context.Context, user model.User) (model.User, error)
	UpdateUser(ctx context.Context, user model.User) (model.User, error)
}

// InvitationStore persists hashed invitation tokens.
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv model.Invitation) (model.Invitation, error)
	GetInvitationByHash(ctx context.Context, tenantID, tokenHash string) (model.Invitation, error)
	MarkInvitationUsed(ctx context.Context, id string, usedAt time.Time) error
}

// Store combines the collaborators Service depends on.
type Store interface {
	UserStore
	InvitationStore
}
