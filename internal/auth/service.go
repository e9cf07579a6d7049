package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/ids"
	"gestoria.cloud/internal/model"
)

const defaultInviteTTL = 48 * time.Hour

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Session is the result of a successful login.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"-"`
	UserID      string    `json:"-"`
	TenantID    string    `json:"-"`
}

// InviteResult carries the one-time token handed to the invitee.
type InviteResult struct {
	User       model.User
	Invitation model.Invitation
	Token      string
}

// Service implements login and the invitation workflow.
type Service struct {
	store     Store
	tokens    *TokenService
	inviteTTL time.Duration
	now       func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithInviteTTL overrides how long invitation tokens stay valid.
func WithInviteTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.inviteTTL = ttl
		}
		return nil
	}
}

// WithServiceClock overrides the time source.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// NewService wires the identity service.
func NewService(store Store, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	s := &Service{
		store:     store,
		tokens:    tokens,
		inviteTTL: defaultInviteTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Tokens exposes the token service used for issuing sessions.
func (s *Service) Tokens() *TokenService { return s.tokens }

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login verifies credentials and issues a session token. Without tenantID
// the email must match exactly one active user across tenants.
func (s *Service) Login(ctx context.Context, email, password, tenantID string) (Session, error) {
	email = NormalizeEmail(email)
	tenantID = strings.TrimSpace(tenantID)
	if email == "" {
		return Session{}, apperr.BadRequest("email_required", "")
	}
	if password == "" {
		return Session{}, apperr.BadRequest("password_required", "")
	}

	var (
		user model.User
		err  error
	)
	if tenantID != "" {
		if _, ok := ids.ParseUUID(tenantID); !ok {
			return Session{}, apperr.ErrInvalidClientID
		}
		user, err = s.store.GetUserByEmail(ctx, tenantID, email)
		if errors.Is(err, model.ErrNotFound) {
			return Session{}, apperr.ErrInvalidCredentials
		}
		if err != nil {
			return Session{}, fmt.Errorf("lookup user: %w", err)
		}
	} else {
		users, err := s.store.ListActiveUsersByEmail(ctx, email)
		if err != nil {
			return Session{}, fmt.Errorf("lookup user: %w", err)
		}
		switch len(users) {
		case 0:
			return Session{}, apperr.ErrInvalidCredentials
		case 1:
			user = users[0]
		default:
			return Session{}, apperr.BadRequest("client_id_required", "")
		}
	}

	if user.PasswordHash == "" || VerifyPassword(user.PasswordHash, password) != nil {
		return Session{}, apperr.ErrInvalidCredentials
	}
	if !user.Active() {
		return Session{}, apperr.ErrUserInactive
	}

	token, expires, err := s.tokens.Issue(user.ID, user.TenantID)
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
		ExpiresAt:   expires,
		UserID:      user.ID,
		TenantID:    user.TenantID,
	}, nil
}

// Invite creates (or reuses) an invited user and a fresh invitation token.
func (s *Service) Invite(ctx context.Context, tenantID, email string) (InviteResult, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return InviteResult{}, apperr.ErrTenantContextRequired
	}
	email = NormalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return InviteResult{}, apperr.BadRequest("email_invalid", "")
	}

	user, err := s.store.GetUserByEmail(ctx, tenantID, email)
	switch {
	case errors.Is(err, model.ErrNotFound):
		user, err = s.store.CreateUser(ctx, model.User{
			ID:       ids.NewEntityID(),
			TenantID: tenantID,
			Email:    email,
			Status:   model.UserInvited,
		})
		if err != nil {
			return InviteResult{}, fmt.Errorf("create invited user: %w", err)
		}
	case err != nil:
		return InviteResult{}, fmt.Errorf("lookup user: %w", err)
	case user.Status == model.UserActive:
		return InviteResult{}, apperr.Conflict("user_active", "")
	case user.Status == model.UserDisabled:
		return InviteResult{}, apperr.Conflict("user_disabled", "")
	}

	token, err := generateInviteToken()
	if err != nil {
		return InviteResult{}, err
	}
	now := s.now()
	inv, err := s.store.CreateInvitation(ctx, model.Invitation{
		ID:        ids.NewEntityID(),
		TenantID:  tenantID,
		Email:     email,
		TokenHash: HashInviteToken(token),
		ExpiresAt: now.Add(s.inviteTTL),
		CreatedAt: now,
	})
	if err != nil {
		return InviteResult{}, fmt.Errorf("create invitation: %w", err)
	}
	return InviteResult{User: user, Invitation: inv, Token: token}, nil
}

// Activate consumes an invitation token and sets the user's credential.
func (s *Service) Activate(ctx context.Context, tenantID, token, password string) (model.User, error) {
	tenantID = strings.TrimSpace(tenantID)
	token = strings.TrimSpace(token)
	if tenantID == "" {
		return model.User{}, apperr.ErrTenantContextRequired
	}
	if _, ok := ids.ParseUUID(tenantID); !ok {
		return model.User{}, apperr.ErrInvalidClientID
	}
	if token == "" {
		return model.User{}, apperr.BadRequest("token_required", "")
	}
	if len(password) < MinPasswordLength {
		return model.User{}, apperr.BadRequest("password_too_short", "")
	}

	inv, err := s.store.GetInvitationByHash(ctx, tenantID, HashInviteToken(token))
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, apperr.BadRequest("token_invalid", "")
	}
	if err != nil {
		return model.User{}, fmt.Errorf("lookup invitation: %w", err)
	}
	if inv.UsedAt != nil {
		return model.User{}, apperr.BadRequest("token_used", "")
	}
	now := s.now()
	if !inv.ExpiresAt.After(now) {
		return model.User{}, apperr.BadRequest("token_expired", "")
	}

	user, err := s.store.GetUserByEmail(ctx, tenantID, inv.Email)
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, apperr.BadRequest("invited_user_missing", "")
	}
	if err != nil {
		return model.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if user.Status == model.UserDisabled {
		return model.User{}, apperr.Conflict("user_disabled", "")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return model.User{}, err
	}
	user.PasswordHash = hash
	user.Status = model.UserActive
	user, err = s.store.UpdateUser(ctx, user)
	if err != nil {
		return model.User{}, fmt.Errorf("activate user: %w", err)
	}
	if err := s.store.MarkInvitationUsed(ctx, inv.ID, now); err != nil {
		return model.User{}, fmt.Errorf("consume invitation: %w", err)
	}
	return user, nil
}

// HashInviteToken returns the hex sha256 stored in place of the token.
func HashInviteToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateInviteToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
