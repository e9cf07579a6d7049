package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/model"
	"gestoria.cloud/internal/store/memstore"
)

type serviceFixture struct {
	store  *memstore.Store
	svc    *Service
	tenant model.Tenant
	clock  time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{store: memstore.New(), clock: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	now := func() time.Time { return f.clock }
	tokens, err := NewTokenService([]byte("secret"), WithClock(now))
	require.NoError(t, err)
	f.svc, err = NewService(f.store, tokens, WithServiceClock(now))
	require.NoError(t, err)
	f.tenant, err = f.store.CreateTenant(context.Background(), model.Tenant{Name: "Acme"})
	require.NoError(t, err)
	return f
}

func (f *serviceFixture) addUser(t *testing.T, tenantID, email, password string, status model.UserStatus) model.User {
	t.Helper()
	hash := ""
	if password != "" {
		var err error
		hash, err = HashPassword(password)
		require.NoError(t, err)
	}
	u, err := f.store.CreateUser(context.Background(), model.User{TenantID: tenantID, Email: email, PasswordHash: hash, Status: status})
	require.NoError(t, err)
	return u
}

func codeOf(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func TestLoginIssuesTokenForTenantUser(t *testing.T) {
	f := newServiceFixture(t)
	user := f.addUser(t, f.tenant.ID, "ana@example.com", "correct-horse", model.UserActive)

	session, err := f.svc.Login(context.Background(), "  ANA@example.com ", "correct-horse", "")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", session.TokenType)
	assert.Equal(t, 3600, session.ExpiresIn)

	id, err := f.svc.Tokens().Validate(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id.UserID)
	assert.Equal(t, f.tenant.ID, id.TenantID)
}

func TestLoginFailures(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	other, err := f.store.CreateTenant(ctx, model.Tenant{Name: "Beta"})
	require.NoError(t, err)
	f.addUser(t, f.tenant.ID, "ana@example.com", "correct-horse", model.UserActive)
	f.addUser(t, other.ID, "ana@example.com", "correct-horse", model.UserActive)
	f.addUser(t, f.tenant.ID, "off@example.com", "correct-horse", model.UserDisabled)

	cases := []struct {
		name     string
		email    string
		password string
		tenant   string
		code     string
	}{
		{"missing email", "", "x", "", "email_required"},
		{"missing password", "ana@example.com", "", "", "password_required"},
		{"ambiguous email", "ana@example.com", "correct-horse", "", "client_id_required"},
		{"bad client id", "ana@example.com", "correct-horse", "nope", "invalid_client_id"},
		{"wrong password", "ana@example.com", "wrong-horse", f.tenant.ID, "invalid_credentials"},
		{"unknown user", "who@example.com", "correct-horse", f.tenant.ID, "invalid_credentials"},
		{"disabled user", "off@example.com", "correct-horse", f.tenant.ID, "user_inactive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Login(ctx, tc.email, tc.password, tc.tenant)
			require.Error(t, err)
			assert.Equal(t, tc.code, codeOf(err))
		})
	}

	session, err := f.svc.Login(ctx, "ana@example.com", "correct-horse", other.ID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, session.TenantID)
}

func TestInviteAndActivate(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	res, err := f.svc.Invite(ctx, f.tenant.ID, "New@Example.com")
	require.NoError(t, err)
	assert.Equal(t, model.UserInvited, res.User.Status)
	assert.NotEmpty(t, res.Token)
	assert.NotEqual(t, res.Token, res.Invitation.TokenHash)

	_, err = f.svc.Activate(ctx, f.tenant.ID, res.Token, "short")
	assert.Equal(t, "password_too_short", codeOf(err))

	user, err := f.svc.Activate(ctx, f.tenant.ID, res.Token, "long-enough")
	require.NoError(t, err)
	assert.Equal(t, model.UserActive, user.Status)

	_, err = f.svc.Activate(ctx, f.tenant.ID, res.Token, "long-enough")
	assert.Equal(t, "token_used", codeOf(err))

	_, err = f.svc.Invite(ctx, f.tenant.ID, "new@example.com")
	assert.Equal(t, "user_active", codeOf(err))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = f.svc.Login(ctx, "new@example.com", "long-enough", f.tenant.ID)
	require.NoError(t, err)
}

func TestActivateRejectsExpiredAndUnknownTokens(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	res, err := f.svc.Invite(ctx, f.tenant.ID, "late@example.com")
	require.NoError(t, err)

	_, err = f.svc.Activate(ctx, f.tenant.ID, "not-a-token", "long-enough")
	assert.Equal(t, "token_invalid", codeOf(err))

	f.clock = f.clock.Add(49 * time.Hour)
	_, err = f.svc.Activate(ctx, f.tenant.ID, res.Token, "long-enough")
	assert.Equal(t, "token_expired", codeOf(err))
}

func TestInviteValidatesEmail(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Invite(context.Background(), f.tenant.ID, "not-an-email")
	assert.Equal(t, "email_invalid", codeOf(err))

	_, err = f.svc.Invite(context.Background(), "", "a@example.com")
	assert.ErrorIs(t, err, apperr.ErrTenantContextRequired)
}
