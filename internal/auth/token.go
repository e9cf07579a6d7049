package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTokenTTL = 60 * time.Minute
	defaultIssuer   = "gestoria"
)

// Claims binds a user to its tenant. The tenant travels as client_id.
type Claims struct {
	TenantID string `json:"client_id"`
	jwt.RegisteredClaims
}

// Identity is the validated content of a session token.
type Identity struct {
	UserID    string
	TenantID  string
	ExpiresAt time.Time
}

// TokenService issues and validates HS256 session tokens. Tokens are
// stateless; live user state is checked by the caller on every request.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// TokenOption configures TokenService.
type TokenOption func(*TokenService) error

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: ttl must be positive", ErrInvalidInput)
		}
		s.ttl = ttl
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// NewTokenService constructs a TokenService keyed by secret.
func NewTokenService(secret []byte, opts ...TokenOption) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: token secret is required", ErrInvalidInput)
	}
	s := &TokenService{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultTokenTTL,
		issuer: defaultIssuer,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token for the user within its tenant.
func (s *TokenService) Issue(userID, tenantID string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return "", time.Time{}, fmt.Errorf("%w: user and tenant are required", ErrInvalidInput)
	}
	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Validate verifies signature, algorithm and validity window.
func (s *TokenService) Validate(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenNotValidYet) || errors.Is(err, jwt.ErrTokenUsedBeforeIssued) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.TenantID) == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		UserID:    claims.Subject,
		TenantID:  claims.TenantID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
