package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sunublog/sunublog/internal/cache"
	"github.com/sunublog/sunublog/pkg/config"
)

// TokenType is the scheme clients put in front of the token
const TokenType = "Bearer"

var (
	// ErrInvalidToken covers malformed, expired and badly signed tokens
	ErrInvalidToken = errors.New("invalid token")
	// ErrRevokedToken is returned for tokens revoked by logout or refresh
	ErrRevokedToken = errors.New("token has been revoked")
)

// Claims carries the user id in Subject and a unique token id in ID
type Claims struct {
	jwtv5.RegisteredClaims
}

// UserID parses the subject as a user id
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Token is an issued bearer token
type Token struct {
	AccessToken string    `json:"token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenService issues, verifies and revokes HS256 bearer tokens
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	cache  *cache.Cache
	now    func() time.Time
}

// NewTokenService creates a token service. A nil cache disables revocation.
func NewTokenService(cfg *config.AuthConfig, c *cache.Cache) *TokenService {
	return &TokenService{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		ttl:    cfg.TokenTTL,
		cache:  c,
		now:    time.Now,
	}
}

// Issue signs a new token for userID
func (s *TokenService) Issue(userID int64) (*Token, error) {
	if userID <= 0 {
		return nil, errors.New("userID is required")
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token failed: %w", err)
	}
	return &Token{AccessToken: signed, TokenType: TokenType, ExpiresAt: expiresAt.UTC()}, nil
}

// Parse verifies the signature, issuer and expiry of tokenString and
// rejects revoked tokens
func (s *TokenService) Parse(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwtv5.ParseWithClaims(tokenString, claims,
		func(token *jwtv5.Token) (interface{}, error) {
			if token.Method != jwtv5.SigningMethodHS256 {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwtv5.WithIssuer(s.issuer),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}

	revoked, err := s.cache.IsTokenRevoked(ctx, claims.ID)
	if err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		return nil, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return nil, ErrRevokedToken
	}
	return claims, nil
}

// Revoke blacklists the token until it would have expired
func (s *TokenService) Revoke(ctx context.Context, claims *Claims) error {
	if claims.ExpiresAt == nil {
		return nil
	}
	err := s.cache.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Sub(s.now()))
	if errors.Is(err, cache.ErrCacheDisabled) {
		return nil
	}
	return err
}

// Refresh revokes the presented token and issues a fresh one for the same user
func (s *TokenService) Refresh(ctx context.Context, claims *Claims) (*Token, error) {
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	if err := s.Revoke(ctx, claims); err != nil {
		return nil, err
	}
	return s.Issue(userID)
}
