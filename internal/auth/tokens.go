package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type tokenKind string

const (
	kindAccess  tokenKind = "access"
	kindRefresh tokenKind = "refresh"
)

// ErrInvalidToken covers bad signatures, expiry and token-kind mismatches.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims carries the user id as subject and the session id as jti.
type Claims struct {
	Kind tokenKind `json:"knd"`
	jwt.RegisteredClaims
}

// TokenPair is what the session cookies hold.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue creates an access and refresh token for userID that share a fresh session id.
func (i *Issuer) Issue(userID string) (TokenPair, error) {
	return i.IssueFor(userID, uuid.NewString(), i.now().Add(i.refreshTTL))
}

// IssueFor signs a pair for an existing session. The refresh token expires
// with the session.
func (i *Issuer) IssueFor(userID, sessionID string, refreshExpiresAt time.Time) (TokenPair, error) {
	now := i.now()
	pair := TokenPair{
		SessionID:        sessionID,
		AccessExpiresAt:  now.Add(i.accessTTL),
		RefreshExpiresAt: refreshExpiresAt,
	}
	if pair.AccessExpiresAt.After(refreshExpiresAt) {
		pair.AccessExpiresAt = refreshExpiresAt
	}

	var err error
	if pair.AccessToken, err = i.sign(kindAccess, userID, pair.SessionID, now, pair.AccessExpiresAt); err != nil {
		return TokenPair{}, err
	}
	if pair.RefreshToken, err = i.sign(kindRefresh, userID, pair.SessionID, now, pair.RefreshExpiresAt); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (i *Issuer) sign(kind tokenKind, userID, jti string, issued, expires time.Time) (string, error) {
	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// VerifyAccess parses an access token.
func (i *Issuer) VerifyAccess(token string) (*Claims, error) {
	return i.verify(token, kindAccess)
}

// VerifyRefresh parses a refresh token.
func (i *Issuer) VerifyRefresh(token string) (*Claims, error) {
	return i.verify(token, kindRefresh)
}

func (i *Issuer) verify(tokenStr string, want tokenKind) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Kind != want || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
