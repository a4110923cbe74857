// Package auth holds the token and one-time-code primitives of rideauth:
// the bound access/refresh JWT pair and the TOTP verifier.
package auth

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"

	"github.com/dmitrijs2005/rideauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	SubjectAccess  = "access"
	SubjectRefresh = "refresh"
)

// ErrMissingSigningKey is returned when a TokenService is built without key material.
var ErrMissingSigningKey = errors.New("missing signing key")

// TokenPair is an access token and the refresh token bound to it.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Claims is shared by both token kinds. Sub tells them apart; AccessTokenHash
// is set on refresh tokens only.
type Claims struct {
	jwt.RegisteredClaims
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	AccessTokenHash string `json:"at_hash,omitempty"`
}

// TokenService mints and verifies token pairs. A refresh token carries the
// hash of the access token it was minted with and only verifies next to
// that exact access token.
type TokenService struct {
	method     jwt.SigningMethod
	signKey    any
	verifyKey  any
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewHMACTokenService signs with HS256.
func NewHMACTokenService(secret []byte, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSigningKey
	}
	return &TokenService{
		method:     jwt.SigningMethodHS256,
		signKey:    secret,
		verifyKey:  secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// NewRSATokenService signs with RS256.
func NewRSATokenService(private *rsa.PrivateKey, public *rsa.PublicKey, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if private == nil || public == nil {
		return nil, ErrMissingSigningKey
	}
	return &TokenService{
		method:     jwt.SigningMethodRS256,
		signKey:    private,
		verifyKey:  public,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock returns a copy of s that reads time from now.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	c := *s
	c.now = now
	return &c
}

// MintPair signs a fresh access token and a refresh token bound to it.
func (s *TokenService) MintPair(userID, username string) (*TokenPair, error) {
	now := s.now()

	access, err := s.sign(s.claims(userID, username, SubjectAccess, now, s.accessTTL))
	if err != nil {
		return nil, err
	}

	rc := s.claims(userID, username, SubjectRefresh, now, s.refreshTTL)
	rc.AccessTokenHash = AccessTokenHash(access)
	refresh, err := s.sign(rc)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess checks signature, expiry and subject of an access token.
// It returns common.ErrTokenExpired for expired tokens and
// common.ErrInvalidToken for anything else that is wrong.
func (s *TokenService) VerifyAccess(access string) (*Claims, error) {
	return s.parse(access, SubjectAccess)
}

// VerifyRefresh checks the refresh token and that it was minted together
// with access. The access token itself may already be expired.
func (s *TokenService) VerifyRefresh(access, refresh string) (*Claims, error) {
	claims, err := s.parse(refresh, SubjectRefresh)
	if err != nil {
		return nil, err
	}
	want := AccessTokenHash(access)
	if access == "" || subtle.ConstantTimeCompare([]byte(claims.AccessTokenHash), []byte(want)) != 1 {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// AccessTokenHash is the at_hash value of an access token: the left half of
// its SHA-256 digest, base64url without padding.
func AccessTokenHash(access string) string {
	sum := sha256.Sum256([]byte(access))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}

func (s *TokenService) claims(userID, username, subject string, now time.Time, ttl time.Duration) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   userID,
		Username: username,
	}
}

func (s *TokenService) sign(c *Claims) (string, error) {
	return jwt.NewWithClaims(s.method, c).SignedString(s.signKey)
}

func (s *TokenService) parse(tokenString, subject string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return s.verifyKey, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithSubject(subject),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
