// Package auth carries the authenticated caller through request context
// and signs the short-lived tokens embedded in renewal action emails.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthUser is the caller identity resolved from the request.
type AuthUser struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	BusinessUnit string `json:"business_unit"`
}

type contextKey string

const userContextKey contextKey = "auth_user"

// ContextWithUser attaches the caller to the request context.
func ContextWithUser(ctx context.Context, u *AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext retrieves the caller set by the auth middleware.
func UserFromContext(ctx context.Context) (*AuthUser, bool) {
	u, ok := ctx.Value(userContextKey).(*AuthUser)
	return u, ok && u != nil
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// ActionClaims are the claims of an approval token: a one-click link in
// a renewal email that lets a handler continue or cancel a cycle without
// logging in.
type ActionClaims struct {
	EntryID     string `json:"entry_id"`
	Action      string `json:"action"`
	Handler     string `json:"handler"`
	RenewalDate string `json:"renewal_date"`
	jwt.RegisteredClaims
}

// ActionTokenSigner issues and validates approval tokens.
type ActionTokenSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewActionTokenSigner(secret string, ttl time.Duration) *ActionTokenSigner {
	return &ActionTokenSigner{secret: []byte(secret), ttl: ttl}
}

// Sign issues a token authorizing one action on one renewal cycle.
// RenewalDate pins the token to the cycle it was issued for, so a stale
// link cannot act on a later cycle.
func (s *ActionTokenSigner) Sign(entryID, action, handler string, renewalDate time.Time) (string, error) {
	now := time.Now()
	claims := ActionClaims{
		EntryID:     entryID,
		Action:      action,
		Handler:     handler,
		RenewalDate: renewalDate.UTC().Format("2006-01-02"),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate parses an approval token and returns its claims.
func (s *ActionTokenSigner) Validate(tokenString string) (*ActionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ActionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*ActionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
