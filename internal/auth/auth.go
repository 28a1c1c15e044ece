// Package auth turns an opaque client token into a verified identity and
// carries that identity through a context.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tyrone-Ward/nodeify/internal/store"
)

// ErrUnknownToken is returned for tokens with no directory entry. It is a
// verdict, not a transient failure.
var ErrUnknownToken = errors.New("unknown client token")

type contextKey string

const identityContextKey contextKey = "identity"

// Resolve looks token up in dir. Lookup failures are wrapped and distinct
// from ErrUnknownToken.
func Resolve(ctx context.Context, dir store.TokenDirectory, token string) (string, error) {
	if token == "" {
		return "", ErrUnknownToken
	}
	ct, err := dir.GetClientToken(ctx, token)
	if err != nil {
		return "", fmt.Errorf("resolve token: %w", err)
	}
	if ct == nil {
		return "", ErrUnknownToken
	}
	return ct.Identity, nil
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext returns the authenticated identity, or "" if none.
func IdentityFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(identityContextKey).(string)
	return identity
}

// Mask shortens a token for logs.
func Mask(token string) string {
	if len(token) <= 3 {
		return "***"
	}
	return token[:3] + "***"
}
