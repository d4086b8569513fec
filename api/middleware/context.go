package middleware

import (
	"context"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
)

type contextKey string

const (
	ctxAccount contextKey = "account"
	ctxRoles   contextKey = "roles"
)

// AccountFromContext returns the wallet address the request acts as.
func AccountFromContext(ctx context.Context) chain.Address {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAccount).(chain.Address); ok {
		return v
	}
	return ""
}

// RolesFromContext returns the roles granted by the access token.
func RolesFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxRoles).([]string); ok {
		return v
	}
	return nil
}

// HasRole reports whether the access token granted role.
func HasRole(ctx context.Context, role string) bool {
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}

// WithAccount injects the wallet identity into the context.
func WithAccount(ctx context.Context, account chain.Address, roles ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxAccount, account)
	return context.WithValue(ctx, ctxRoles, roles)
}
