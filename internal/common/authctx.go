package common

import "context"

type ctxKey string

const (
	userIDKey ctxKey = "auth/user-id"
	shopIDKey ctxKey = "auth/shop-id"
	scopesKey ctxKey = "auth/scopes"
)

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// WithShopID stores the shop scope of the authenticated session.
func WithShopID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, shopIDKey, id)
}

// ShopID extracts the session's shop scope from the context if present.
func ShopID(ctx context.Context) (string, bool) {
	v := ctx.Value(shopIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// WithScopes stores the session's granted permission scopes.
func WithScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, scopesKey, scopes)
}

// HasScope reports whether the session carries the given permission.
func HasScope(ctx context.Context, scope string) bool {
	v := ctx.Value(scopesKey)
	scopes, ok := v.([]string)
	if !ok {
		return false
	}
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
