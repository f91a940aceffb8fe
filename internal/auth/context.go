package auth

import (
	"context"
	"strings"

	"mise.app/internal/model"
)

type userIDContextKey struct{}
type ownerContextKey struct{}
type adminTokenContextKey struct{}

// ContextWithUserID stores the authenticated provider subject.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, strings.TrimSpace(userID))
}

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(userIDContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ContextWithOwner attaches the validated business owner to the context.
func ContextWithOwner(ctx context.Context, owner model.BusinessOwner) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, &owner)
}

// OwnerFromContext returns the business owner validated earlier in the request.
func OwnerFromContext(ctx context.Context) (model.BusinessOwner, bool) {
	if ctx == nil {
		return model.BusinessOwner{}, false
	}
	v, ok := ctx.Value(ownerContextKey{}).(*model.BusinessOwner)
	if !ok || v == nil {
		return model.BusinessOwner{}, false
	}
	return *v, true
}

// ContextWithAdminToken stores the raw admin-session token from the request cookie.
func ContextWithAdminToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, adminTokenContextKey{}, token)
}

// AdminTokenFromContext returns the admin-session token if one was presented.
func AdminTokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(adminTokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
