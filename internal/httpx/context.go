package httpx

import (
	"context"
	"net/http"
)

type ctxKey int

const (
	principalKey ctxKey = iota
	requestIDKey
)

// Principal is the authenticated caller, set by AuthMiddleware.
type Principal struct {
	UserID string
	Role   string
}

func ContextWithUser(ctx context.Context, userID, role string) context.Context {
	return context.WithValue(ctx, principalKey, Principal{UserID: userID, Role: role})
}

// PrincipalFrom reports the caller, if the request was authenticated.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func UserIDFrom(r *http.Request) string {
	p, _ := PrincipalFrom(r.Context())
	return p.UserID
}

func RoleFrom(r *http.Request) string {
	p, _ := PrincipalFrom(r.Context())
	return p.Role
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext lets code below the handler tag its logs with the
// request id.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func RequestIDFrom(r *http.Request) string { return RequestIDFromContext(r.Context()) }
