package auth

import (
	"context"
	"net/http"
	"strings"
	"whiteboard-relay/errors"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	RolesKey  contextKey = "roles"
)

// Anonymous is the identity given to callers when authentication is disabled.
const Anonymous = "anonymous"

// TokenFromRequest reads the bearer token from the Authorization header or,
// since browsers cannot set headers on a websocket handshake, the token
// query parameter.
func TokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
			return token, nil
		}
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", errors.ErrMissingToken
}

// Authenticate checks the request token when signer is set and returns a
// context carrying the caller identity. A nil signer lets every caller in
// as Anonymous.
func Authenticate(signer *Signer, r *http.Request) (context.Context, error) {
	ctx := r.Context()
	if signer == nil {
		return context.WithValue(ctx, UserIDKey, Anonymous), nil
	}

	tokenStr, err := TokenFromRequest(r)
	if err != nil {
		return nil, err
	}

	claims, err := signer.ValidateToken(tokenStr)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, UserIDKey, claims.Identity())
	ctx = context.WithValue(ctx, RolesKey, claims.Roles)
	return ctx, nil
}

// UserID returns the identity stored by Authenticate.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return Anonymous
}
