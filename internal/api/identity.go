package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"credence/internal/types"
)

// ErrUnauthenticated is returned when a request carries no verified identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity headers, set by the session proxy in front of the server.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

// Claim keys passed to the identity provider.
const (
	ClaimUserID = "user_id"
	ClaimEmail  = "email"
	ClaimName   = "name"
)

// HeaderIdentity trusts identity claims forwarded by an authenticating proxy.
type HeaderIdentity struct{}

// Identify maps claims to a caller. A user ID is required.
func (HeaderIdentity) Identify(ctx context.Context, claims map[string]string) (types.Caller, error) {
	id := strings.TrimSpace(claims[ClaimUserID])
	if id == "" {
		return types.Caller{}, ErrUnauthenticated
	}
	return types.Caller{
		UserID: id,
		Email:  strings.TrimSpace(claims[ClaimEmail]),
		Name:   strings.TrimSpace(claims[ClaimName]),
	}, nil
}

func claimsFromRequest(r *http.Request) map[string]string {
	return map[string]string{
		ClaimUserID: r.Header.Get(HeaderUserID),
		ClaimEmail:  r.Header.Get(HeaderUserEmail),
		ClaimName:   r.Header.Get(HeaderUserName),
	}
}
