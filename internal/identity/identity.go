// Package identity implements the identity collaborator: it resolves an
// inbound connection to a principal, or rejects it. Per the design note,
// this is a single trait (Resolver) with two implementations rather than a
// feature flag sprinkled through the Connection Handler.
package identity

import (
	"net/http"

	"github.com/termhub/termhubd/internal/apierr"
)

// Principal is the resolved identity of a connection: the durable key used
// for notification preferences and session ownership, plus display
// metadata.
type Principal struct {
	UserID      string
	LoginName   string
	DisplayName string
}

// AnonymousPrincipal is returned by DisabledResolver for every connection.
var AnonymousPrincipal = Principal{UserID: "anonymous", LoginName: "anonymous", DisplayName: "Anonymous"}

// Resolver maps an inbound HTTP request (the websocket upgrade request,
// carrying headers/remote address) to a Principal, or rejects it with an
// Unauthorized error.
type Resolver interface {
	Resolve(r *http.Request) (Principal, error)
}

// DisabledResolver is used when auth.enabled=false: every connection
// resolves to the fixed anonymous principal.
type DisabledResolver struct{}

func (DisabledResolver) Resolve(r *http.Request) (Principal, error) {
	return AnonymousPrincipal, nil
}

// AllowedUsersResolver is used when auth.enabled=true. It trusts an
// upstream reverse proxy to set X-Termhub-User (and optionally
// X-Termhub-Display-Name), validating the asserted login against an
// allow-list. An empty allow-list rejects every connection.
type AllowedUsersResolver struct {
	Allowed map[string]struct{}
}

// NewAllowedUsersResolver builds the allow-list lookup from a slice.
func NewAllowedUsersResolver(users []string) *AllowedUsersResolver {
	allowed := make(map[string]struct{}, len(users))
	for _, u := range users {
		allowed[u] = struct{}{}
	}
	return &AllowedUsersResolver{Allowed: allowed}
}

func (a *AllowedUsersResolver) Resolve(r *http.Request) (Principal, error) {
	login := r.Header.Get("X-Termhub-User")
	if login == "" {
		return Principal{}, apierr.New(apierr.Unauthorized, "missing identity header")
	}
	if _, ok := a.Allowed[login]; !ok {
		return Principal{}, apierr.New(apierr.Unauthorized, "user not in allowed list")
	}
	display := r.Header.Get("X-Termhub-Display-Name")
	if display == "" {
		display = login
	}
	return Principal{UserID: login, LoginName: login, DisplayName: display}, nil
}
