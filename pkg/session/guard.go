package session

import (
	"context"

	"github.com/aussiebroadwan/tenantauth/pkg/slogx"
)

// DefaultLoginPath is where Guard sends unauthenticated users.
const DefaultLoginPath = "/login"

// StateReader is the part of the Manager a Guard reads.
type StateReader interface {
	IsLoggedIn() bool
}

// Guard admits callers into protected areas only while a session is authenticated.
type Guard struct {
	Session   StateReader
	Navigator Navigator
	LoginPath string
}

// Allow returns true for an authenticated session. Otherwise it navigates to the login
// path and returns false.
func (g Guard) Allow(ctx context.Context) bool {
	if g.Session.IsLoggedIn() {
		return true
	}

	path := g.LoginPath
	if path == "" {
		path = DefaultLoginPath
	}
	if g.Navigator != nil {
		if err := g.Navigator.Navigate(ctx, path); err != nil {
			slogx.FromContext(ctx).Warn("guard navigation failed", "path", path, "error", err)
		}
	}
	return false
}
