// Package credstore holds session-scoped values: the stored basic credential pair and
// the cookie tokens issued by the SSO flow.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
)

// CredentialsKey is the storage key of the basic credential pair.
const CredentialsKey = "App_Creds"

var (
	// ErrNotFound is returned by Storage.Get for a missing or expired key.
	ErrNotFound = errors.New("credstore: not found")

	// ErrCorrupt is returned when a stored value cannot be decoded.
	ErrCorrupt = errors.New("credstore: corrupt value")
)

// Storage is a string key/value store scoped to one session. Values live until they are
// removed, the scope is cleared or the driver expires them.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// SaveBasic stores cred under CredentialsKey as {"user":..,"password":..}.
func SaveBasic(ctx context.Context, s Storage, cred authsdk.BasicCredential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	return s.Set(ctx, CredentialsKey, string(raw))
}

// LoadBasic returns the stored basic pair. ok is false when nothing is stored.
func LoadBasic(ctx context.Context, s Storage) (cred authsdk.BasicCredential, ok bool, err error) {
	raw, err := s.Get(ctx, CredentialsKey)
	if errors.Is(err, ErrNotFound) {
		return authsdk.BasicCredential{}, false, nil
	}
	if err != nil {
		return authsdk.BasicCredential{}, false, err
	}

	if err := json.Unmarshal([]byte(raw), &cred); err != nil || cred.Username == "" {
		return authsdk.BasicCredential{}, false, fmt.Errorf("%w: %s", ErrCorrupt, CredentialsKey)
	}
	return cred, true, nil
}

// RemoveBasic deletes the stored basic pair.
func RemoveBasic(ctx context.Context, s Storage) error {
	return s.Remove(ctx, CredentialsKey)
}
