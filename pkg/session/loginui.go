package session

import (
	"errors"

	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
)

const (
	fallbackLoginMessage  = "An error occurred while logging in."
	throttledLoginMessage = "Too many login attempts, try again shortly."
)

// LoginErrorMessage returns the message to show on a failed interactive login: the
// backend's own message when it sent one, otherwise a generic one.
func LoginErrorMessage(err error) string {
	if errors.Is(err, ErrLoginThrottled) {
		return throttledLoginMessage
	}
	if msg := authsdk.ErrorMessage(err); msg != "" {
		return msg
	}
	return fallbackLoginMessage
}
