/*
Package authsdk provides a client for the identity endpoints of a multi-tenant platform
backend.

# Overview

The backend is treated as a black box exposing five operations, captured by the
Backend interface:

  - CurrentUser: who am I, used both to validate a credential and to probe a session
  - CurrentTenant: the tenant the credential belongs to
  - LoginOptions: the login schemes the tenant offers (BASIC, OAUTH2)
  - OAuthDescriptor: the identity provider issuer for cookie sessions
  - Logout: terminates the server-side session

SDKClient is the HTTP implementation:

	client := authsdk.NewSDKClient("https://tenant.example.com")
	client.Tokens = cookies // anything with XSRFToken() string

	options, err := client.LoginOptions(ctx)

	user, err := client.CurrentUser(ctx, authsdk.BasicCredential{
		Username: "jane",
		Password: "secret",
	})

# Credentials

A Credential is one of exactly two variants:

  - CookieCredential: the session lives in browser-style cookies set by the SSO flow.
    Requests carry the XSRF token read from Tokens as X-XSRF-TOKEN.
  - BasicCredential: username and password, sent as HTTP basic auth.

The variant is sealed; use a type switch over both cases.

# Error Handling

Every non-success response is returned as an *APIError carrying the status code and the
message from the response payload. APIError unwraps to a sentinel describing the failure
class, so callers can use errors.Is:

	user, err := client.CurrentUser(ctx, cred)
	switch {
	case errors.Is(err, authsdk.ErrInvalidCredentials):
		// the backend rejected the credential
	case errors.Is(err, authsdk.ErrTransport):
		// the request never completed
	}

Network failures are wrapped in *TransportError.
*/
package authsdk
