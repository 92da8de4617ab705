package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// url builds a complete URL by appending the path to the base URL.
func (c *SDKClient) url(path string) string {
	return c.BaseURL + path
}

// doRequest performs an HTTP request with the SDKClient's HTTP client. cred may be nil
// for unauthenticated endpoints.
func (c *SDKClient) doRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
	cred Credential,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.authorize(req, cred)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}

	return resp, nil
}

// decodeJSON decodes a JSON response into target, or returns an *APIError classified by
// classify when the status is not expectedStatus.
func decodeJSON(resp *http.Response, target any, expectedStatus int, classify classifier) error {
	defer resp.Body.Close()

	// Read body once for both error parsing and success decoding
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: "read response body", Err: err}
	}

	if resp.StatusCode != expectedStatus {
		return parseErrorResponse(resp, bodyBytes, classify)
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// checkStatusOK returns an *APIError unless the response is 200 or 204.
func checkStatusOK(resp *http.Response, classify classifier) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	return parseErrorResponse(resp, bodyBytes, classify)
}
