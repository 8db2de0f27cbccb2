package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("upstream rejected access token")
	ErrInvalidRefreshToken = errors.New("refresh token rejected by upstream")
	ErrMissingRefreshToken = errors.New("no refresh token stored for account")
	ErrCredentialNotFound  = errors.New("credential not found")
	ErrUpstream            = errors.New("upstream request failed")
)

// UpstreamError is a non-success response (or transport failure) from the streaming platform.
// It always matches ErrUpstream via errors.Is.
type UpstreamError struct {
	Endpoint   string
	StatusCode int // 0 for transport and decoding failures
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("upstream %s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("upstream %s returned %d", e.Endpoint, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("upstream %s failed: %v", e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("upstream %s failed: %s", e.Endpoint, e.Message)
	}
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstream, e.Err}
	}
	return []error{ErrUpstream}
}
