package service

import "net/http"

// HTTPError represents an error with an associated HTTP status code.
// TODO(future): it is probably not optimal to tie service errors to HTTP layer. We should refactor this later. :)
type HTTPError struct {
	StatusCode int
	Wrapped    error
}

func (e HTTPError) Error() string {
	return e.Wrapped.Error()
}

func (e HTTPError) Unwrap() error {
	return e.Wrapped
}

func httpError(statusCode int, err error) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Wrapped:    err,
	}
}

// Stable error codes returned by the mint endpoint. CI plugins key retry and
// messaging behavior off these, so they are part of the public contract.
const (
	CodeInvalidPayload          = "invalid-payload"
	CodeInvalidToken            = "invalid-token"
	CodeUnknownIssuer           = "unknown-issuer"
	CodeNotEnabled              = "not-enabled"
	CodeInvalidPublisher        = "invalid-publisher"
	CodeInvalidPendingPublisher = "invalid-pending-publisher"
	CodeTokenReused             = "token-reused"
	CodeProjectExists           = "project-exists"
)

// MintError is a user-facing mint failure: an error code from the taxonomy
// above plus a human-readable description.
type MintError struct {
	HTTPError
	Code string
}

func (e MintError) Error() string {
	return e.Wrapped.Error()
}

func mintError(code string, err error) *MintError {
	return &MintError{
		HTTPError: HTTPError{StatusCode: http.StatusUnprocessableEntity, Wrapped: err},
		Code:      code,
	}
}
