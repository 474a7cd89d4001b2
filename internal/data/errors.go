package data

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/deepwiki-go/repochat/pkg/utils"
)

var (
	// ErrNoValidDocuments means nothing survived loading, embedding and validation
	ErrNoValidDocuments = errors.New("no valid documents with embeddings found")
	// ErrEmptyIndex is returned when a retriever is built over nothing
	ErrEmptyIndex = errors.New("cannot build retriever over an empty document set")
	// ErrDimensionMismatch is returned when vectors do not share one length
	ErrDimensionMismatch = errors.New("all embeddings should be of the same size")
	// ErrUnsupportedKind is returned for an unknown repository provider
	ErrUnsupportedKind = errors.New("unsupported repository type")
)

// FetchErrorKind classifies fetch failures
type FetchErrorKind int

const (
	FetchTransport FetchErrorKind = iota
	FetchNotFound
	FetchUnauthorized
	FetchForbidden
	FetchServer
	FetchMalformed
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchNotFound:
		return "not found"
	case FetchUnauthorized:
		return "unauthorized"
	case FetchForbidden:
		return "forbidden"
	case FetchServer:
		return "server error"
	case FetchMalformed:
		return "malformed response"
	default:
		return "transport error"
	}
}

// FetchError is returned by repository and file fetches. Message is already
// scrubbed of credentials.
type FetchError struct {
	Provider   string
	Kind       FetchErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// newFetchError builds a FetchError, scrubbing token from the message and
// dropping the wrapped error when it would leak the token.
func newFetchError(provider string, kind FetchErrorKind, status int, msg string, cause error, token string) *FetchError {
	fe := &FetchError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: status,
		Message:    utils.ScrubToken(msg, token),
	}
	if cause != nil && (token == "" || utils.ScrubToken(cause.Error(), token) == cause.Error()) {
		fe.Err = cause
	}
	return fe
}

// kindForStatus maps an HTTP status to a fetch error kind
func kindForStatus(status int) FetchErrorKind {
	switch {
	case status == http.StatusNotFound:
		return FetchNotFound
	case status == http.StatusUnauthorized:
		return FetchUnauthorized
	case status == http.StatusForbidden:
		return FetchForbidden
	case status >= 500:
		return FetchServer
	default:
		return FetchMalformed
	}
}

func isFetchKind(err error, kind FetchErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

// IsNotFound checks if the error indicates a resource was not found.
func IsNotFound(err error) bool { return isFetchKind(err, FetchNotFound) }

// IsUnauthorized checks if the error indicates an authentication failure.
func IsUnauthorized(err error) bool { return isFetchKind(err, FetchUnauthorized) }

// IsForbidden checks if the error indicates a forbidden resource.
func IsForbidden(err error) bool { return isFetchKind(err, FetchForbidden) }

// IsServerError checks if the provider failed on its side.
func IsServerError(err error) bool { return isFetchKind(err, FetchServer) }

// IsMalformed checks if the provider answered with something unusable.
func IsMalformed(err error) bool { return isFetchKind(err, FetchMalformed) }
