package github

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/locktivity/epack-collector-template-security/internal/tristate"
)

// Sentinel errors matched by APIError.Is.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// Outcome is the classification of a single API call.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeNotFound
	OutcomeForbidden
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeForbidden:
		return "forbidden"
	default:
		return "error"
	}
}

// APIError describes a call that did not succeed.
// StatusCode is zero when no HTTP response was received.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Endpoint, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Endpoint, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("%s %s: request failed", e.Method, e.Endpoint)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is lets callers use errors.Is with ErrNotFound and ErrForbidden.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	}
	return false
}

// Classify maps an error returned by the client into an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrForbidden):
		return OutcomeForbidden
	default:
		return OutcomeError
	}
}

// Existence applies the existence-check mapping: success is True, not found
// is False, and anything else (forbidden, transport or server errors) is Unknown.
func Existence(err error) tristate.State {
	switch Classify(err) {
	case OutcomeSuccess:
		return tristate.True
	case OutcomeNotFound:
		return tristate.False
	default:
		return tristate.Unknown
	}
}
