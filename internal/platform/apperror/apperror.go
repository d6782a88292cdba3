// Package apperror classifies failures crossing the store, repository and
// federation layers so that handlers can map them to a response status
// without inspecting driver-specific errors.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure class of an Error.
type Kind int

const (
	// StoreUnavailable is a connection, transport or timeout failure at a store.
	StoreUnavailable Kind = iota + 1
	// NotFound means the requested root entity does not exist.
	NotFound
	// BrokenLink means a logical cross-store reference dangles.
	BrokenLink
	// Validation means the input was rejected, either by the service or by a
	// store constraint (duplicate key, missing foreign row, malformed value).
	Validation
)

func (k Kind) String() string {
	switch k {
	case StoreUnavailable:
		return "store_unavailable"
	case NotFound:
		return "not_found"
	case BrokenLink:
		return "broken_cross_store_link"
	case Validation:
		return "validation_failure"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Entity names what was being accessed
// ("patient", "claim", ...). Stage is set by the federation resolver to the
// step of a composite lookup that failed.
type Error struct {
	Kind    Kind
	Entity  string
	Stage   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail is the message shown to API callers. The wrapped cause is left out
// so driver internals never reach a response body.
func (e *Error) Detail() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

// NewNotFound reports that entity id does not exist.
func NewNotFound(entity string, id interface{}) *Error {
	return &Error{
		Kind:    NotFound,
		Entity:  entity,
		Message: fmt.Sprintf("%s %v not found", entity, id),
	}
}

// NewBrokenLink reports that the reference from a composite lookup stage to
// entity could not be followed.
func NewBrokenLink(stage, entity string, cause error) *Error {
	return &Error{
		Kind:    BrokenLink,
		Entity:  entity,
		Stage:   stage,
		Message: fmt.Sprintf("associated %s not found", entity),
		Err:     cause,
	}
}

// NewValidation reports rejected input.
func NewValidation(entity, message string, cause error) *Error {
	return &Error{
		Kind:    Validation,
		Entity:  entity,
		Message: message,
		Err:     cause,
	}
}

// NewUnavailable reports that store could not serve the request.
func NewUnavailable(store string, cause error) *Error {
	return &Error{
		Kind:    StoreUnavailable,
		Entity:  store,
		Message: fmt.Sprintf("%s store unavailable", store),
		Err:     cause,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsNotFound(err error) bool         { return KindOf(err) == NotFound }
func IsBrokenLink(err error) bool       { return KindOf(err) == BrokenLink }
func IsValidation(err error) bool       { return KindOf(err) == Validation }
func IsStoreUnavailable(err error) bool { return KindOf(err) == StoreUnavailable }

// WithStage returns a copy of err tagged with stage. Unclassified errors
// are wrapped without a kind, so they still map to 500.
func WithStage(err error, stage string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		cp.Stage = stage
		return &cp
	}
	return &Error{Stage: stage, Message: "internal server error", Err: err}
}

// HTTPStatus maps a kind to a response status.
func HTTPStatus(k Kind) int {
	switch k {
	case NotFound, BrokenLink:
		return http.StatusNotFound
	case Validation:
		return http.StatusBadRequest
	case StoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
