// Package apierr defines the closed set of domain error kinds and maps them
// to HTTP status codes, in the idiom of the teacher's
// apps/mcp-server/internal/api/errors.go APIError/ErrorCode pair.
package apierr

import (
	"fmt"
	"net/http"
)

// Kind is the closed set of domain error kinds from spec §7. It is a Go
// enum (not an open string const set) so every switch over it can be
// exhaustively checked.
type Kind int

const (
	NodeNotFound Kind = iota
	ArcNotFound
	RelationshipNotFound
	InvalidTimeRange
	NodeExceedsTimeline
	SplitOutOfRange
	InvalidHierarchy
	GenerationInProgress
	NodeLocked
	NoNotes
	ModelNotLoaded
	InfillFailed
	ChannelClosed
	Serialization
	InvalidOperation
)

func (k Kind) String() string {
	switch k {
	case NodeNotFound:
		return "NodeNotFound"
	case ArcNotFound:
		return "ArcNotFound"
	case RelationshipNotFound:
		return "RelationshipNotFound"
	case InvalidTimeRange:
		return "InvalidTimeRange"
	case NodeExceedsTimeline:
		return "NodeExceedsTimeline"
	case SplitOutOfRange:
		return "SplitOutOfRange"
	case InvalidHierarchy:
		return "InvalidHierarchy"
	case GenerationInProgress:
		return "GenerationInProgress"
	case NodeLocked:
		return "NodeLocked"
	case NoNotes:
		return "NoNotes"
	case ModelNotLoaded:
		return "ModelNotLoaded"
	case InfillFailed:
		return "InfillFailed"
	case ChannelClosed:
		return "ChannelClosed"
	case Serialization:
		return "Serialization"
	case InvalidOperation:
		return "InvalidOperation"
	default:
		return "Unknown"
	}
}

// HTTPStatus maps a Kind to the status code named in spec §6: missing
// node/arc/relationship -> 404, invalid input (including InvalidOperation)
// -> 400, a running per-node diffusion conflict -> 409, a closed manager
// channel -> 503, and everything else domain-shaped -> 422. Errors that
// are not an *Error at all map to 500 (see StatusFor).
func (k Kind) HTTPStatus() int {
	switch k {
	case NodeNotFound, ArcNotFound, RelationshipNotFound:
		return http.StatusNotFound
	case InvalidTimeRange, NodeExceedsTimeline, SplitOutOfRange, InvalidHierarchy, NoNotes:
		return http.StatusBadRequest
	case GenerationInProgress, NodeLocked:
		return http.StatusConflict
	case ModelNotLoaded:
		return http.StatusBadRequest
	case ChannelClosed:
		return http.StatusServiceUnavailable
	case InfillFailed, Serialization:
		return http.StatusUnprocessableEntity
	case InvalidOperation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error carrying a closed Kind, a human-readable message,
// and an optional wrapped cause. The HTTP layer maps it to a status code via
// Kind.HTTPStatus without inspecting the message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an *Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error that carries cause as its Unwrap target.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As reports whether err (or anything in its chain) is an *Error, returning
// it if so. Thin convenience wrapper so callers don't need to import
// the standard errors package just for this one check.
func As(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// StatusFor returns the HTTP status for err: the Kind's mapped status if err
// is (or wraps) an *Error, otherwise 500.
func StatusFor(err error) int {
	if e, ok := As(err); ok {
		return e.Kind.HTTPStatus()
	}
	return http.StatusInternalServerError
}
