package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the recurring services unwraps to
// one of these.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrCollaboratorFailure = errors.New("pattern collaborator failure")
)

// Error carries the kind of failure together with the offending identifier.
type Error struct {
	Kind     error
	Resource string
	ID       string
	Message  string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Message != "" {
		msg = e.Message
	}
	switch {
	case e.Resource != "" && e.ID != "":
		return fmt.Sprintf("%s %q: %s", e.Resource, e.ID, msg)
	case e.Resource != "":
		return fmt.Sprintf("%s: %s", e.Resource, msg)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// NotFound reports that resource id does not exist.
func NotFound(resource, id string) error {
	return &Error{Kind: ErrNotFound, Resource: resource, ID: id, Message: "not found"}
}

// InvalidRequest reports a request that cannot be served as given.
func InvalidRequest(resource, id, message string) error {
	return &Error{Kind: ErrInvalidRequest, Resource: resource, ID: id, Message: message}
}

// CollaboratorFailure wraps an error from the pattern collaborator.
func CollaboratorFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrCollaboratorFailure, err)
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidRequest reports whether err is an InvalidRequest error.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}
