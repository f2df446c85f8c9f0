package workflow

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindNotFound
	KindConflict
	KindInvalid
)

// Error is a failure the API reports to the caller with a status code.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// StatusCode HTTP status for the error
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// IsKind Report whether err is a workflow error of the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func unauthorized() error {
	return &Error{Kind: KindUnauthorized, Message: "Unauthorized request"}
}

func notFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

// notFoundOr Turn a missing record into a NotFound error, wrapping anything else
func notFoundOr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("%s", message)
	}
	return fmt.Errorf("%s: %w", message, err)
}

// duplicateAs Report a unique index violation as a conflict with message
func duplicateAs(err error, message string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return conflict("%s", message)
	}
	return err
}
