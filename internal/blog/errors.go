package blog

import (
	"errors"

	"gorm.io/gorm"

	"github.com/sunublog/sunublog/internal/db"
)

// Kind classifies a domain failure
type Kind int

// Error kinds
const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a request-terminal domain failure
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrValidation     = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrAuthentication = &Error{Kind: KindAuthentication, Message: "unauthenticated"}
	ErrAuthorization  = &Error{Kind: KindAuthorization, Message: "forbidden"}
	ErrNotFound       = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict       = &Error{Kind: KindConflict, Message: "conflict"}
)

// ValidationError reports malformed input, optionally per field
func ValidationError(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// FieldError reports a single invalid field
func FieldError(field, message string) *Error {
	return ValidationError("The given data was invalid.", map[string]string{field: message})
}

// AuthenticationError reports a missing or invalid identity
func AuthenticationError(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

// AuthorizationError reports an identity lacking rights on an existing entity
func AuthorizationError(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

// NotFoundError reports an absent or hidden entity
func NotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// ConflictError reports a uniqueness or state violation
func ConflictError(message string, fields map[string]string) *Error {
	return &Error{Kind: KindConflict, Message: message, Fields: fields}
}

// KindOf returns the kind of err, or zero for infrastructure errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// conflictOnDuplicate turns a lost unique-index race into a ConflictError
func conflictOnDuplicate(err error, message string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, db.ErrSlugExhausted) {
		return ConflictError(message, nil)
	}
	return err
}
