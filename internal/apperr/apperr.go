package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure by how the shopper should be told about it
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConnectivity Kind = "connectivity"
	KindDomain       Kind = "domain"
	KindProcessing   Kind = "processing"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// Metadata describes how a kind is rendered
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByKind = map[Kind]Metadata{
	KindValidation: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "Please correct the highlighted fields",
		DetailsAllowed: true,
	},
	KindConnectivity: {
		HTTPStatus:    http.StatusServiceUnavailable,
		Retryable:     true,
		PublicMessage: "Unable to reach the server. Check your connection and try again.",
	},
	KindDomain: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "The request could not be completed",
	},
	KindProcessing: {
		HTTPStatus:    http.StatusBadGateway,
		Retryable:     true,
		PublicMessage: "We couldn't place your order. Please try again.",
	},
	KindNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "Resource not found",
	},
	KindConflict: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "Request conflicts with the current state",
	},
	KindInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "Internal server error",
	},
}

// MetadataFor returns the rendering rules for kind. Unknown kinds are
// treated as internal.
func MetadataFor(kind Kind) Metadata {
	if meta, ok := metadataByKind[kind]; ok {
		return meta
	}
	return metadataByKind[KindInternal]
}

// Error is a classified error with a shopper-facing message
type Error struct {
	kind    Kind
	message string
	status  int
	fields  map[string]string
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{kind: kind, message: message, cause: err}
}

// Validation builds a validation error carrying per-field messages.
func Validation(fields map[string]string, cause error) *Error {
	return &Error{kind: KindValidation, fields: fields, cause: cause}
}

func (e *Error) Kind() Kind {
	if e == nil {
		return KindInternal
	}
	return e.kind
}

// Message returns the shopper-facing message, falling back to the kind's
// public message.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	if e.message != "" {
		return e.message
	}
	return MetadataFor(e.kind).PublicMessage
}

func (e *Error) Fields() map[string]string {
	if e == nil {
		return nil
	}
	return e.fields
}

// WithStatus overrides the HTTP status of the kind, e.g. 401 for a domain
// error raised by bad credentials.
func (e *Error) WithStatus(status int) *Error {
	e.status = status
	return e
}

// Status returns the HTTP status to render.
func (e *Error) Status() int {
	if e == nil {
		return http.StatusInternalServerError
	}
	if e.status != 0 {
		return e.status
	}
	return MetadataFor(e.kind).HTTPStatus
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.Message(), e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.Message())
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts the first *Error in err's chain.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return nil
}

// KindOf returns the kind of err, or KindInternal when it is unclassified.
func KindOf(err error) Kind {
	if typed := As(err); typed != nil {
		return typed.kind
	}
	return KindInternal
}
