package wgserv

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownField is returned by Parse when the document carries a field
	// outside the schema.
	ErrUnknownField = errors.New("unknown field")
	// ErrMalformedConfig is returned by Parse for missing, mistyped or
	// unparsable fields.
	ErrMalformedConfig = errors.New("malformed config")
	// ErrInvalidKey is returned by Parse when a key is not base64 of 32 bytes.
	ErrInvalidKey = errors.New("invalid key")
)

// ValidationKind classifies a ValidationError.
type ValidationKind uint8

const (
	KindMalformed ValidationKind = iota
	KindUnknownField
	KindInvalidKey
)

func (k ValidationKind) sentinel() error {
	switch k {
	case KindUnknownField:
		return ErrUnknownField
	case KindInvalidKey:
		return ErrInvalidKey
	default:
		return ErrMalformedConfig
	}
}

// ValidationError describes why configuration text was rejected. Field names
// the offending configuration key when one can be identified.
type ValidationError struct {
	Kind  ValidationKind
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	switch {
	case e.Kind == KindInvalidKey:
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%v: %s: %v", e.Kind.sentinel(), e.Field, e.Err)
	default:
		return fmt.Sprintf("%v: %v", e.Kind.sentinel(), e.Err)
	}
}

func (e *ValidationError) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}

func malformed(field string, err error) *ValidationError {
	return &ValidationError{Kind: KindMalformed, Field: field, Err: err}
}
