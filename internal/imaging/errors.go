package imaging

import (
	"errors"
	"fmt"
)

// Class groups error kinds by the stage that reports them.
type Class string

const (
	ClassDecode     Class = "decode"
	ClassGeometry   Class = "geometry"
	ClassEncode     Class = "encode"
	ClassValidation Class = "validation"
	ClassInternal   Class = "internal"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindUnsupportedFormat
	KindTruncated
	KindCorrupt
	KindTooLarge
	KindOutOfBounds
	KindDegenerateRegion
	KindInvalidQuality
	KindUnsupportedOutputFormat
	KindEmptyInput
	KindMalformedRequest
)

var kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindUnsupportedFormat:       "unsupported format",
	KindTruncated:               "truncated stream",
	KindCorrupt:                 "corrupt stream",
	KindTooLarge:                "image too large",
	KindOutOfBounds:             "region out of bounds",
	KindDegenerateRegion:        "degenerate region",
	KindInvalidQuality:          "invalid quality",
	KindUnsupportedOutputFormat: "unsupported output format",
	KindEmptyInput:              "empty input",
	KindMalformedRequest:        "malformed request",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) Class() Class {
	switch k {
	case KindUnsupportedFormat, KindTruncated, KindCorrupt, KindTooLarge:
		return ClassDecode
	case KindOutOfBounds, KindDegenerateRegion:
		return ClassGeometry
	case KindInvalidQuality, KindUnsupportedOutputFormat:
		return ClassEncode
	case KindEmptyInput, KindMalformedRequest:
		return ClassValidation
	default:
		return ClassInternal
	}
}

// Error is the single error type returned by the pipeline. Offset is the
// byte position reached in the source stream, or -1 when not applicable.
type Error struct {
	Kind   Kind
	Op     string
	Offset int64
	Err    error
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Offset: -1, Err: err}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error: %s", e.Kind.Class(), e.Kind)
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at byte %d", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of op, offset or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrUnsupportedFormat       = &Error{Kind: KindUnsupportedFormat, Offset: -1}
	ErrTruncated               = &Error{Kind: KindTruncated, Offset: -1}
	ErrCorrupt                 = &Error{Kind: KindCorrupt, Offset: -1}
	ErrTooLarge                = &Error{Kind: KindTooLarge, Offset: -1}
	ErrOutOfBounds             = &Error{Kind: KindOutOfBounds, Offset: -1}
	ErrDegenerateRegion        = &Error{Kind: KindDegenerateRegion, Offset: -1}
	ErrInvalidQuality          = &Error{Kind: KindInvalidQuality, Offset: -1}
	ErrUnsupportedOutputFormat = &Error{Kind: KindUnsupportedOutputFormat, Offset: -1}
	ErrEmptyInput              = &Error{Kind: KindEmptyInput, Offset: -1}
	ErrMalformedRequest        = &Error{Kind: KindMalformedRequest, Offset: -1}
)

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsClass(err error, class Class) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind.Class() == class
}
