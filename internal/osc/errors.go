package osc

import (
	"errors"
	"fmt"
)

// Domain errors for the OSC codec.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidAddress is returned by Encode when the address is empty,
	// does not start with '/', or contains bytes outside 32-126.
	ErrInvalidAddress = errors.New("osc: invalid address")

	// ErrUnsupportedType is returned by Encode for argument values that have
	// no OSC representation.
	ErrUnsupportedType = errors.New("osc: unsupported argument type")

	// ErrInvalidMessage is returned by Decode for input that cannot be an OSC
	// message at all (too short, trailing bytes).
	ErrInvalidMessage = errors.New("osc: invalid message")

	// ErrMalformedAddress is returned when the address section is not a
	// '/'-prefixed printable string followed by NUL padding to a word boundary.
	ErrMalformedAddress = errors.New("osc: malformed address")

	// ErrMalformedTypeTag is returned when the type tag section is missing its
	// leading ',' or its NUL padding.
	ErrMalformedTypeTag = errors.New("osc: malformed type tag")

	// ErrTruncatedMessage is returned when the data ends before a fixed-size
	// argument promised by the type tags.
	ErrTruncatedMessage = errors.New("osc: truncated message")

	// ErrMalformedArgument is returned when a variable-size argument (string
	// or blob) is not properly terminated or padded.
	ErrMalformedArgument = errors.New("osc: malformed argument")

	// ErrUnsupportedTypeTag is returned for a type tag character this codec
	// does not understand.
	ErrUnsupportedTypeTag = errors.New("osc: unsupported type tag")
)

// UnsupportedTypeError names the argument value Encode could not represent.
type UnsupportedTypeError struct {
	// Index is the position of the value in the argument list.
	Index int
	// Value is the offending argument.
	Value any
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("%s: argument %d (%T) %v", ErrUnsupportedType, e.Index, e.Value, e.Value)
}

// Is reports whether target is ErrUnsupportedType.
func (e *UnsupportedTypeError) Is(target error) bool {
	return target == ErrUnsupportedType
}

// UnsupportedTypeTagError carries the unknown tag character found by Decode.
type UnsupportedTypeTagError struct {
	Tag byte
}

func (e *UnsupportedTypeTagError) Error() string {
	return fmt.Sprintf("%s %q", ErrUnsupportedTypeTag, e.Tag)
}

// Is reports whether target is ErrUnsupportedTypeTag.
func (e *UnsupportedTypeTagError) Is(target error) bool {
	return target == ErrUnsupportedTypeTag
}
