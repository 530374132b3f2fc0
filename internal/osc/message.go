package osc

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// OSC type tags supported by this codec.
const (
	TagInt32   byte = 'i'
	TagFloat32 byte = 'f'
	TagString  byte = 's'
	TagBlob    byte = 'b'
)

// Wire format constants.
const (
	// alignment is the OSC word size; every section ends on a multiple of it.
	alignment = 4

	// typeTagPrefix starts the type tag section.
	typeTagPrefix = ','
)

// Message is a single OSC message.
//
// Args holds int32, float32, string or []byte values. Messages built by
// Decode only ever contain those four types; messages passed to Encode may
// also use the wider Go integer and float kinds accepted by Encode.
type Message struct {
	Address string `json:"address"`
	Args    []any  `json:"args"`
}

// NewMessage creates a message with the given address and arguments.
func NewMessage(address string, args ...any) Message {
	return Message{Address: address, Args: args}
}

// MarshalBinary encodes the message to OSC wire format.
func (m Message) MarshalBinary() ([]byte, error) {
	return Encode(m.Address, m.Args...)
}

// TypeTags returns the tag string (without the leading ',') Encode would
// produce for the message's arguments.
func (m Message) TypeTags() (string, error) {
	tags := make([]byte, 0, len(m.Args))
	for i, arg := range m.Args {
		tag, _, err := normalizeArg(i, arg)
		if err != nil {
			return "", err
		}
		tags = append(tags, tag)
	}
	return string(tags), nil
}

// String renders the message for logs, e.g. "/n_free 1000".
func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.Address)
	for _, arg := range m.Args {
		b.WriteByte(' ')
		switch v := arg.(type) {
		case string:
			fmt.Fprintf(&b, "%q", v)
		case []byte:
			fmt.Fprintf(&b, "<blob %d>", len(v))
		default:
			fmt.Fprintf(&b, "%v", v)
		}
	}
	return b.String()
}

// Encode serializes an address and its arguments to OSC wire format.
//
// Parameters:
//   - address: OSC address pattern, printable ASCII starting with '/'
//   - args: int32/float32/string/[]byte values (see package doc for the
//     full set of accepted Go kinds)
//
// Returns:
//   - []byte: The encoded message, always a multiple of 4 bytes long
//   - error: ErrInvalidAddress or an *UnsupportedTypeError
func Encode(address string, args ...any) ([]byte, error) {
	if !validAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	tags := make([]byte, 0, len(args)+1)
	tags = append(tags, typeTagPrefix)
	values := make([]any, len(args))
	size := paddedLen(len(address))

	for i, arg := range args {
		tag, v, err := normalizeArg(i, arg)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
		values[i] = v
		size += argSize(tag, v)
	}

	if len(args) > 0 {
		size += paddedLen(len(tags))
	}

	buf := make([]byte, 0, size)
	buf = appendPadded(buf, []byte(address))
	if len(args) == 0 {
		return buf, nil
	}
	buf = appendPadded(buf, tags)

	for i, v := range values {
		switch tags[i+1] {
		case TagInt32:
			buf = binary.BigEndian.AppendUint32(buf, uint32(v.(int32))) //nolint:gosec // two's complement reinterpretation
		case TagFloat32:
			buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(v.(float32)))
		case TagString:
			buf = appendPadded(buf, []byte(v.(string)))
		case TagBlob:
			blob := v.([]byte)
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(blob))) //nolint:gosec // blob sizes are far below 4GiB
			buf = append(buf, blob...)
			buf = appendZeros(buf, blobPadding(len(blob)))
		}
	}

	return buf, nil
}

// normalizeArg picks the type tag for a Go value and converts it to the
// canonical representation written on the wire.
func normalizeArg(index int, arg any) (byte, any, error) {
	switch v := arg.(type) {
	case int32:
		return TagInt32, v, nil
	case int:
		return intArg(index, arg, int64(v))
	case int8:
		return TagInt32, int32(v), nil
	case int16:
		return TagInt32, int32(v), nil
	case int64:
		return intArg(index, arg, v)
	case uint8:
		return TagInt32, int32(v), nil
	case uint16:
		return TagInt32, int32(v), nil
	case uint32:
		return uintArg(index, arg, uint64(v))
	case uint64:
		return uintArg(index, arg, v)
	case uint:
		return uintArg(index, arg, uint64(v))
	case float32:
		return TagFloat32, v, nil
	case float64:
		return TagFloat32, float32(v), nil
	case string:
		if printable(v) {
			return TagString, v, nil
		}
		return TagBlob, []byte(v), nil
	case []byte:
		if v == nil {
			v = []byte{}
		}
		return TagBlob, v, nil
	default:
		return 0, nil, &UnsupportedTypeError{Index: index, Value: arg}
	}
}

func intArg(index int, orig any, v int64) (byte, any, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, nil, &UnsupportedTypeError{Index: index, Value: orig}
	}
	return TagInt32, int32(v), nil
}

func uintArg(index int, orig any, v uint64) (byte, any, error) {
	if v > math.MaxInt32 {
		return 0, nil, &UnsupportedTypeError{Index: index, Value: orig}
	}
	return TagInt32, int32(v), nil //nolint:gosec // bounds checked above
}

// argSize returns the number of wire bytes a normalized argument occupies.
func argSize(tag byte, v any) int {
	switch tag {
	case TagString:
		return paddedLen(len(v.(string)))
	case TagBlob:
		n := len(v.([]byte))
		return alignment + n + blobPadding(n)
	default:
		return alignment
	}
}

// validAddress reports whether s can be used as an outgoing OSC address.
func validAddress(s string) bool {
	return len(s) > 0 && s[0] == '/' && printable(s)
}

// printable reports whether every byte of s is in the range 32-126.
func printable[T ~string | ~[]byte](s T) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 32 || s[i] > 126 {
			return false
		}
	}
	return true
}

// paddedLen returns the length of a NUL-terminated string section: the next
// multiple of 4 strictly greater than n.
func paddedLen(n int) int {
	return (n/alignment + 1) * alignment
}

// blobPadding returns the NULs needed after n blob bytes (0-3).
func blobPadding(n int) int {
	return (alignment - n%alignment) % alignment
}

func appendPadded(buf, s []byte) []byte {
	buf = append(buf, s...)
	return appendZeros(buf, paddedLen(len(s))-len(s))
}

func appendZeros(buf []byte, n int) []byte {
	for range n {
		buf = append(buf, 0)
	}
	return buf
}
