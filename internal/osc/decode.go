package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Decode parses OSC wire bytes into a Message.
//
// Every byte of data must be accounted for: trailing bytes after the last
// argument are an error, as is data that stops short of what the type tags
// promise. A failing Decode never returns a partial message.
//
// Parameters:
//   - data: A complete OSC message (for example one UDP datagram)
//
// Returns:
//   - Message: Decoded address and arguments (int32, float32, string, []byte)
//   - error: One of the osc.Err* sentinels, possibly wrapped with detail
func Decode(data []byte) (Message, error) {
	if len(data) < alignment {
		return Message{}, fmt.Errorf("%w: too short (%d bytes, need at least %d)", ErrInvalidMessage, len(data), alignment)
	}

	address, cursor, err := decodeAddress(data)
	if err != nil {
		return Message{}, err
	}

	if cursor == len(data) {
		return Message{Address: address}, nil
	}

	tags, cursor, err := decodeTypeTags(data, cursor)
	if err != nil {
		return Message{}, err
	}

	var args []any
	for _, tag := range tags {
		var arg any
		arg, cursor, err = decodeArg(data, cursor, tag)
		if err != nil {
			return Message{}, err
		}
		args = append(args, arg)
	}

	if cursor != len(data) {
		return Message{}, fmt.Errorf("%w: %d trailing bytes after arguments", ErrInvalidMessage, len(data)-cursor)
	}

	return Message{Address: address, Args: args}, nil
}

// decodeAddress reads the leading address string and returns the cursor
// positioned at the first byte after its padding.
func decodeAddress(data []byte) (string, int, error) {
	if data[0] != '/' {
		return "", 0, fmt.Errorf("%w: must start with '/'", ErrMalformedAddress)
	}

	end := bytes.IndexByte(data, 0)
	if end < 0 {
		return "", 0, fmt.Errorf("%w: missing NUL terminator", ErrMalformedAddress)
	}
	if !printable(data[:end]) {
		return "", 0, fmt.Errorf("%w: non-printable byte", ErrMalformedAddress)
	}

	next := paddedLen(end)
	if next > len(data) || !allZero(data[end:next]) {
		return "", 0, fmt.Errorf("%w: terminator does not reach a 4-byte boundary", ErrMalformedAddress)
	}

	return string(data[:end]), next, nil
}

// decodeTypeTags reads the ",tags" section starting at cursor.
func decodeTypeTags(data []byte, cursor int) ([]byte, int, error) {
	if data[cursor] != typeTagPrefix {
		return nil, 0, fmt.Errorf("%w: expected ',' at offset %d, got %q", ErrMalformedTypeTag, cursor, data[cursor])
	}

	rel := bytes.IndexByte(data[cursor:], 0)
	if rel < 0 {
		return nil, 0, fmt.Errorf("%w: missing NUL terminator", ErrMalformedTypeTag)
	}

	next := cursor + paddedLen(rel)
	if next > len(data) || !allZero(data[cursor+rel:next]) {
		return nil, 0, fmt.Errorf("%w: padding does not reach a 4-byte boundary", ErrMalformedTypeTag)
	}

	tags := make([]byte, rel-1)
	copy(tags, data[cursor+1:cursor+rel])
	return tags, next, nil
}

// decodeArg reads one argument of the given tag at cursor.
func decodeArg(data []byte, cursor int, tag byte) (any, int, error) {
	remaining := len(data) - cursor

	switch tag {
	case TagInt32:
		if remaining < alignment {
			return nil, 0, fmt.Errorf("%w: int32 needs 4 bytes, %d left", ErrTruncatedMessage, remaining)
		}
		v := int32(binary.BigEndian.Uint32(data[cursor:])) //nolint:gosec // two's complement reinterpretation
		return v, cursor + alignment, nil

	case TagFloat32:
		if remaining < alignment {
			return nil, 0, fmt.Errorf("%w: float32 needs 4 bytes, %d left", ErrTruncatedMessage, remaining)
		}
		v := math.Float32frombits(binary.BigEndian.Uint32(data[cursor:]))
		return v, cursor + alignment, nil

	case TagString:
		end := bytes.IndexByte(data[cursor:], 0)
		if end < 0 {
			return nil, 0, fmt.Errorf("%w: string at offset %d has no NUL terminator", ErrMalformedArgument, cursor)
		}
		next := cursor + paddedLen(end)
		if next > len(data) || !allZero(data[cursor+end:next]) {
			return nil, 0, fmt.Errorf("%w: string at offset %d is not padded", ErrMalformedArgument, cursor)
		}
		return string(data[cursor : cursor+end]), next, nil

	case TagBlob:
		if remaining < alignment {
			return nil, 0, fmt.Errorf("%w: blob length needs 4 bytes, %d left", ErrTruncatedMessage, remaining)
		}
		size := binary.BigEndian.Uint32(data[cursor:])
		start := cursor + alignment
		if uint64(size) > uint64(len(data)-start) {
			return nil, 0, fmt.Errorf("%w: blob declares %d bytes, %d left", ErrMalformedArgument, size, len(data)-start)
		}
		end := start + int(size)
		next := end + blobPadding(int(size))
		if next > len(data) || !allZero(data[end:next]) {
			return nil, 0, fmt.Errorf("%w: blob at offset %d is not padded", ErrMalformedArgument, cursor)
		}
		blob := make([]byte, size)
		copy(blob, data[start:end])
		return blob, next, nil

	default:
		return nil, 0, &UnsupportedTypeTagError{Tag: tag}
	}
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
