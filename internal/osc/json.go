package osc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// jsonBlob is the JSON form of a blob argument: {"blob": "<base64>"}.
type jsonBlob struct {
	Blob []byte `json:"blob"`
}

// jsonFloat forces a float tag for integral values: {"float": 2}.
type jsonFloat struct {
	Float *float64 `json:"float"`
}

type jsonMessage struct {
	Address string            `json:"address"`
	Args    []json.RawMessage `json:"args,omitempty"`
}

// MarshalJSON renders the message as {"address": "...", "args": [...]}.
//
// Integers are written as plain numbers, floats always carry a decimal
// point so they survive a round trip, strings are JSON strings and blobs are
// {"blob": "<base64>"} objects.
func (m Message) MarshalJSON() ([]byte, error) {
	out := jsonMessage{Address: m.Address, Args: make([]json.RawMessage, 0, len(m.Args))}

	for i, arg := range m.Args {
		tag, v, err := normalizeArg(i, arg)
		if err != nil {
			return nil, err
		}

		var raw []byte
		switch tag {
		case TagInt32:
			raw = strconv.AppendInt(nil, int64(v.(int32)), 10)
		case TagFloat32:
			f := v.(float32)
			if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
				return nil, fmt.Errorf("%w: argument %d is %v, not representable in JSON", ErrUnsupportedType, i, f)
			}
			s := strconv.FormatFloat(float64(f), 'g', -1, 32)
			if !strings.ContainsAny(s, ".eE") {
				s += ".0"
			}
			raw = []byte(s)
		case TagString:
			raw, err = json.Marshal(v.(string))
		case TagBlob:
			raw, err = json.Marshal(jsonBlob{Blob: v.([]byte)})
		}
		if err != nil {
			return nil, err
		}
		out.Args = append(out.Args, raw)
	}

	return json.Marshal(out)
}

// UnmarshalJSON parses the form produced by MarshalJSON.
//
// Numbers with a fraction or exponent become float32, integral numbers
// become int32 (or an error when out of range), strings stay strings,
// {"blob": "..."} becomes []byte and {"float": n} forces a float32.
func (m *Message) UnmarshalJSON(data []byte) error {
	var in jsonMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	args := make([]any, 0, len(in.Args))
	for i, raw := range in.Args {
		arg, err := parseJSONArg(raw)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
		args = append(args, arg)
	}
	if len(args) == 0 {
		args = nil
	}

	m.Address = in.Address
	m.Args = args
	return nil
}

func parseJSONArg(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty value", ErrUnsupportedType)
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return s, nil

	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, err
		}
		if _, ok := fields["blob"]; ok {
			var b jsonBlob
			if err := json.Unmarshal(trimmed, &b); err != nil {
				return nil, err
			}
			if b.Blob == nil {
				b.Blob = []byte{}
			}
			return b.Blob, nil
		}
		if _, ok := fields["float"]; ok {
			var f jsonFloat
			if err := json.Unmarshal(trimmed, &f); err != nil {
				return nil, err
			}
			if f.Float == nil {
				return nil, fmt.Errorf("%w: null float", ErrUnsupportedType)
			}
			return float32(*f.Float), nil
		}
		return nil, fmt.Errorf("%w: object must have a \"blob\" or \"float\" key", ErrUnsupportedType)

	default:
		num := json.Number(trimmed)
		if strings.ContainsAny(string(trimmed), ".eE") {
			f, err := num.Float64()
			if err != nil {
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, trimmed)
			}
			return float32(f), nil
		}
		n, err := num.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, trimmed)
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %d overflows int32", ErrUnsupportedType, n)
		}
		return int32(n), nil
	}
}
