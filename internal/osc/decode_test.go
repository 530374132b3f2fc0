package osc

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Message
	}{
		{
			name: "address only",
			data: []byte{'/', 'q', 'u', 'i', 't', 0, 0, 0},
			want: Message{Address: "/quit"},
		},
		{
			name: "empty type tag section",
			data: []byte{'/', 'q', 0, 0, ',', 0, 0, 0},
			want: Message{Address: "/q"},
		},
		{
			name: "done reply",
			data: []byte{
				'/', 'd', 'o', 'n', 'e', 0, 0, 0,
				',', 's', 0, 0,
				'/', 'n', 'o', 't', 'i', 'f', 'y', 0,
			},
			want: Message{Address: "/done", Args: []any{"/notify"}},
		},
		{
			name: "status reply",
			data: []byte{
				'/', 's', 't', 'a', 't', 'u', 's', '.', 'r', 'e', 'p', 'l', 'y', 0, 0, 0,
				',', 'i', 'f', 0,
				0, 0, 0, 1,
				0x3F, 0x80, 0, 0,
			},
			want: Message{Address: "/status.reply", Args: []any{int32(1), float32(1)}},
		},
		{
			name: "blob",
			data: []byte{
				'/', 'b', 0, 0,
				',', 'b', 0, 0,
				0, 0, 0, 2,
				0xAB, 0xCD, 0, 0,
			},
			want: Message{Address: "/b", Args: []any{[]byte{0xAB, 0xCD}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{
			name:    "empty",
			data:    nil,
			wantErr: ErrInvalidMessage,
		},
		{
			name:    "too short",
			data:    []byte{'/', 0, 0},
			wantErr: ErrInvalidMessage,
		},
		{
			name:    "no leading slash",
			data:    []byte{'a', 'b', 0, 0},
			wantErr: ErrMalformedAddress,
		},
		{
			name:    "address without terminator",
			data:    []byte{'/', 'a', 'b', 'c'},
			wantErr: ErrMalformedAddress,
		},
		{
			name:    "non-printable address",
			data:    []byte{'/', 0x01, 0, 0},
			wantErr: ErrMalformedAddress,
		},
		{
			name:    "address padding cut short",
			data:    []byte{'/', 'a', 'b', 'c', 0},
			wantErr: ErrMalformedAddress,
		},
		{
			name:    "address padding not zero",
			data:    []byte{'/', 'a', 0, 'x'},
			wantErr: ErrMalformedAddress,
		},
		{
			name:    "missing comma",
			data:    []byte{'/', 'a', 0, 0, 'i', 0, 0, 0},
			wantErr: ErrMalformedTypeTag,
		},
		{
			name:    "type tags without terminator",
			data:    []byte{'/', 'a', 0, 0, ',', 'i', 'i', 'i'},
			wantErr: ErrMalformedTypeTag,
		},
		{
			name:    "type tag padding cut short",
			data:    []byte{'/', 'a', 0, 0, ',', 'i', 'i', 'i', 0},
			wantErr: ErrMalformedTypeTag,
		},
		{
			name:    "int without payload",
			data:    []byte{'/', 't', 'e', 's', 't', 0, 0, 0, ',', 'i', 0, 0},
			wantErr: ErrTruncatedMessage,
		},
		{
			name:    "float cut short",
			data:    []byte{'/', 'a', 0, 0, ',', 'f', 0, 0, 0x3F, 0x80},
			wantErr: ErrTruncatedMessage,
		},
		{
			name:    "blob without length",
			data:    []byte{'/', 'a', 0, 0, ',', 'b', 0, 0, 0, 0},
			wantErr: ErrTruncatedMessage,
		},
		{
			name:    "blob shorter than declared",
			data:    []byte{'/', 'a', 0, 0, ',', 'b', 0, 0, 0, 0, 0, 8, 1, 2, 3, 4},
			wantErr: ErrMalformedArgument,
		},
		{
			name:    "blob padding missing",
			data:    []byte{'/', 'a', 0, 0, ',', 'b', 0, 0, 0, 0, 0, 1, 0xFF},
			wantErr: ErrMalformedArgument,
		},
		{
			name:    "string without terminator",
			data:    []byte{'/', 'a', 0, 0, ',', 's', 0, 0, 'a', 'b', 'c', 'd'},
			wantErr: ErrMalformedArgument,
		},
		{
			name:    "unknown tag",
			data:    []byte{'/', 'a', 0, 0, ',', 'T', 0, 0},
			wantErr: ErrUnsupportedTypeTag,
		},
		{
			name:    "trailing bytes",
			data:    []byte{'/', 'a', 0, 0, ',', 'i', 0, 0, 0, 0, 0, 1, 0, 0, 0, 0},
			wantErr: ErrInvalidMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
			}
			if got.Address != "" || got.Args != nil {
				t.Errorf("Decode() returned partial message %#v on error", got)
			}
		})
	}
}

func TestDecode_UnsupportedTypeTagCarriesTag(t *testing.T) {
	_, err := Decode([]byte{'/', 'a', 0, 0, ',', 'i', 'h', 0, 0, 0, 0, 1})
	var tagErr *UnsupportedTypeTagError
	if !errors.As(err, &tagErr) {
		t.Fatalf("Decode() error = %v, want *UnsupportedTypeTagError", err)
	}
	if tagErr.Tag != 'h' {
		t.Errorf("Tag = %q, want %q", tagErr.Tag, 'h')
	}
}

func TestDecode_DoesNotAliasInput(t *testing.T) {
	data, err := Encode("/b", []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	m, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	for i := range data {
		data[i] = 0
	}
	if got := m.Args[0].([]byte); got[0] != 1 {
		t.Errorf("blob changed with input buffer: % X", got)
	}
}
