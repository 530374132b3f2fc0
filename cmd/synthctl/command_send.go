package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/synthd/internal/osc"
)

func newSendCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send <address> [args...]",
		Short: "Send an OSC message to the engine",
		Long: `Send an OSC message to the engine.

Arguments are typed by their form: whole numbers become int32, other numbers
float32 and everything else a string. A prefix forces the type:

  i:42    int32
  f:1     float32
  s:440   string
  b:AAEC  blob, base64 encoded

Example:

  synthctl send /s_new default i:1000 0 1 freq 440.0`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) < 1 {
				return errors.New("an OSC address is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := buildMessage(args[0], args[1:])
			if err != nil {
				return err
			}

			c, err := newClient(opts.server)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			var resp sendResponse
			var raw []byte
			if err := c.do(ctx, http.MethodPost, "/send", msg, &resp, &raw); err != nil {
				return err
			}

			if opts.json {
				return printJSON(cmd.OutOrStdout(), raw)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s ,%s\n", resp.Address, resp.TypeTags)
			return nil
		},
	}
}

// sendResponse mirrors the daemon's acknowledgement.
type sendResponse struct {
	Status   string `json:"status"`
	Address  string `json:"address"`
	TypeTags string `json:"type_tags"`
}

// buildMessage parses command-line arguments into an OSC message and checks
// it encodes before anything is sent.
func buildMessage(address string, raw []string) (osc.Message, error) {
	args := make([]any, 0, len(raw))
	for i, s := range raw {
		arg, err := parseArg(s)
		if err != nil {
			return osc.Message{}, fmt.Errorf("argument %d (%q): %w", i+1, s, err)
		}
		args = append(args, arg)
	}

	msg := osc.NewMessage(address, args...)
	if _, err := msg.MarshalBinary(); err != nil {
		return osc.Message{}, err
	}
	return msg, nil
}

// parseArg types one command-line argument.
func parseArg(s string) (any, error) {
	if prefix, value, ok := strings.Cut(s, ":"); ok {
		switch prefix {
		case "i":
			n, err := strconv.ParseInt(value, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("not an int32: %w", err)
			}
			return int32(n), nil
		case "f":
			f, err := parseFloat32(value)
			if err != nil {
				return nil, err
			}
			return f, nil
		case "s":
			return value, nil
		case "b":
			b, err := base64.StdEncoding.DecodeString(value)
			if err != nil {
				return nil, fmt.Errorf("not base64: %w", err)
			}
			return b, nil
		}
	}

	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int32(n), nil
	}
	if f, err := parseFloat32(s); err == nil {
		return f, nil
	}
	return s, nil
}

// parseFloat32 accepts finite values only; NaN and Inf cannot be sent as JSON.
func parseFloat32(s string) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("not a float32: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite float32: %s", s)
	}
	return float32(f), nil
}
