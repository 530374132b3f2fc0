package main

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/nerrad567/synthd/internal/supervisor"
)

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the engine status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return engineRequest(cmd, opts, http.MethodGet, "/status")
		},
	}
}

func newBootCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "boot",
		Short: "Boot the engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return engineRequest(cmd, opts, http.MethodPost, "/boot")
		},
	}
}

func newQuitCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "quit",
		Short: "Stop the engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return engineRequest(cmd, opts, http.MethodPost, "/quit")
		},
	}
}

// engineRequest calls an endpoint that answers with a supervisor snapshot
// and prints it.
func engineRequest(cmd *cobra.Command, opts *options, method, path string) error {
	c, err := newClient(opts.server)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	var snap supervisor.Snapshot
	var raw []byte
	if err := c.do(ctx, method, path, nil, &snap, &raw); err != nil {
		return err
	}

	if opts.json {
		return printJSON(cmd.OutOrStdout(), raw)
	}
	printSnapshot(cmd.OutOrStdout(), snap)
	return nil
}
