package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultServer  = "http://127.0.0.1:8570"
	defaultTimeout = 15 * time.Second
)

// options are the persistent flags shared by every command.
type options struct {
	server  string
	timeout time.Duration
	json    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "synthctl",
		Short:         "Control a synthd engine supervisor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.server, "server", serverFromEnv(), "synthd API base URL (env SYNTHD_API)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "request timeout")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON responses")

	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newBootCmd(opts))
	root.AddCommand(newQuitCmd(opts))
	root.AddCommand(newSendCmd(opts))
	root.AddCommand(newHistoryCmd(opts))

	return root
}

func serverFromEnv() string {
	if addr := strings.TrimSpace(os.Getenv("SYNTHD_API")); addr != "" {
		return addr
	}
	return defaultServer
}
