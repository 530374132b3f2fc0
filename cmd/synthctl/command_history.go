package main

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nerrad567/synthd/internal/history"
)

func newHistoryCmd(opts *options) *cobra.Command {
	var (
		limit   int
		offset  int
		session string
		kind    string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List lifecycle events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(opts.server)
			if err != nil {
				return err
			}

			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}
			if session != "" {
				q.Set("session", session)
			}
			if kind != "" {
				q.Set("kind", kind)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			var result history.ListResult
			var raw []byte
			if err := c.do(ctx, http.MethodGet, "/history?"+q.Encode(), nil, &result, &raw); err != nil {
				return err
			}

			if opts.json {
				return printJSON(cmd.OutOrStdout(), raw)
			}
			return printHistory(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum events to show (1-500)")
	cmd.Flags().IntVar(&offset, "offset", 0, "events to skip")
	cmd.Flags().StringVar(&session, "session", "", "only events from this boot session")
	cmd.Flags().StringVar(&kind, "kind", "", "only events of this kind (status, transport_replaced, transport_lost)")

	return cmd
}
