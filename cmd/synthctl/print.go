package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/muesli/termenv"

	"github.com/nerrad567/synthd/internal/history"
	"github.com/nerrad567/synthd/internal/supervisor"
)

// statusColors are ANSI colour numbers per status. Output that is not a
// terminal gets no escapes.
var statusColors = map[string]string{
	string(supervisor.StatusRunning): "2",
	string(supervisor.StatusStopped): "8",
	string(supervisor.StatusErrored): "3",
	string(supervisor.StatusCrashed): "1",
}

func colorStatus(out *termenv.Output, status string) string {
	color, ok := statusColors[status]
	if !ok {
		return status
	}
	return out.String(status).Foreground(out.Color(color)).String()
}

func printSnapshot(w io.Writer, snap supervisor.Snapshot) {
	out := termenv.NewOutput(w)

	fmt.Fprintf(w, "Status:    %s\n", colorStatus(out, string(snap.Status)))
	fmt.Fprintf(w, "Engine:    %s:%d\n", snap.Host, snap.Port)
	if snap.Session != "" {
		fmt.Fprintf(w, "Session:   %s\n", snap.Session)
	}
	if snap.PID != 0 {
		fmt.Fprintf(w, "PID:       %d\n", snap.PID)
	}
	if snap.LocalPort != 0 {
		fmt.Fprintf(w, "Socket:    udp/%d\n", snap.LocalPort)
	}
	if snap.Status == supervisor.StatusRunning {
		fmt.Fprintf(w, "Uptime:    %s\n", snap.Uptime.Truncate(time.Second))
	}
	if snap.LastError != "" {
		fmt.Fprintf(w, "Error:     %s\n", snap.LastError)
	}

	c := snap.Counters
	fmt.Fprintf(w, "Boots:     %d (%d failed), crashes %d\n", c.Boots, c.BootFailures, c.Crashes)
	fmt.Fprintf(w, "Datagrams: %d sent (%d failed), %d received\n", c.Sent, c.SendErrors, c.Received)
}

func printHistory(w io.Writer, result history.ListResult) error {
	if len(result.Events) == 0 {
		_, err := fmt.Fprintln(w, "No lifecycle events.")
		return err
	}

	out := termenv.NewOutput(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSESSION\tKIND\tSTATUS\tPREVIOUS\tDETAIL")
	for _, e := range result.Events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime),
			orDash(e.Session),
			e.Kind,
			colorStatus(out, e.Status),
			orDash(e.Previous),
			orDash(eventDetail(e)),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	shown := result.Offset + len(result.Events)
	if shown < result.Total {
		_, err := fmt.Fprintf(w, "\n%d of %d events; use --offset %d for more.\n", shown, result.Total, shown)
		return err
	}
	return nil
}

func eventDetail(e history.Event) string {
	switch {
	case e.Detail != "" && e.Reason != "":
		return e.Reason + ": " + e.Detail
	case e.Detail != "":
		return e.Detail
	case e.ExitCode != 0:
		return e.Reason + " (exit " + strconv.Itoa(e.ExitCode) + ")"
	default:
		return e.Reason
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, werr := w.Write(raw)
		return werr
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
