package process

import (
	"fmt"
	"time"
)

// EventKind identifies what an Event reports.
type EventKind string

const (
	// EventOutput carries a chunk of stdout or stderr.
	EventOutput EventKind = "output"

	// EventExitedNormally means the process exited with status 0.
	EventExitedNormally EventKind = "exited_normally"

	// EventExitedWithCode means the process exited with a non-zero status.
	EventExitedWithCode EventKind = "exited_with_code"

	// EventDied means the process ended abnormally: a signal, a failed wait,
	// or the watchdog giving up on it.
	EventDied EventKind = "died"
)

// Stream names the output pipe a chunk came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Event is a notification from a running Handle.
//
// Output events fill Stream and Data. ExitedWithCode fills Code. Died fills
// Reason. Every event carries the time it was produced.
type Event struct {
	Kind   EventKind
	Stream Stream
	Data   []byte
	Code   int
	Reason string
	Time   time.Time
}

// Terminal reports whether the event ends the process's life. A Handle emits
// exactly one terminal event.
func (e Event) Terminal() bool {
	return e.Kind != EventOutput
}

func (e Event) String() string {
	switch e.Kind {
	case EventOutput:
		return fmt.Sprintf("%s: %q", e.Stream, e.Data)
	case EventExitedNormally:
		return "exited normally"
	case EventExitedWithCode:
		return fmt.Sprintf("exited with code %d", e.Code)
	case EventDied:
		return "died: " + e.Reason
	default:
		return string(e.Kind)
	}
}

func outputEvent(stream Stream, data []byte) Event {
	return Event{Kind: EventOutput, Stream: stream, Data: data, Time: time.Now()}
}

func exitedNormally() Event {
	return Event{Kind: EventExitedNormally, Time: time.Now()}
}

func exitedWithCode(code int) Event {
	return Event{Kind: EventExitedWithCode, Code: code, Time: time.Now()}
}

func died(reason string) Event {
	return Event{Kind: EventDied, Reason: reason, Time: time.Now()}
}
