package supervisor

import "time"

// Status is the lifecycle state of the engine.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusErrored Status = "errored"
	StatusCrashed Status = "crashed"
)

// UpdateKind says what an Update reports.
type UpdateKind string

const (
	// UpdateStatus is a lifecycle transition.
	UpdateStatus UpdateKind = "status"

	// UpdateTransportReplaced means a failed socket was swapped for a new one.
	UpdateTransportReplaced UpdateKind = "transport_replaced"

	// UpdateTransportLost means a failed socket could not be replaced.
	UpdateTransportLost UpdateKind = "transport_lost"
)

// Update is delivered to listeners on every state change.
type Update struct {
	Kind      UpdateKind `json:"kind"`
	Session   string     `json:"session,omitempty"`
	Status    Status     `json:"status"`
	Previous  Status     `json:"previous"`
	Reason    string     `json:"reason,omitempty"`
	Error     string     `json:"error,omitempty"`
	ExitCode  int        `json:"exit_code,omitempty"`
	PID       int        `json:"pid,omitempty"`
	LocalPort int        `json:"local_port,omitempty"`
	Time      time.Time  `json:"time"`
}

// Counters are cumulative totals since the supervisor was created.
type Counters struct {
	Boots                 uint64 `json:"boots"`
	BootFailures          uint64 `json:"boot_failures"`
	Crashes               uint64 `json:"crashes"`
	TransportFailures     uint64 `json:"transport_failures"`
	TransportReplacements uint64 `json:"transport_replacements"`
	Sent                  uint64 `json:"sent"`
	SendErrors            uint64 `json:"send_errors"`
	Received              uint64 `json:"received"`
	StaleEvents           uint64 `json:"stale_events"`
}

// Snapshot is a point-in-time view of the supervisor.
type Snapshot struct {
	Status    Status        `json:"status"`
	LastError string        `json:"last_error,omitempty"`
	Err       error         `json:"-"`
	Session   string        `json:"session,omitempty"`
	PID       int           `json:"pid,omitempty"`
	LocalPort int           `json:"local_port,omitempty"`
	Host      string        `json:"host"`
	Port      int           `json:"port"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	Uptime    time.Duration `json:"uptime"`
	Counters  Counters      `json:"counters"`
}
