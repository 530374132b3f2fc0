// Package history keeps a journal of supervisor lifecycle updates in the
// lifecycle_events table.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/synthd/internal/supervisor"
)

// timeLayout is fixed-width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Event is one journal entry.
type Event struct {
	ID        string    `json:"id"`
	Session   string    `json:"session,omitempty"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Previous  string    `json:"previous,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	ExitCode  int       `json:"exit_code,omitempty"`
	PID       int       `json:"pid,omitempty"`
	LocalPort int       `json:"local_port,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FromUpdate converts a supervisor update into an unsaved Event.
func FromUpdate(u supervisor.Update) Event {
	return Event{
		Session:   u.Session,
		Kind:      string(u.Kind),
		Status:    string(u.Status),
		Previous:  string(u.Previous),
		Reason:    u.Reason,
		Detail:    u.Error,
		ExitCode:  u.ExitCode,
		PID:       u.PID,
		LocalPort: u.LocalPort,
		CreatedAt: u.Time,
	}
}

// Filter controls which events List returns.
type Filter struct {
	Session string // optional: one boot session
	Kind    string // optional: status, transport_replaced, transport_lost
	Limit   int    // default 50, max 500
	Offset  int
}

// ListResult is one page of events, newest first.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Repository stores lifecycle events.
type Repository interface {
	Create(ctx context.Context, e *Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// SQLiteRepository stores lifecycle events in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts e. ID and CreatedAt are filled in if empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lifecycle_events
		   (id, session, kind, status, previous, reason, detail, exit_code, pid, local_port, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Session, e.Kind, e.Status, e.Previous, e.Reason, e.Detail,
		e.ExitCode, e.PID, e.LocalPort,
		e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting lifecycle event: %w", err)
	}
	return nil
}

// List returns events matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Session != "" {
		conditions = append(conditions, "session = ?")
		args = append(args, filter.Session)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM lifecycle_events " + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting lifecycle events: %w", err)
	}

	query := `SELECT id, session, kind, status, previous, reason, detail, exit_code, pid, local_port, created_at
		FROM lifecycle_events ` + where + ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying lifecycle events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Session, &e.Kind, &e.Status, &e.Previous, &e.Reason,
			&e.Detail, &e.ExitCode, &e.PID, &e.LocalPort, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning lifecycle event: %w", err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing lifecycle event timestamp %q: %w", createdAt, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lifecycle events: %w", err)
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// Prune deletes events created before olderThan and reports how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM lifecycle_events WHERE created_at < ?",
		olderThan.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning lifecycle events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning lifecycle events: %w", err)
	}
	return n, nil
}
