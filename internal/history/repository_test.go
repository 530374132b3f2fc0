package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/synthd/internal/infrastructure/database"
	"github.com/nerrad567/synthd/internal/supervisor"
	"github.com/nerrad567/synthd/migrations"
)

// setupTestRepo opens an in-memory database with the real schema.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(context.Background(), migrations.Source()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

var base = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	events := []*Event{
		{Session: "s1", Kind: "status", Status: "running", Previous: "stopped", PID: 100, LocalPort: 50001, CreatedAt: base},
		{Session: "s1", Kind: "transport_replaced", Status: "running", Previous: "running", LocalPort: 50002, CreatedAt: base.Add(time.Second)},
		{Session: "s1", Kind: "status", Status: "crashed", Previous: "running", Reason: "exit_code", Detail: "supervisor: engine crashed (exit_code 3)", ExitCode: 3, CreatedAt: base.Add(2 * time.Second)},
		{Session: "s2", Kind: "status", Status: "running", Previous: "crashed", CreatedAt: base.Add(3 * time.Second)},
	}
	for _, e := range events {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if e.ID == "" {
			t.Error("Create() did not assign an ID")
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string
		wantLen   int
	}{
		{"all newest first", Filter{}, 4, "s2", 4},
		{"one session", Filter{Session: "s1"}, 3, "crashed", 3},
		{"by kind", Filter{Kind: "transport_replaced"}, 1, "transport_replaced", 1},
		{"paged", Filter{Limit: 2, Offset: 1}, 4, "crashed", 2},
		{"unknown session", Filter{Session: "nope"}, 0, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			if len(res.Events) != tt.wantLen {
				t.Fatalf("len(Events) = %d, want %d", len(res.Events), tt.wantLen)
			}
			if tt.wantLen == 0 {
				return
			}
			first := res.Events[0]
			if first.Session != tt.wantFirst && first.Status != tt.wantFirst && first.Kind != tt.wantFirst {
				t.Errorf("first event = %+v, want %q", first, tt.wantFirst)
			}
		})
	}
}

func TestSQLiteRepository_RoundTripsFields(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	in := &Event{
		Session: "s1", Kind: "status", Status: "crashed", Previous: "running",
		Reason: "died", Detail: "killed by signal: killed", ExitCode: 0, PID: 0, LocalPort: 0,
		CreatedAt: base.Add(123456 * time.Microsecond),
	}
	if err := repo.Create(ctx, in); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := res.Events[0]
	if !got.CreatedAt.Equal(in.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, in.CreatedAt)
	}
	got.CreatedAt, in.CreatedAt = time.Time{}, time.Time{}
	if got != *in {
		t.Errorf("List()[0] = %+v, want %+v", got, *in)
	}
}

func TestSQLiteRepository_ListLimits(t *testing.T) {
	repo := setupTestRepo(t)

	res, err := repo.List(context.Background(), Filter{Limit: 10000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != maxLimit || res.Offset != 0 {
		t.Errorf("Limit, Offset = %d, %d, want %d, 0", res.Limit, res.Offset, maxLimit)
	}
	if res.Events == nil {
		t.Error("Events should be empty, not nil")
	}
}

func TestSQLiteRepository_Prune(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for i := range 5 {
		e := &Event{Kind: "status", Status: "running", CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	n, err := repo.Prune(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() = %d, want 2", n)
	}

	res, _ := repo.List(ctx, Filter{})
	if res.Total != 3 {
		t.Errorf("Total after prune = %d, want 3", res.Total)
	}
}

func TestFromUpdate(t *testing.T) {
	u := supervisor.Update{
		Kind:     supervisor.UpdateStatus,
		Session:  "abc",
		Status:   supervisor.StatusCrashed,
		Previous: supervisor.StatusRunning,
		Reason:   "port_in_use",
		Error:    "supervisor: engine crashed (port_in_use)",
		Time:     base,
	}

	e := FromUpdate(u)
	if e.Kind != "status" || e.Status != "crashed" || e.Previous != "running" ||
		e.Reason != "port_in_use" || e.Detail != u.Error || !e.CreatedAt.Equal(base) {
		t.Errorf("FromUpdate() = %+v", e)
	}
}

// stubRepo is a Repository that can block and fail.
type stubRepo struct {
	mu      sync.Mutex
	created []Event
	err     error
	gate    chan struct{}
}

func (s *stubRepo) Create(_ context.Context, e *Event) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, *e)
	return nil
}

func (s *stubRepo) List(context.Context, Filter) (*ListResult, error) { return &ListResult{}, nil }
func (s *stubRepo) Prune(context.Context, time.Time) (int64, error)   { return 0, nil }

func TestRecorder_WritesAndDrains(t *testing.T) {
	repo := setupTestRepo(t)
	rec := NewRecorder(repo, 16, nil)

	for _, st := range []supervisor.Status{supervisor.StatusRunning, supervisor.StatusStopped} {
		rec.Record(supervisor.Update{Kind: supervisor.UpdateStatus, Status: st, Time: time.Now()})
	}
	rec.Close()

	res, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 2 {
		t.Errorf("Total = %d, want 2", res.Total)
	}
	if stats := rec.Stats(); stats.Recorded != 2 || stats.Dropped != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	repo := &stubRepo{gate: make(chan struct{})}
	rec := NewRecorder(repo, 1, nil)

	// The writer takes the first update and blocks on the gate; the second
	// fills the queue; the rest are dropped.
	rec.Record(supervisor.Update{Status: supervisor.StatusRunning})
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.queue) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("writer never picked up the first update")
		}
		time.Sleep(time.Millisecond)
	}
	for range 3 {
		rec.Record(supervisor.Update{Status: supervisor.StatusStopped})
	}

	close(repo.gate)
	rec.Close()

	if stats := rec.Stats(); stats.Recorded != 2 || stats.Dropped != 2 {
		t.Errorf("Stats() = %+v, want 2 recorded and 2 dropped", stats)
	}
}

func TestRecorder_CountsFailures(t *testing.T) {
	repo := &stubRepo{err: errors.New("disk full")}
	rec := NewRecorder(repo, 4, nil)

	rec.Record(supervisor.Update{Status: supervisor.StatusRunning})
	rec.Close()

	if stats := rec.Stats(); stats.Failed != 1 || stats.Recorded != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	rec := NewRecorder(&stubRepo{}, 0, nil)
	rec.Close()
	rec.Close()

	// Updates after Close are ignored.
	rec.Record(supervisor.Update{Status: supervisor.StatusRunning})
	if stats := rec.Stats(); stats.Recorded != 0 || stats.Dropped != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}
