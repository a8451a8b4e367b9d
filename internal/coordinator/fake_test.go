package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/park285/Cheese-Clock/internal/domain"
)

type moveReply struct {
	move string
	err  error
}

type moveRequest struct {
	id      domain.SessionID
	budgets domain.TimeBudgets
	reply   chan moveReply
}

func (r *moveRequest) answer(move string) { r.reply <- moveReply{move: move} }

func (r *moveRequest) fail(err error) { r.reply <- moveReply{err: err} }

// fakeEngine hands every bestmove to the test through requests.
type fakeEngine struct {
	mu        sync.Mutex
	calls     []string
	nextID    int
	createErr error
	reportErr error
	requests  chan *moveRequest
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{requests: make(chan *moveRequest, 8)}
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) CreateSession(_ context.Context, spec domain.StartSpec) (domain.SessionID, error) {
	f.mu.Lock()
	err := f.createErr
	f.nextID++
	id := domain.SessionID(fmt.Sprintf("s%d", f.nextID))
	f.mu.Unlock()
	if err != nil {
		f.record("create:error")
		return "", err
	}
	f.record("create:" + string(id) + ":" + spec.Body())
	return id, nil
}

func (f *fakeEngine) EndSession(_ context.Context, id domain.SessionID) error {
	f.record("end:" + string(id))
	return nil
}

func (f *fakeEngine) RequestMove(ctx context.Context, id domain.SessionID, b domain.TimeBudgets) (string, error) {
	f.record("request:" + string(id))
	req := &moveRequest{id: id, budgets: b, reply: make(chan moveReply, 1)}
	select {
	case f.requests <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.move, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeEngine) ReportMove(_ context.Context, id domain.SessionID, move string) error {
	f.record("report:" + string(id) + ":" + move)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reportErr
}

func (f *fakeEngine) nextRequest(t *testing.T) *moveRequest {
	t.Helper()
	select {
	case r := <-f.requests:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("no move request issued (calls=%v)", f.Calls())
		return nil
	}
}

func (f *fakeEngine) noRequest(t *testing.T) {
	t.Helper()
	select {
	case r := <-f.requests:
		t.Fatalf("unexpected move request for %s", r.id)
	case <-time.After(30 * time.Millisecond):
	}
}

type fakeRecorder struct {
	games chan *domain.GameRecord
}

func (r *fakeRecorder) Record(_ context.Context, g *domain.GameRecord) error {
	r.games <- g
	return nil
}

func startCoordinator(t *testing.T, eng Engine, opts ...Option) *Coordinator {
	t.Helper()
	opts = append([]Option{WithManualTicks(time.Second)}, opts...)
	c := New(eng, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
	return c
}

func waitFor(t *testing.T, c *Coordinator, what string, ok func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := c.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if ok(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last state=%s outcome=%s moves=%v", what, snap.State, snap.Outcome, snap.Moves)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func mustSnapshot(t *testing.T, c *Coordinator) Snapshot {
	t.Helper()
	snap, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}

// checkClockInvariant: exactly the side to move runs while a game is in progress.
func checkClockInvariant(t *testing.T, snap Snapshot) {
	t.Helper()
	switch {
	case snap.State.InGame():
		if !snap.Clock.Running || snap.Clock.Active != snap.SideToMove {
			t.Fatalf("clock %+v does not match side to move %s in %s", snap.Clock, snap.SideToMove, snap.State)
		}
	case snap.State == Finished:
		if snap.Clock.Running {
			t.Fatalf("clock running after finish: %+v", snap.Clock)
		}
	}
}
