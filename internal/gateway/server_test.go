package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-Clock/internal/coordinator"
	"github.com/park285/Cheese-Clock/internal/domain"
	"github.com/park285/Cheese-Clock/pkg/chessdto"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type fakeCoord struct {
	mu    sync.Mutex
	subs  map[int]func(coordinator.Snapshot)
	next  int
	calls []string
	snap  coordinator.Snapshot
	err   error
}

func newFakeCoord() *fakeCoord {
	return &fakeCoord{
		subs: make(map[int]func(coordinator.Snapshot)),
		snap: coordinator.Snapshot{State: coordinator.Idle, FEN: startFEN, PlayerSide: domain.White, SideToMove: domain.White},
	}
}

func (f *fakeCoord) Subscribe(fn func(coordinator.Snapshot)) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.subs[f.next] = fn
	return f.next
}

func (f *fakeCoord) Unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
}

func (f *fakeCoord) publish(s coordinator.Snapshot) {
	f.mu.Lock()
	subs := make([]func(coordinator.Snapshot), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func (f *fakeCoord) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeCoord) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeCoord) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCoord) Snapshot(context.Context) (coordinator.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, nil
}

func (f *fakeCoord) NewGame(_ context.Context, side domain.Side) error {
	return f.record("new_game:" + side.String())
}

func (f *fakeCoord) LoadPosition(_ context.Context, fen string, side domain.Side) error {
	return f.record("load:" + side.String() + ":" + fen)
}

func (f *fakeCoord) LocalMove(_ context.Context, from, to, promo string) error {
	return f.record("move:" + from + to + promo)
}

func (f *fakeCoord) Resign(_ context.Context, side domain.Side) error {
	return f.record("resign:" + side.String())
}

func (f *fakeCoord) RetryEngine(context.Context) error { return f.record("retry") }

func (f *fakeCoord) SetTimeControl(_ context.Context, tc domain.TimeControl) error {
	return f.record("tc:" + tc.Base.String() + "+" + tc.Increment.String())
}

type fakeArchive struct{ games []*domain.GameRecord }

func (a fakeArchive) Recent(context.Context, int) ([]*domain.GameRecord, error) { return a.games, nil }

func dial(t *testing.T, srv *httptest.Server) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "") })
	return ws, ctx
}

func read(t *testing.T, ctx context.Context, ws *websocket.Conn) chessdto.Envelope {
	t.Helper()
	var env chessdto.Envelope
	if err := wsjson.Read(ctx, ws, &env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func send(t *testing.T, ctx context.Context, ws *websocket.Conn, cmd chessdto.Command) chessdto.Envelope {
	t.Helper()
	if err := wsjson.Write(ctx, ws, cmd); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		env := read(t, ctx, ws)
		if env.Type == chessdto.MsgReply && env.ID == cmd.ID {
			return env
		}
	}
}

func TestWS_InitialSnapshotAndCommands(t *testing.T) {
	coord := newFakeCoord()
	srv := httptest.NewServer(New(coord, nil, WithDefaultSide(domain.Black)).Handler())
	defer srv.Close()
	ws, ctx := dial(t, srv)

	first := read(t, ctx, ws)
	if first.Type != chessdto.MsgSnapshot || first.Snapshot == nil || first.Snapshot.State != "idle" {
		t.Fatalf("expected initial snapshot, got %+v", first)
	}

	cmds := []chessdto.Command{
		{ID: "1", Type: chessdto.CmdNewGame},
		{ID: "2", Type: chessdto.CmdNewGame, Side: "white"},
		{ID: "3", Type: chessdto.CmdMove, From: "e2e4"},
		{ID: "4", Type: chessdto.CmdMove, From: "a7", To: "a8", Promotion: "n"},
		{ID: "5", Type: chessdto.CmdResign},
		{ID: "6", Type: chessdto.CmdRetryEngine},
		{ID: "7", Type: chessdto.CmdSetTimeControl, BaseMinutes: 3, IncrementSeconds: 2},
		{ID: "8", Type: chessdto.CmdLoadPosition, FEN: startFEN},
	}
	for _, cmd := range cmds {
		if env := send(t, ctx, ws, cmd); !env.OK {
			t.Fatalf("command %s rejected: %+v", cmd.ID, env.Error)
		}
	}
	want := []string{
		"new_game:black",
		"new_game:white",
		"move:e2e4",
		"move:a7a8n",
		"resign:none",
		"retry",
		"tc:3m0s+2s",
		"load:black:" + startFEN,
	}
	got := coord.recorded()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("calls\n got %v\nwant %v", got, want)
	}
}

func TestWS_ErrorsAndUnknownCommand(t *testing.T) {
	coord := newFakeCoord()
	coord.err = coordinator.ErrNotYourTurn
	srv := httptest.NewServer(New(coord, nil).Handler())
	defer srv.Close()
	ws, ctx := dial(t, srv)
	_ = read(t, ctx, ws)

	env := send(t, ctx, ws, chessdto.Command{ID: "a", Type: chessdto.CmdMove, From: "e2", To: "e4"})
	if env.OK || env.Error == nil || env.Error.Code != "not_your_turn" {
		t.Fatalf("expected not_your_turn, got %+v", env)
	}
	env = send(t, ctx, ws, chessdto.Command{ID: "b", Type: chessdto.CmdNewGame, Side: "purple"})
	if env.Error == nil || env.Error.Code != "invalid_side" {
		t.Fatalf("expected invalid_side, got %+v", env)
	}
	env = send(t, ctx, ws, chessdto.Command{ID: "c", Type: "teleport"})
	if env.Error == nil || env.Error.Code != "unknown_command" {
		t.Fatalf("expected unknown_command, got %+v", env)
	}
}

func TestWS_FlipIsPerConnection(t *testing.T) {
	coord := newFakeCoord()
	srv := httptest.NewServer(New(coord, nil).Handler())
	defer srv.Close()
	a, ctxA := dial(t, srv)
	b, ctxB := dial(t, srv)
	_ = read(t, ctxA, a)
	_ = read(t, ctxB, b)

	if env := send(t, ctxA, a, chessdto.Command{ID: "f", Type: chessdto.CmdFlip}); !env.OK {
		t.Fatalf("flip rejected: %+v", env.Error)
	}
	resent := read(t, ctxA, a)
	if resent.Snapshot == nil || resent.Snapshot.Orientation != "black" || resent.Snapshot.Board[0] != "RNBKQBNR" {
		t.Fatalf("flipped snapshot %+v", resent.Snapshot)
	}

	deadline := time.Now().Add(2 * time.Second)
	for coord.subscribers() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	coord.publish(coordinator.Snapshot{State: coordinator.WaitingForLocalMove, FEN: startFEN})
	if env := read(t, ctxA, a); env.Snapshot == nil || env.Snapshot.Orientation != "black" {
		t.Fatalf("viewer a lost its orientation: %+v", env.Snapshot)
	}
	if env := read(t, ctxB, b); env.Snapshot == nil || env.Snapshot.Orientation != "white" {
		t.Fatalf("viewer b should be unaffected: %+v", env.Snapshot)
	}

	// a loaded position seats the player on the side the viewer is looking from
	if env := send(t, ctxA, a, chessdto.Command{ID: "la", Type: chessdto.CmdLoadPosition, FEN: startFEN}); !env.OK {
		t.Fatalf("load on a rejected: %+v", env.Error)
	}
	if env := send(t, ctxB, b, chessdto.Command{ID: "lb", Type: chessdto.CmdLoadPosition, FEN: startFEN}); !env.OK {
		t.Fatalf("load on b rejected: %+v", env.Error)
	}
	if env := send(t, ctxA, a, chessdto.Command{ID: "lw", Type: chessdto.CmdLoadPosition, FEN: startFEN, Side: "white"}); !env.OK {
		t.Fatalf("explicit side rejected: %+v", env.Error)
	}
	got := coord.recorded()
	want := []string{"load:black:" + startFEN, "load:white:" + startFEN, "load:white:" + startFEN}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("calls\n got %v\nwant %v", got, want)
	}
}

func TestWS_UnsubscribesOnClose(t *testing.T) {
	coord := newFakeCoord()
	srv := httptest.NewServer(New(coord, nil).Handler())
	defer srv.Close()
	ws, ctx := dial(t, srv)
	_ = read(t, ctx, ws)
	_ = ws.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(2 * time.Second)
	for coord.subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription leaked")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHTTP_HealthMetricsGames(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "gateway_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	archive := fakeArchive{games: []*domain.GameRecord{{
		ID:         "g1",
		PlayerSide: domain.White,
		Outcome:    domain.CheckmateBy(domain.White),
		MovesSAN:   []string{"e4"},
	}}}
	srv := httptest.NewServer(New(newFakeCoord(), nil, WithGatherer(reg), WithArchive(archive, 5)).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", err, resp)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	resp.Body.Close()
	if !strings.Contains(string(body), "gateway_test_total 1") {
		t.Fatalf("metrics body missing counter:\n%s", body)
	}

	resp, err = http.Get(srv.URL + "/games?limit=3")
	if err != nil {
		t.Fatalf("games: %v", err)
	}
	defer resp.Body.Close()
	var games []chessdto.GameSummary
	if err := json.NewDecoder(resp.Body).Decode(&games); err != nil {
		t.Fatalf("decode games: %v", err)
	}
	if len(games) != 1 || games[0].ID != "g1" || games[0].Result != "1-0" {
		t.Fatalf("games %+v", games)
	}
}
