package uci

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeEngine answers the handshake and every go with a fixed reply.
type fakeEngine struct {
	mu    sync.Mutex
	lines []string
	reply string
}

func (f *fakeEngine) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeEngine) serve(in io.Reader, out io.Writer) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		f.mu.Lock()
		f.lines = append(f.lines, line)
		f.mu.Unlock()
		switch {
		case line == "uci":
			_, _ = io.WriteString(out, "id name fake\nuciok\n")
		case line == "isready":
			_, _ = io.WriteString(out, "readyok\n")
		case strings.HasPrefix(line, "go"):
			_, _ = io.WriteString(out, f.reply)
		}
	}
}

func startFake(t *testing.T, reply string) (*fakeEngine, func(ctx context.Context) (*Session, error)) {
	t.Helper()
	fe := &fakeEngine{reply: reply}
	spawn := func(ctx context.Context) (*Session, error) {
		inR, inW := io.Pipe()
		outR, outW := io.Pipe()
		go fe.serve(inR, outW)
		stop := func() error {
			_ = inR.Close()
			return outW.Close()
		}
		return newSession(ctx, inW, outR, stop, Options{Threads: 2, Elo: 1500}, nil)
	}
	return fe, spawn
}

func TestBuildGoTokens(t *testing.T) {
	got := strings.Join(buildGoTokens(SearchRequest{Clock: GoClock{WTime: 604000, BTime: 600000, WInc: 5000, BInc: 5000}}), " ")
	if got != "go wtime 604000 btime 600000 winc 5000 binc 5000" {
		t.Fatalf("clocked go = %q", got)
	}
	if got := strings.Join(buildGoTokens(SearchRequest{}), " "); got != "go movetime 1000" {
		t.Fatalf("fallback go = %q", got)
	}
	if got := strings.Join(buildGoTokens(SearchRequest{Clock: GoClock{WTime: -5, BTime: 10}}), " "); got != "go wtime 0 btime 10 winc 0 binc 0" {
		t.Fatalf("negative budgets should clamp: %q", got)
	}
}

func TestBuildPositionCommand(t *testing.T) {
	if got := buildPositionCommand("startpos", []string{"e2e4", "e7e5"}); got != "position startpos moves e2e4 e7e5\n" {
		t.Fatalf("got %q", got)
	}
	fen := "8/P6k/8/8/8/8/8/K7 w - - 0 1"
	if got := buildPositionCommand(fen, nil); got != "position fen "+fen+"\n" {
		t.Fatalf("got %q", got)
	}
}

func TestParseInfo(t *testing.T) {
	idx, cand, ok := parseInfo("info depth 18 seldepth 24 multipv 2 score mate -3 nodes 100 pv d8h4 g2g3")
	if !ok || idx != 2 || cand.Move != "d8h4" || cand.EvalCP != -30000 || cand.Depth != 18 || len(cand.PV) != 2 {
		t.Fatalf("parseInfo = %d %+v %v", idx, cand, ok)
	}
	if _, _, ok := parseInfo("info string NNUE enabled"); ok {
		t.Fatalf("info without pv should be skipped")
	}
}

func TestComputeSearchTimeout(t *testing.T) {
	got := computeSearchTimeout(SearchRequest{Clock: GoClock{WTime: 3000, BTime: 1000, WInc: 500}})
	if got != 3500*time.Millisecond+searchSlack {
		t.Fatalf("timeout = %v", got)
	}
}

func TestSessionSearch(t *testing.T) {
	fe, spawn := startFake(t, "info depth 5 score cp 31 multipv 1 pv e7e5 g1f3\nbestmove e7e5 ponder g1f3\n")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := spawn(ctx)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer s.Close()

	resp, err := s.Search(ctx, SearchRequest{Moves: []string{"e2e4"}, Clock: GoClock{WTime: 1000, BTime: 2000, WInc: 10, BInc: 20}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.BestMove != "e7e5" || len(resp.Candidates) != 1 || resp.Candidates[0].EvalCP != 31 {
		t.Fatalf("resp %+v", resp)
	}
	seen := strings.Join(fe.seen(), "|")
	for _, want := range []string{"setoption name UCI_Elo value 1500", "position startpos moves e2e4", "go wtime 1000 btime 2000 winc 10 binc 20"} {
		if !strings.Contains(seen, want) {
			t.Fatalf("engine never saw %q in %s", want, seen)
		}
	}
}

func TestSessionSearch_NoMove(t *testing.T) {
	_, spawn := startFake(t, "bestmove (none)\n")
	ctx := context.Background()
	s, err := spawn(ctx)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer s.Close()
	if _, err := s.Search(ctx, SearchRequest{FEN: "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"}); err == nil {
		t.Fatalf("expected error for bestmove (none)")
	}
}

func TestPool_ReusesAndDiscards(t *testing.T) {
	_, base := startFake(t, "bestmove e7e5\n")
	spawned := 0
	spawn := func(ctx context.Context) (*Session, error) {
		spawned++
		return base(ctx)
	}
	p := newPool(1, spawn, nil)
	defer p.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mv, err := p.BestMove(ctx, "", []string{"e2e4"}, GoClock{WTime: 1000, BTime: 1000})
		if err != nil || mv != "e7e5" {
			t.Fatalf("BestMove = %q, %v", mv, err)
		}
	}
	if spawned != 1 {
		t.Fatalf("expected one process reused, spawned %d", spawned)
	}

	s, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Release(s, context.DeadlineExceeded)
	if _, err := p.BestMove(ctx, "", nil, GoClock{}); err != nil {
		t.Fatalf("after discard: %v", err)
	}
	if spawned != 2 {
		t.Fatalf("discarded process should be replaced, spawned %d", spawned)
	}
}
