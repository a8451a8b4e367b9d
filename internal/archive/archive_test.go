package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/park285/Cheese-Clock/internal/domain"
)

func sampleRecord(id string, ended time.Time) *domain.GameRecord {
	return &domain.GameRecord{
		ID:           id,
		SessionID:    "s1",
		PlayerSide:   domain.White,
		Outcome:      domain.CheckmateBy(domain.Black),
		Result:       "black",
		ResultMethod: "checkmate",
		MovesUCI:     []string{"f2f3", "e7e5", "g2g4", "d8h4"},
		MovesSAN:     []string{"f3", "e5", "g4", "Qh4#"},
		TimeControl:  domain.TimeControlOf(10, 5),
		WhiteLeft:    590 * time.Second,
		BlackLeft:    600 * time.Second,
		StartedAt:    ended.Add(-time.Minute),
		EndedAt:      ended,
	}
}

func TestBuildPGN_FoolsMate(t *testing.T) {
	g := sampleRecord("g1", time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	pgn := BuildPGN(g)
	for _, want := range []string{
		`[Date "2026.03.04"]`,
		`[White "Player"]`,
		`[Black "Engine"]`,
		`[Result "0-1"]`,
		`[TimeControl "600+5"]`,
		`[Termination "checkmate"]`,
		"1. f3 e5 2. g4 Qh4# 0-1",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
	if strings.Contains(pgn, "SetUp") {
		t.Fatalf("standard start should not carry a FEN tag")
	}
}

func TestBuildPGN_BlackToMoveStart(t *testing.T) {
	g := sampleRecord("g2", time.Now())
	g.PlayerSide = domain.Black
	g.StartFEN = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	g.MovesSAN = []string{"e5", "Nf3"}
	g.Outcome = domain.ResignedBy(domain.Black)
	pgn := BuildPGN(g)
	if !strings.Contains(pgn, "1... e5 2. Nf3 1-0") {
		t.Fatalf("unexpected movetext:\n%s", pgn)
	}
	if !strings.Contains(pgn, `[White "Engine"]`) || !strings.Contains(pgn, `[SetUp "1"]`) {
		t.Fatalf("missing headers:\n%s", pgn)
	}
}

func TestMemoryStore_RecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.Record(ctx, sampleRecord(fmt.Sprintf("g%d", i), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "g2" || got[1].ID != "g1" {
		t.Fatalf("unexpected order: %+v", got)
	}
	got[0].MovesSAN[0] = "mutated"
	again, _ := s.Recent(ctx, 1)
	if again[0].MovesSAN[0] != "f3" {
		t.Fatalf("store shares slices with callers")
	}
}

func TestRedisStore_CapsAndDecodes(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	ctx := context.Background()
	rdb, err := OpenRedis(ctx, "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rdb.Close()

	s := NewRedisStore(rdb, 2)
	base := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.Record(ctx, sampleRecord(fmt.Sprintf("g%d", i), base)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "g2" || got[1].ID != "g1" {
		t.Fatalf("unexpected list: %d", len(got))
	}
	if got[0].Outcome.Kind != domain.Checkmate || got[0].Outcome.Winner() != domain.Black {
		t.Fatalf("outcome lost in round trip: %+v", got[0].Outcome)
	}
	if mr.TTL(recentKey) <= 0 {
		t.Fatalf("expected ttl on %s", recentKey)
	}
}

type failingStore struct{ MemoryStore }

func (f *failingStore) Record(context.Context, *domain.GameRecord) error {
	return errors.New("disk full")
}

func TestMulti_FansOutAndFillsPGN(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	m := NewMulti(nil, mem, nil, &failingStore{})
	g := sampleRecord("g1", time.Now())
	if err := m.Record(ctx, g); err == nil {
		t.Fatalf("expected joined error from failing store")
	}
	if g.PGN == "" {
		t.Fatalf("pgn not filled")
	}
	got, err := m.Recent(ctx, 5)
	if err != nil || len(got) != 1 || got[0].PGN == "" {
		t.Fatalf("memory store missed the record: %v %+v", err, got)
	}
}
