// enginecheck plays one move against a remote engine and reports each protocol step.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/park285/Cheese-Clock/internal/domain"
	"github.com/park285/Cheese-Clock/internal/engineclient"
)

func main() {
	baseURL := flag.String("url", os.Getenv("ENGINE_BASE_URL"), "engine base URL")
	fen := flag.String("fen", "", "start position (default: standard)")
	move := flag.String("move", "e2e4", "first move to report when the player has white")
	flag.Parse()
	if *baseURL == "" {
		log.Fatal("ENGINE_BASE_URL or -url is required")
	}

	client := engineclient.NewClient(*baseURL, engineclient.WithTimeout(8*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := client.CreateSession(ctx, domain.StartSpec{FEN: *fen})
	if err != nil {
		log.Fatalf("newgame error: %v", err)
	}
	log.Printf("newgame ok: playerID=%s", id)
	defer func() {
		if err := client.EndSession(context.Background(), id); err != nil {
			log.Printf("endgame error: %v", err)
			return
		}
		log.Printf("endgame ok")
	}()

	if *fen == "" && *move != "" {
		if err := client.ReportMove(ctx, id, *move); err != nil {
			log.Printf("playermove error: %v", err)
			return
		}
		log.Printf("playermove ok: %s", *move)
	}

	budgets := domain.TimeBudgets{WhiteMillis: 60000, BlackMillis: 60000, WhiteIncrementMillis: 1000, BlackIncrementMillis: 1000}
	started := time.Now()
	reply, err := client.RequestMove(ctx, id, budgets)
	if err != nil {
		log.Printf("bestmove error: %v", err)
		return
	}
	log.Printf("bestmove ok: %s (%s)", reply, time.Since(started).Round(time.Millisecond))

	if err := client.Heartbeat(ctx, id); err != nil {
		log.Printf("keepalive error: %v", err)
		return
	}
	log.Printf("keepalive ok")
}
