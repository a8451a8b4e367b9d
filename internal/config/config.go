package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/park285/Cheese-Clock/internal/domain"
)

type AppConfig struct {
	// client side
	EngineBaseURL     string
	EngineTimeout     time.Duration
	EngineRetry       int
	TimeControl       domain.TimeControl
	PlayerSide        domain.Side
	TickInterval      time.Duration
	HeartbeatInterval time.Duration
	ListenAddr        string
	RedisURL          string
	DatabaseURL       string
	RecentLimit       int
	MessagesDir       string

	// engine server
	EngineListenAddr string
	StockfishPath    string
	EngineSessionTTL time.Duration
	EnginePoolSize   int
	EngineElo        int
	EngineThreads    int
	EngineHashMB     int
}

// Load reads an optional .env (ENV_FILE overrides the path), then the environment.
// Real environment variables win over the file.
func Load() (*AppConfig, error) {
	envFile := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &AppConfig{
		EngineTimeout:     10 * time.Second,
		EngineRetry:       3,
		PlayerSide:        domain.White,
		TickInterval:      time.Second,
		HeartbeatInterval: 30 * time.Second,
		ListenAddr:        ":8088",
		RecentLimit:       20,
		EngineListenAddr:  ":8080",
		EngineSessionTTL:  2 * time.Minute,
	}

	cfg.EngineBaseURL = strings.TrimSpace(os.Getenv("ENGINE_BASE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))
	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_LISTEN_ADDR")); v != "" {
		cfg.EngineListenAddr = v
	}

	minutes, err := floatEnv("BASE_MINUTES", 10)
	if err != nil {
		return nil, err
	}
	seconds, err := floatEnv("INCREMENT_SECONDS", 5)
	if err != nil {
		return nil, err
	}
	if minutes <= 0 {
		return nil, errors.New("BASE_MINUTES must be positive")
	}
	if seconds < 0 {
		return nil, errors.New("INCREMENT_SECONDS must not be negative")
	}
	cfg.TimeControl = domain.TimeControlOf(minutes, seconds)

	if v := strings.TrimSpace(os.Getenv("PLAYER_SIDE")); v != "" {
		side, err := domain.ParseSide(v)
		if err != nil {
			return nil, fmt.Errorf("PLAYER_SIDE: %w", err)
		}
		cfg.PlayerSide = side
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ENGINE_TIMEOUT", &cfg.EngineTimeout},
		{"TICK_INTERVAL", &cfg.TickInterval},
		{"HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval},
		{"ENGINE_SESSION_TTL", &cfg.EngineSessionTTL},
	}
	for _, d := range durations {
		if err := durationEnv(d.key, d.dst); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"ENGINE_RETRY", &cfg.EngineRetry},
		{"ARCHIVE_RECENT_LIMIT", &cfg.RecentLimit},
		{"ENGINE_POOL_SIZE", &cfg.EnginePoolSize},
		{"ENGINE_ELO", &cfg.EngineElo},
		{"ENGINE_THREADS", &cfg.EngineThreads},
		{"ENGINE_HASH_MB", &cfg.EngineHashMB},
	}
	for _, i := range ints {
		if v := strings.TrimSpace(os.Getenv(i.key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%s: invalid value %q", i.key, v)
			}
			*i.dst = n
		}
	}
	return cfg, nil
}

// ValidateClient checks what cmd/chess-clock needs.
func (c *AppConfig) ValidateClient() error {
	if c.EngineBaseURL == "" {
		return errors.New("ENGINE_BASE_URL is required")
	}
	return nil
}

// ValidateEngine checks what cmd/engine-server needs.
func (c *AppConfig) ValidateEngine() error {
	if c.StockfishPath == "" {
		return errors.New("STOCKFISH_PATH is required")
	}
	return nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, v)
	}
	return f, nil
}

// durationEnv accepts Go durations ("1s", "250ms") or a bare number of seconds.
func durationEnv(key string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
		return nil
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
		*dst = time.Duration(n * float64(time.Second))
		return nil
	}
	return fmt.Errorf("%s: invalid duration %q", key, v)
}
