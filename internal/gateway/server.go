// Package gateway exposes the coordinator to browsers over WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/Cheese-Clock/internal/adapter/chesspresenter"
	"github.com/park285/Cheese-Clock/internal/coordinator"
	"github.com/park285/Cheese-Clock/internal/domain"
)

// Coordinator is the part of *coordinator.Coordinator the gateway drives.
type Coordinator interface {
	Subscribe(fn func(coordinator.Snapshot)) int
	Unsubscribe(id int)
	Snapshot(ctx context.Context) (coordinator.Snapshot, error)
	NewGame(ctx context.Context, side domain.Side) error
	LoadPosition(ctx context.Context, fen string, side domain.Side) error
	LocalMove(ctx context.Context, from, to, promotion string) error
	Resign(ctx context.Context, side domain.Side) error
	RetryEngine(ctx context.Context) error
	SetTimeControl(ctx context.Context, tc domain.TimeControl) error
}

// Archive lists finished games for GET /games.
type Archive interface {
	Recent(ctx context.Context, limit int) ([]*domain.GameRecord, error)
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithArchive(a Archive, limit int) Option {
	return func(s *Server) {
		s.archive = a
		if limit > 0 {
			s.recentLimit = limit
		}
	}
}

func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// WithDefaultSide is the player side for new_game commands that name none.
func WithDefaultSide(side domain.Side) Option {
	return func(s *Server) {
		if side.Valid() {
			s.defaultSide = side
		}
	}
}

// WithOriginPatterns allows cross-origin browsers, see websocket.AcceptOptions.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

type Server struct {
	coord          Coordinator
	format         *chesspresenter.Formatter
	archive        Archive
	gatherer       prometheus.Gatherer
	logger         *zap.Logger
	pingInterval   time.Duration
	recentLimit    int
	defaultSide    domain.Side
	originPatterns []string
}

func New(coord Coordinator, format *chesspresenter.Formatter, opts ...Option) *Server {
	s := &Server{
		coord:        coord,
		format:       format,
		logger:       zap.NewNop(),
		pingInterval: 30 * time.Second,
		recentLimit:  20,
		defaultSide:  domain.White,
	}
	if s.format == nil {
		s.format = chesspresenter.NewFormatter(nil)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/games", s.handleGames)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe serves until ctx is done, then drains for up to five seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("gateway_listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "archive disabled", http.StatusNotFound)
		return
	}
	limit := s.recentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < limit {
			limit = n
		}
	}
	games, err := s.archive.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Warn("archive_recent_failed", zap.Error(err))
		http.Error(w, "archive unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.format.ToDTOGames(games))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  s.originPatterns,
	})
	if err != nil {
		s.logger.Warn("ws_accept_failed", zap.Error(err))
		return
	}
	c := newConn(s, ws)
	c.serve(r.Context())
}
