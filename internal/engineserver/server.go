// Package engineserver serves the remote engine session protocol over fasthttp.
package engineserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/park285/Cheese-Clock/internal/rules"
	"github.com/park285/Cheese-Clock/internal/uci"
)

// Searcher picks a move for the position reached from fen by moves.
type Searcher interface {
	BestMove(ctx context.Context, fen string, moves []string, clock uci.GoClock) (string, error)
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSessionTTL drops sessions that see no request for ttl.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRegistry registers the server metrics and serves them on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

func WithNow(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

type Server struct {
	searcher Searcher
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time
	registry *prometheus.Registry

	games    *table
	requests *prometheus.CounterVec
	searches prometheus.Histogram
	active   prometheus.GaugeFunc
	reaped   prometheus.Counter
	metrics  fasthttp.RequestHandler
}

func New(searcher Searcher, opts ...Option) *Server {
	s := &Server{
		searcher: searcher,
		logger:   zap.NewNop(),
		ttl:      2 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.games = newTable(s.now)

	var reg prometheus.Registerer
	if s.registry != nil {
		reg = s.registry
		s.metrics = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	f := promauto.With(reg)
	s.requests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cheese_engine",
		Name:      "requests_total",
		Help:      "Protocol requests by endpoint and status.",
	}, []string{"endpoint", "status"})
	s.searches = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cheese_engine",
		Name:      "search_seconds",
		Help:      "Time spent answering bestmove.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	s.active = f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "cheese_engine",
		Name:      "sessions",
		Help:      "Live sessions.",
	}, func() float64 { return float64(s.games.len()) })
	s.reaped = f.NewCounter(prometheus.CounterOpts{
		Namespace: "cheese_engine",
		Name:      "sessions_reaped_total",
		Help:      "Sessions dropped for missing keepalives.",
	})
	return s
}

// Handler routes the five protocol endpoints plus /healthz and /metrics.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/newgame":
		s.observe(ctx, "newgame", s.handleNewGame)
	case "/endgame/", "/endgame":
		s.observe(ctx, "endgame", s.handleEndGame)
	case "/bestmove":
		s.observe(ctx, "bestmove", s.handleBestMove)
	case "/playermove":
		s.observe(ctx, "playermove", s.handlePlayerMove)
	case "/keepalive":
		s.observe(ctx, "keepalive", s.handleKeepAlive)
	case "/healthz":
		ctx.SetBodyString("ok")
	case "/metrics":
		if s.metrics == nil {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		s.metrics(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) observe(ctx *fasthttp.RequestCtx, endpoint string, h fasthttp.RequestHandler) {
	h(ctx)
	s.requests.WithLabelValues(endpoint, strconv.Itoa(ctx.Response.StatusCode())).Inc()
}

func (s *Server) handleNewGame(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}
	pos, err := parseStart(string(ctx.PostBody()))
	if err != nil {
		fail(ctx, fasthttp.StatusBadRequest, err)
		return
	}
	// Decided positions are accepted; the client classifies them and bestmove refuses them.
	id := s.games.create(pos)
	s.logger.Info("engine_session_created", zap.String("session", id), zap.String("fen", rules.FEN(pos)))
	body, _ := json.Marshal(map[string]string{"playerID": id})
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func (s *Server) handleEndGame(ctx *fasthttp.RequestCtx) {
	id := string(ctx.QueryArgs().Peek("playerID"))
	if s.games.remove(id) {
		s.logger.Info("engine_session_ended", zap.String("session", id))
	}
	ctx.SetBodyString("ok")
}

func (s *Server) handleKeepAlive(ctx *fasthttp.RequestCtx) {
	if _, err := s.games.get(string(ctx.QueryArgs().Peek("playerID"))); err != nil {
		fail(ctx, fasthttp.StatusNotFound, err)
		return
	}
	ctx.SetBodyString("ok")
}

func (s *Server) handlePlayerMove(ctx *fasthttp.RequestCtx) {
	g, err := s.games.get(string(ctx.QueryArgs().Peek("playerID")))
	if err != nil {
		fail(ctx, fasthttp.StatusNotFound, err)
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	mv, err := rules.ParseMove(g.pos, string(ctx.QueryArgs().Peek("move")))
	if err != nil {
		fail(ctx, fasthttp.StatusBadRequest, err)
		return
	}
	next, err := rules.ApplyMove(g.pos, mv)
	if err != nil {
		fail(ctx, fasthttp.StatusBadRequest, err)
		return
	}
	g.pos = next
	ctx.SetBodyString("ok")
}

func (s *Server) handleBestMove(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()
	id := string(args.Peek("playerID"))
	g, err := s.games.get(id)
	if err != nil {
		fail(ctx, fasthttp.StatusNotFound, err)
		return
	}
	clock := uci.GoClock{
		WTime: int64Arg(args, "wtime"),
		BTime: int64Arg(args, "btime"),
		WInc:  int64Arg(args, "winc"),
		BInc:  int64Arg(args, "binc"),
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if rules.Classify(g.pos).Terminal() {
		fail(ctx, fasthttp.StatusConflict, errors.New("game is over"))
		return
	}
	started := time.Now()
	best, err := s.searcher.BestMove(ctx, rules.StartFEN(g.pos), rules.Moves(g.pos), clock)
	s.searches.Observe(time.Since(started).Seconds())
	if err != nil {
		s.logger.Warn("engine_search_failed", zap.String("session", id), zap.Error(err))
		fail(ctx, fasthttp.StatusServiceUnavailable, err)
		return
	}
	// The position only advances when the client reports the move back through playermove.
	mv, err := rules.ParseMove(g.pos, best)
	if err != nil {
		s.logger.Error("engine_illegal_bestmove", zap.String("session", id), zap.String("move", best), zap.Error(err))
		fail(ctx, fasthttp.StatusInternalServerError, err)
		return
	}
	ctx.SetBodyString(mv.UCI)
}

// ListenAndServe runs the reaper and the HTTP server until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &fasthttp.Server{
		Handler:      s.Handler,
		Name:         "cheese-engine",
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  time.Minute,
	}
	go s.games.reapLoop(ctx, s.ttl, func(n int) {
		s.reaped.Add(float64(n))
		s.logger.Info("engine_sessions_reaped", zap.Int("count", n))
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("engine_server_listening", zap.String("addr", ln.Addr().String()))
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return srv.ShutdownWithContext(shutdownCtx)
}

func int64Arg(args *fasthttp.Args, key string) int64 {
	v, err := strconv.ParseInt(string(args.Peek(key)), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func fail(ctx *fasthttp.RequestCtx, status int, err error) {
	ctx.SetStatusCode(status)
	ctx.SetBodyString(err.Error())
}
