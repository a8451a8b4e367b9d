package engineclient

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/Cheese-Clock/internal/domain"
)

const (
	opNewGame   = "newgame"
	opEndGame   = "endgame"
	opBestMove  = "bestmove"
	opMove      = "playermove"
	opKeepAlive = "keepalive"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

// Client speaks the engine session protocol over HTTP.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider
	logger  *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// WithRetry bounds attempts for idempotent calls (endgame, keepalive).
func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDial replaces the TCP dialer, e.g. with an in-memory listener.
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		// ReadTimeout stays 0: bestmove is bounded by the caller's context only.
		http:           &fasthttp.Client{WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		logger:         zap.NewNop(),
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type newGameResponse struct {
	PlayerID string `json:"playerID"`
}

// CreateSession opens a remote session. The returned ID supersedes any earlier one.
func (c *Client) CreateSession(ctx context.Context, spec domain.StartSpec) (domain.SessionID, error) {
	res, err := c.do(ctx, call{
		op:      opNewGame,
		method:  fasthttp.MethodPost,
		path:    "/newgame",
		body:    []byte(spec.Body()),
		bounded: true,
	})
	if err != nil {
		return "", err
	}
	var out newGameResponse
	if err := json.Unmarshal(res, &out); err != nil {
		return "", &NetworkError{Op: opNewGame, Err: err}
	}
	id := domain.SessionID(strings.TrimSpace(out.PlayerID))
	if id.Empty() {
		return "", &NetworkError{Op: opNewGame, Err: errors.New("empty playerID")}
	}
	c.logger.Info("engine_session_created", zap.String("session", string(id)), zap.String("start", spec.Body()))
	return id, nil
}

func (c *Client) EndSession(ctx context.Context, id domain.SessionID) error {
	_, err := c.do(ctx, call{
		op:      opEndGame,
		method:  fasthttp.MethodGet,
		path:    "/endgame/",
		query:   [][2]string{{"playerID", string(id)}},
		bounded: true,
		retry:   true,
	})
	return err
}

// RequestMove asks the engine for a move given both clocks.
// No client timeout applies; only ctx cancels it.
func (c *Client) RequestMove(ctx context.Context, id domain.SessionID, b domain.TimeBudgets) (string, error) {
	res, err := c.do(ctx, call{
		op:     opBestMove,
		method: fasthttp.MethodGet,
		path:   "/bestmove",
		query: [][2]string{
			{"playerID", string(id)},
			{"wtime", strconv.FormatInt(b.WhiteMillis, 10)},
			{"winc", strconv.FormatInt(b.WhiteIncrementMillis, 10)},
			{"btime", strconv.FormatInt(b.BlackMillis, 10)},
			{"binc", strconv.FormatInt(b.BlackIncrementMillis, 10)},
		},
	})
	if err != nil {
		return "", err
	}
	mv := strings.TrimSpace(string(res))
	if fields := strings.Fields(mv); len(fields) >= 2 && fields[0] == "bestmove" {
		mv = fields[1]
	}
	if mv == "" {
		return "", &NetworkError{Op: opBestMove, Err: errors.New("empty move")}
	}
	return mv, nil
}

// ReportMove keeps the server-side position in sync.
func (c *Client) ReportMove(ctx context.Context, id domain.SessionID, move string) error {
	_, err := c.do(ctx, call{
		op:      opMove,
		method:  fasthttp.MethodGet,
		path:    "/playermove",
		query:   [][2]string{{"playerID", string(id)}, {"move", move}},
		bounded: true,
	})
	return err
}

func (c *Client) Heartbeat(ctx context.Context, id domain.SessionID) error {
	_, err := c.do(ctx, call{
		op:      opKeepAlive,
		method:  fasthttp.MethodGet,
		path:    "/keepalive",
		query:   [][2]string{{"playerID", string(id)}},
		bounded: true,
		retry:   true,
	})
	return err
}

type call struct {
	op      string
	method  string
	path    string
	query   [][2]string
	body    []byte
	bounded bool
	retry   bool
}

func (c *Client) do(ctx context.Context, in call) ([]byte, error) {
	attempts := 1
	if in.retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		status, body, err := c.roundTrip(ctx, in)
		if err != nil {
			lastErr = &NetworkError{Op: in.op, Err: err}
			if attempt == attempts || ctx.Err() != nil {
				return nil, lastErr
			}
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}

		if status < 200 || status >= 300 {
			lastErr = &NetworkError{Op: in.op, Status: status, Body: truncate(string(body), 512)}
			if attempt == attempts || !shouldRetryStatus(status) {
				return nil, lastErr
			}
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}
		return body, nil
	}

	if lastErr == nil {
		lastErr = &NetworkError{Op: in.op, Err: errors.New("unknown error")}
	}
	return nil, lastErr
}

// roundTrip owns the pooled request/response on its own goroutine so that
// a cancelled ctx can return early without racing the release.
func (c *Client) roundTrip(ctx context.Context, in call) (int, []byte, error) {
	type result struct {
		status int
		body   []byte
		err    error
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	ch := make(chan result, 1)
	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer func() {
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
		}()

		req.Header.SetMethod(in.method)
		req.SetRequestURI(c.baseURL + in.path)
		if len(in.query) > 0 {
			args := req.URI().QueryArgs()
			for _, kv := range in.query {
				args.Add(kv[0], kv[1])
			}
		}
		if c.headers != nil {
			for k, v := range c.headers() {
				if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
					req.Header.Set(k, v)
				}
			}
		}
		if in.body != nil {
			req.Header.SetContentType("text/plain; charset=utf-8")
			req.SetBody(in.body)
		}

		var err error
		switch {
		case in.bounded:
			err = c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		default:
			if dl, ok := ctx.Deadline(); ok {
				err = c.http.DoDeadline(req, resp, dl)
			} else {
				err = c.http.Do(req, resp)
			}
		}
		if err != nil {
			ch <- result{err: err}
			return
		}
		ch <- result{status: resp.StatusCode(), body: append([]byte(nil), resp.Body()...)}
	}()

	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case r := <-ch:
		return r.status, r.body, r.err
	}
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
