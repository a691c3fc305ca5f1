// Package stream consumes the server-push progress channel of one job
// session and forwards decoded events in arrival order.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"scrapewatch/internal/backend"
	"scrapewatch/internal/logging"
	"scrapewatch/internal/progress"
)

var (
	// ErrAlreadyOpen is returned by a second Open on the same Consumer.
	ErrAlreadyOpen = errors.New("progress stream already open")
	// ErrClosed is returned by Open after Close.
	ErrClosed = errors.New("progress stream closed")
	// ErrIdleTimeout is reported when no bytes arrive within the idle timeout.
	ErrIdleTimeout = errors.New("progress stream idle timeout")
	// ErrStreamEnded is reported when the server ends the stream before a
	// terminal event.
	ErrStreamEnded = errors.New("progress stream ended before job finished")
)

// Consumer reads one session's progress stream. It is single use.
type Consumer struct {
	baseURL string
	http    *resty.Client
	idle    time.Duration
	now     func() time.Time

	mu      sync.Mutex
	opened  bool
	started bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	body    io.ReadCloser
	idleHit bool

	done     chan struct{}
	doneOnce sync.Once
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithHTTPClient replaces the resty client used for the stream request.
// The client must not carry an overall request timeout.
func WithHTTPClient(c *resty.Client) Option {
	return func(s *Consumer) {
		s.http = c
	}
}

// WithIdleTimeout fails the stream when no bytes arrive for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Consumer) {
		s.idle = d
	}
}

// WithClock sets the source of arrival timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Consumer) {
		s.now = now
	}
}

// New returns an unopened Consumer for the job API at baseURL.
func New(baseURL string, opts ...Option) *Consumer {
	c := &Consumer{
		baseURL: baseURL,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = resty.New().SetLogger(logging.Resty())
	}
	return c
}

// Open connects to the progress stream of sessionID and returns once the
// response headers have arrived. Events are delivered to onEvent from a
// single goroutine in arrival order. onFatal is called at most once, when
// the stream fails or ends before a terminal event. No event is delivered
// after Close, and cancelling ctx is treated as Close.
func (c *Consumer) Open(ctx context.Context, sessionID string, onEvent func(progress.Envelope), onFatal func(error)) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.opened:
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.opened = true
	reqCtx, cancel := context.WithCancel(ctx)
	c.ctx, c.cancel = reqCtx, cancel
	c.mu.Unlock()

	url := backend.ProgressURL(c.baseURL, sessionID)
	resp, err := c.http.R().
		SetContext(reqCtx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Cache-Control", "no-cache").
		Get(url)
	if err != nil {
		cancel()
		c.finish()
		return fmt.Errorf("open progress stream: %w", err)
	}
	body := resp.RawBody()
	if !resp.IsSuccess() {
		if body != nil {
			body.Close()
		}
		cancel()
		c.finish()
		return fmt.Errorf("open progress stream: status %d", resp.StatusCode())
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		body.Close()
		c.finish()
		return ErrClosed
	}
	c.body = body
	c.started = true
	c.mu.Unlock()

	log.Debug().Str("session", sessionID).Str("url", url).Msg("progress stream open")
	go c.read(sessionID, body, onEvent, onFatal)
	return nil
}

// Close stops the stream. It is idempotent, does not block, and may be
// called from inside the callbacks.
func (c *Consumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	if c.body != nil {
		c.body.Close()
	}
	if !c.started && !c.opened {
		c.finish()
	}
}

// Done is closed once the reader goroutine has exited, or immediately when
// the Consumer closes without ever starting one.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

func (c *Consumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Consumer) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Consumer) expire() {
	c.mu.Lock()
	c.idleHit = true
	body := c.body
	c.mu.Unlock()
	if body != nil {
		body.Close()
	}
}

func (c *Consumer) read(sessionID string, body io.ReadCloser, onEvent func(progress.Envelope), onFatal func(error)) {
	defer c.finish()
	defer c.Close()

	var src io.Reader = body
	if c.idle > 0 {
		timer := time.AfterFunc(c.idle, c.expire)
		defer timer.Stop()
		src = &activityReader{r: body, touch: func() { timer.Reset(c.idle) }}
	}
	frames := newFrameReader(src)

	for {
		payload, err := frames.Next()
		if err != nil {
			c.fail(sessionID, err, onFatal)
			return
		}
		env, derr := progress.Decode([]byte(payload), c.now())
		if derr != nil {
			log.Warn().Err(derr).Str("session", sessionID).Msg("dropping malformed progress frame")
			continue
		}
		if u, ok := env.Event.(progress.Unknown); ok {
			log.Debug().Str("session", sessionID).Str("type", u.Tag).Msg("unknown progress event")
		}
		if c.isClosed() {
			return
		}
		onEvent(env)
		if progress.IsTerminal(env.Event) {
			log.Debug().Str("session", sessionID).Str("type", string(env.Event.Type())).Msg("terminal event, closing stream")
			return
		}
	}
}

func (c *Consumer) fail(sessionID string, err error, onFatal func(error)) {
	c.mu.Lock()
	closed, idle := c.closed, c.idleHit
	cancelled := c.ctx != nil && c.ctx.Err() != nil
	c.mu.Unlock()

	switch {
	case idle:
		err = ErrIdleTimeout
	case closed, cancelled:
		return
	case errors.Is(err, io.EOF):
		err = ErrStreamEnded
	default:
		err = fmt.Errorf("read progress stream: %w", err)
	}
	log.Error().Err(err).Str("session", sessionID).Msg("progress stream lost")
	if onFatal != nil {
		onFatal(err)
	}
}

// activityReader calls touch after every read that returns data.
type activityReader struct {
	r     io.Reader
	touch func()
}

func (a *activityReader) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if n > 0 {
		a.touch()
	}
	return n, err
}
