// Package launcher runs one scraping job session at a time: it probes the
// backend, opens the progress stream, issues the start command, and folds
// every event into a jobstate.State. When the backend is unreachable it
// falls back to the scripted demo source.
package launcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"scrapewatch/internal/backend"
	"scrapewatch/internal/demo"
	"scrapewatch/internal/export"
	"scrapewatch/internal/jobstate"
	"scrapewatch/internal/progress"
	"scrapewatch/internal/session"
	"scrapewatch/internal/stream"
	"scrapewatch/internal/util"
)

const (
	MinPages        = 1
	MaxPages        = 50
	DefaultMaxPages = 5

	noticeConnecting = "Connecting to backend..."
	noticeStarted    = "Scraping started! Listening for progress updates..."
	statusLost       = "Lost connection to progress stream"
)

// Backend is the job API used by the launcher.
type Backend interface {
	BaseURL() string
	Health(ctx context.Context) error
	StartScrape(ctx context.Context, req backend.StartRequest) error
}

// Stream is a single-use progress stream.
type Stream interface {
	Open(ctx context.Context, sessionID string, onEvent func(progress.Envelope), onFatal func(error)) error
	Close()
	Done() <-chan struct{}
}

// StreamFactory builds a Stream for the job API at baseURL.
type StreamFactory func(baseURL string) Stream

// EventSource produces events for a session without a backend.
type EventSource interface {
	Run(ctx context.Context, emit func(progress.Envelope)) error
}

// Session identifies a launched job.
type Session struct {
	ID        string
	URL       string
	MaxPages  int
	Demo      bool
	StartedAt time.Time
}

// Launcher owns the current session. All methods are safe for concurrent use.
type Launcher struct {
	backend   Backend
	newStream StreamFactory
	newDemo   func(apiURL string) EventSource
	reporter  Reporter
	demoStep  time.Duration
	newID     func() string
	now       func() time.Time

	mu       sync.Mutex
	emitMu   sync.Mutex
	gen      uint64
	session  Session
	state    jobstate.State
	acc      *export.Accumulator
	stream   Stream
	cancel   context.CancelFunc
	done     chan struct{}
	finished bool
	failKind Kind
	failErr  error
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithBackend sets the job API client.
func WithBackend(b Backend) Option {
	return func(l *Launcher) {
		l.backend = b
	}
}

// WithAPIURL sets the job API root used when no backend is injected.
func WithAPIURL(u string) Option {
	return func(l *Launcher) {
		l.backend = backend.New(u)
	}
}

// WithStreamFactory replaces how progress streams are built.
func WithStreamFactory(f StreamFactory) Option {
	return func(l *Launcher) {
		l.newStream = f
	}
}

// WithReporter attaches a reporter. Repeated options fan out in order.
func WithReporter(r Reporter) Option {
	return func(l *Launcher) {
		if r == nil {
			return
		}
		if l.reporter == nil {
			l.reporter = r
			return
		}
		if m, ok := l.reporter.(multiReporter); ok {
			l.reporter = append(m, r)
			return
		}
		l.reporter = multiReporter{l.reporter, r}
	}
}

// WithDemoStep sets the pause between scripted demo batches.
func WithDemoStep(d time.Duration) Option {
	return func(l *Launcher) {
		l.demoStep = d
	}
}

// WithDemoSource replaces the scripted fallback.
func WithDemoSource(f func(apiURL string) EventSource) Option {
	return func(l *Launcher) {
		l.newDemo = f
	}
}

// WithClock sets the source of session start times.
func WithClock(now func() time.Time) Option {
	return func(l *Launcher) {
		l.now = now
	}
}

// New constructs a Launcher. Missing components get defaults.
func New(opts ...Option) *Launcher {
	l := &Launcher{
		demoStep: demo.DefaultStep,
		newID:    session.NewID,
		now:      time.Now,
		state:    jobstate.New(),
		acc:      export.NewAccumulator(),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	if l.backend == nil {
		l.backend = backend.New(backend.DefaultBaseURL)
	}
	if l.newStream == nil {
		l.newStream = func(baseURL string) Stream { return stream.New(baseURL) }
	}
	if l.newDemo == nil {
		l.newDemo = func(apiURL string) EventSource {
			return demo.New(apiURL, demo.WithStep(l.demoStep), demo.WithClock(l.now))
		}
	}
	return l
}

// ClampMaxPages bounds n to [MinPages, MaxPages]. Zero means the default.
func ClampMaxPages(n int) int {
	switch {
	case n == 0:
		return DefaultMaxPages
	case n < MinPages:
		return MinPages
	case n > MaxPages:
		return MaxPages
	}
	return n
}

// Start launches a job for targetURL. ctx bounds the whole session, not
// just this call. A validation failure leaves the previous session alone.
// An unreachable backend is not an error: the demo source runs instead and
// the returned Session has Demo set.
func (l *Launcher) Start(ctx context.Context, targetURL string, maxPages int) (Session, error) {
	u, err := util.NormalizeTargetURL(targetURL)
	if err != nil {
		return Session{}, &JobError{Kind: KindValidation, Message: "Please enter a valid URL", Err: err}
	}
	maxPages = ClampMaxPages(maxPages)

	gen, sess, sctx := l.reset(ctx, u, maxPages)
	log.Info().Str("session", sess.ID).Str("url", u).Int("max_pages", maxPages).Msg("launching job")

	l.dispatch(gen, progress.Wrap(progress.Notice{Text: noticeConnecting}, l.now()))

	if err := l.backend.Health(sctx); err != nil {
		if ctx.Err() != nil {
			return sess, ctx.Err()
		}
		log.Warn().Err(err).Str("api", l.backend.BaseURL()).Msg("backend unavailable, using demo data")
		sess = l.markDemo(gen)
		l.runDemo(sctx, gen)
		return sess, nil
	}

	st := l.newStream(l.backend.BaseURL())
	if !l.attachStream(gen, st) {
		st.Close()
		return sess, context.Canceled
	}
	err = st.Open(sctx, sess.ID,
		func(env progress.Envelope) { l.dispatch(gen, env) },
		func(err error) { l.fatal(gen, err) },
	)
	if err != nil {
		msg := "Failed to connect to progress stream"
		l.fail(gen, KindStream, msg, err)
		return sess, &JobError{Kind: KindStream, Message: msg, Err: err}
	}

	err = l.backend.StartScrape(sctx, backend.StartRequest{URL: u, SessionID: sess.ID, MaxPages: maxPages})
	if err != nil {
		reason := backend.Reason(err)
		log.Error().Err(err).Str("session", sess.ID).Msg("start rejected")
		l.setFailure(gen, KindStartRejected, err)
		l.dispatch(gen, progress.Wrap(progress.Error{Message: reason}, l.now()))
		st.Close()
		return sess, &JobError{Kind: KindStartRejected, Message: reason, Err: err}
	}

	l.dispatch(gen, progress.Wrap(progress.Notice{Text: noticeStarted}, l.now()))
	return sess, nil
}

// StartDemo launches the scripted fallback without contacting the backend.
func (l *Launcher) StartDemo(ctx context.Context, targetURL string) (Session, error) {
	u, err := util.NormalizeTargetURL(targetURL)
	if err != nil {
		return Session{}, &JobError{Kind: KindValidation, Message: "Please enter a valid URL", Err: err}
	}
	gen, _, sctx := l.reset(ctx, u, DefaultMaxPages)
	sess := l.markDemo(gen)
	log.Info().Str("session", sess.ID).Msg("launching demo job")
	l.runDemo(sctx, gen)
	return sess, nil
}

// Session returns the current session.
func (l *Launcher) Session() Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Snapshot returns the current state.
func (l *Launcher) Snapshot() jobstate.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Records returns the listings collected so far, in arrival order.
func (l *Launcher) Records() []export.Record {
	return l.acc.Records()
}

// Wait blocks until the current session is terminal or ctx is done. A
// failed job is reported as a JobError.
func (l *Launcher) Wait(ctx context.Context) (jobstate.State, error) {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return l.Snapshot(), ctx.Err()
	case <-done:
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.state
	if s.Outcome != jobstate.OutcomeFailed {
		return s, nil
	}
	kind := l.failKind
	if kind == "" {
		kind = KindJobFailed
	}
	return s, &JobError{Kind: kind, Message: s.Failure, Err: l.failErr}
}

// Export writes the collected listings as CSV to filename.
func (l *Launcher) Export(filename string) (string, int64, error) {
	records := l.acc.Records()
	if len(records) == 0 {
		return "", 0, ErrNoRecords
	}
	path, n, err := export.Export(records, filename)
	if err != nil {
		return "", 0, err
	}
	log.Info().Str("path", path).Int("records", len(records)).Int64("bytes", n).Msg("exported listings")
	return path, n, nil
}

// Close stops the current session. Late events are dropped.
func (l *Launcher) Close() {
	l.mu.Lock()
	l.gen++
	cancel, st := l.cancel, l.stream
	l.cancel, l.stream = nil, nil
	l.mu.Unlock()

	if st != nil {
		st.Close()
	}
	if cancel != nil {
		cancel()
	}
}

func (l *Launcher) reset(ctx context.Context, u string, maxPages int) (uint64, Session, context.Context) {
	sctx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	l.gen++
	prevCancel, prevStream := l.cancel, l.stream
	l.session = Session{ID: l.newID(), URL: u, MaxPages: maxPages, StartedAt: l.now()}
	l.state = jobstate.New()
	l.acc.Reset()
	l.stream = nil
	l.cancel = cancel
	l.done = make(chan struct{})
	l.finished = false
	l.failKind, l.failErr = "", nil
	gen, sess := l.gen, l.session
	l.mu.Unlock()

	if prevStream != nil {
		prevStream.Close()
	}
	if prevCancel != nil {
		prevCancel()
	}
	return gen, sess, sctx
}

func (l *Launcher) markDemo(gen uint64) Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen == l.gen {
		l.session.Demo = true
	}
	return l.session
}

func (l *Launcher) attachStream(gen uint64, st Stream) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return false
	}
	l.stream = st
	return true
}

func (l *Launcher) setFailure(gen uint64, kind Kind, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen == l.gen && !l.finished {
		l.failKind, l.failErr = kind, err
	}
}

func (l *Launcher) runDemo(ctx context.Context, gen uint64) {
	src := l.newDemo(l.backend.BaseURL())
	go func() {
		if err := src.Run(ctx, func(env progress.Envelope) { l.dispatch(gen, env) }); err != nil {
			log.Debug().Err(err).Msg("demo source stopped")
		}
	}()
}

// dispatch applies env to the session identified by gen.
func (l *Launcher) dispatch(gen uint64, env progress.Envelope) {
	l.transition(gen, func(s jobstate.State) (jobstate.State, jobstate.Effects) {
		return jobstate.Apply(s, env)
	})
}

func (l *Launcher) fatal(gen uint64, err error) {
	l.fail(gen, KindStreamLost, statusLost, err)
}

func (l *Launcher) fail(gen uint64, kind Kind, msg string, err error) {
	l.setFailure(gen, kind, err)
	l.transition(gen, func(s jobstate.State) (jobstate.State, jobstate.Effects) {
		return jobstate.Fail(s, msg), jobstate.Effects{CloseStream: true}
	})
}

// transition runs step under the launcher lock and reports the result.
// emitMu is taken before the state lock is released so reporters observe
// states in the order they were applied.
func (l *Launcher) transition(gen uint64, step func(jobstate.State) (jobstate.State, jobstate.Effects)) {
	l.mu.Lock()
	if gen != l.gen || l.finished {
		l.mu.Unlock()
		return
	}
	next, eff := step(l.state)
	l.state = next
	if eff.Record != nil {
		l.acc.Append(*eff.Record)
	}
	st := l.stream
	terminal := next.Terminal
	var records []export.Record
	if terminal {
		l.finished = true
		close(l.done)
		records = l.acc.Records()
		log.Info().Str("session", l.session.ID).Str("outcome", string(next.Outcome)).
			Int("listings", len(records)).Msg("job finished")
	}
	rep := l.reporter
	l.emitMu.Lock()
	l.mu.Unlock()
	defer l.emitMu.Unlock()

	if eff.CloseStream && st != nil {
		st.Close()
	}
	if rep == nil {
		return
	}
	rep.Update(next)
	if terminal {
		rep.Finished(next, records)
	}
}

// String renders a short description for logs.
func (s Session) String() string {
	mode := "live"
	if s.Demo {
		mode = "demo"
	}
	return fmt.Sprintf("%s (%s, %d pages, %s)", s.ID, s.URL, s.MaxPages, mode)
}
