package launcher

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapewatch/internal/backend"
	"scrapewatch/internal/export"
	"scrapewatch/internal/jobstate"
	"scrapewatch/internal/progress"
	"scrapewatch/internal/testutil"
)

const target = "https://www.equipmenttrader.com/Boom-Lift/equipment-for-sale"

type fakeBackend struct {
	mu        sync.Mutex
	healthErr error
	startErr  error
	starts    []backend.StartRequest
}

func (f *fakeBackend) BaseURL() string { return "http://fake" }

func (f *fakeBackend) Health(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthErr
}

func (f *fakeBackend) StartScrape(_ context.Context, req backend.StartRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, req)
	return f.startErr
}

type fakeStream struct {
	mu      sync.Mutex
	openErr error
	onEvent func(progress.Envelope)
	onFatal func(error)
	closed  bool
	done    chan struct{}
}

func newFakeStream() *fakeStream { return &fakeStream{done: make(chan struct{})} }

func (s *fakeStream) Open(_ context.Context, _ string, onEvent func(progress.Envelope), onFatal func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.onEvent, s.onFatal = onEvent, onFatal
	return nil
}

func (s *fakeStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

func (s *fakeStream) Done() <-chan struct{} { return s.done }

func (s *fakeStream) emit(ev progress.Event) {
	s.onEvent(progress.Wrap(ev, time.Now()))
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type streams struct {
	mu  sync.Mutex
	all []*fakeStream
	err error
}

func (ss *streams) factory(string) Stream {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s := newFakeStream()
	s.openErr = ss.err
	ss.all = append(ss.all, s)
	return s
}

func (ss *streams) get(i int) *fakeStream {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.all[i]
}

type recordingReporter struct {
	mu       sync.Mutex
	updates  []jobstate.State
	finished []int
}

func (r *recordingReporter) Update(s jobstate.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, s)
}

func (r *recordingReporter) Finished(_ jobstate.State, records []export.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, len(records))
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func item(i int) progress.ScrapingItem {
	return progress.ScrapingItem{
		CurrentIndex: i, TotalCount: 2, URL: "https://listing/" + string(rune('0'+i)),
		Status: progress.ItemCompleted, Item: &progress.Item{Brand: "JLG", Model: "M", Price: "$1"},
	}
}

func TestClampMaxPages(t *testing.T) {
	tests := map[int]int{0: DefaultMaxPages, -3: MinPages, 1: 1, 7: 7, 50: 50, 51: MaxPages, 999: MaxPages}
	for in, want := range tests {
		assert.Equal(t, want, ClampMaxPages(in), "in=%d", in)
	}
}

func TestStart_ValidationDoesNotTouchNetworkOrState(t *testing.T) {
	fb := &fakeBackend{}
	ss := &streams{}
	l := New(WithBackend(fb), WithStreamFactory(ss.factory))

	for _, in := range []string{"", "   ", "ftp://x/y"} {
		_, err := l.Start(context.Background(), in, 5)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindValidation), "input %q", in)
	}
	assert.Empty(t, fb.starts)
	assert.Empty(t, ss.all)
	assert.Equal(t, "", l.Session().ID)
	assert.Equal(t, jobstate.New(), l.Snapshot())
}

func TestStart_ValidationKeepsPreviousSession(t *testing.T) {
	fb := &fakeBackend{}
	ss := &streams{}
	l := New(WithBackend(fb), WithStreamFactory(ss.factory))

	sess, err := l.Start(context.Background(), target, 5)
	require.NoError(t, err)
	ss.get(0).emit(item(1))

	_, err = l.Start(context.Background(), " ", 5)
	require.True(t, IsKind(err, KindValidation))
	assert.Equal(t, sess.ID, l.Session().ID)
	assert.Len(t, l.Records(), 1)
	assert.False(t, ss.get(0).isClosed())
}

func TestStart_LiveFlowWithFakes(t *testing.T) {
	fb := &fakeBackend{}
	ss := &streams{}
	rep := &recordingReporter{}
	l := New(WithBackend(fb), WithStreamFactory(ss.factory), WithReporter(rep))

	sess, err := l.Start(context.Background(), target, 80)
	require.NoError(t, err)
	assert.False(t, sess.Demo)
	assert.Regexp(t, `^session_\d+_[0-9a-f]{9}$`, sess.ID)
	require.Len(t, fb.starts, 1)
	assert.Equal(t, backend.StartRequest{URL: target, SessionID: sess.ID, MaxPages: MaxPages}, fb.starts[0])
	assert.Equal(t, "Scraping started! Listening for progress updates...", l.Snapshot().Status)

	st := ss.get(0)
	st.emit(progress.Connected{})
	st.emit(progress.URLsFound{TotalURLs: 2, PagesScraped: 1})
	st.emit(item(1))
	st.emit(item(2))
	st.emit(progress.OverallProgress{Percentage: 100, Completed: 2, Total: 2, Successful: 2})
	st.emit(progress.Completed{TotalScraped: 2, TotalProcessed: 2})

	s, err := l.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, jobstate.OutcomeSucceeded, s.Outcome)
	assert.Len(t, l.Records(), 2)
	assert.True(t, st.isClosed(), "terminal event closes the stream")

	rep.mu.Lock()
	defer rep.mu.Unlock()
	require.NotEmpty(t, rep.updates)
	assert.Equal(t, "Connecting to backend...", rep.updates[0].Status)
	assert.True(t, rep.updates[len(rep.updates)-1].Terminal)
	assert.Equal(t, []int{2}, rep.finished)
	for i := 1; i < len(rep.updates); i++ {
		assert.GreaterOrEqual(t, rep.updates[i].Processed, rep.updates[i-1].Processed)
	}
}

func TestStart_DemoFallback(t *testing.T) {
	fb := &fakeBackend{healthErr: &backend.Error{Type: backend.ErrorTypeUnavailable, Message: "down"}}
	ss := &streams{}
	l := New(WithBackend(fb), WithStreamFactory(ss.factory), WithDemoStep(0))

	sess, err := l.Start(context.Background(), target, 5)
	require.NoError(t, err)
	assert.True(t, sess.Demo)
	assert.Empty(t, ss.all, "no stream is opened in demo mode")
	assert.Empty(t, fb.starts)

	s, err := l.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.True(t, s.Terminal)
	assert.True(t, s.Demo)
	assert.Equal(t, 100.0, s.Percentage)
	assert.Contains(t, s.Status, "demo")
	assert.Len(t, l.Records(), 2)
}

func TestStartDemo(t *testing.T) {
	fb := &fakeBackend{}
	l := New(WithBackend(fb), WithDemoStep(0))

	sess, err := l.StartDemo(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, sess.Demo)
	_, err = l.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Len(t, l.Records(), 2)
}

func TestStartDemo_UsesClock(t *testing.T) {
	at := time.Date(2024, 5, 1, 14, 3, 9, 0, time.UTC)
	l := New(WithBackend(&fakeBackend{}), WithDemoStep(0), WithClock(func() time.Time { return at }))

	sess, err := l.StartDemo(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, at, sess.StartedAt)

	s, err := l.Wait(waitCtx(t))
	require.NoError(t, err)
	require.NotEmpty(t, s.Recent)
	for _, r := range s.Recent {
		assert.Equal(t, at, r.CompletedAt)
	}
}

func TestStart_Rejected(t *testing.T) {
	fb := &fakeBackend{startErr: &backend.Error{Type: backend.ErrorTypeRejected, Message: "session busy"}}
	ss := &streams{}
	rep := &recordingReporter{}
	l := New(WithBackend(fb), WithStreamFactory(ss.factory), WithReporter(rep))

	_, err := l.Start(context.Background(), target, 5)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindStartRejected))

	s := l.Snapshot()
	assert.True(t, s.Terminal)
	assert.Equal(t, jobstate.OutcomeFailed, s.Outcome)
	assert.Equal(t, "Error: session busy", s.Status)
	assert.True(t, ss.get(0).isClosed())

	_, err = l.Wait(waitCtx(t))
	assert.True(t, IsKind(err, KindStartRejected))

	rep.mu.Lock()
	assert.Equal(t, []int{0}, rep.finished)
	rep.mu.Unlock()
}

func TestStart_StreamOpenFailure(t *testing.T) {
	fb := &fakeBackend{}
	ss := &streams{err: errors.New("refused")}
	l := New(WithBackend(fb), WithStreamFactory(ss.factory))

	_, err := l.Start(context.Background(), target, 5)
	require.True(t, IsKind(err, KindStream))
	assert.Empty(t, fb.starts, "start is never issued without a stream")
	assert.Equal(t, jobstate.OutcomeFailed, l.Snapshot().Outcome)
}

func TestStreamFatal(t *testing.T) {
	fb := &fakeBackend{}
	ss := &streams{}
	l := New(WithBackend(fb), WithStreamFactory(ss.factory))

	_, err := l.Start(context.Background(), target, 5)
	require.NoError(t, err)
	st := ss.get(0)
	st.emit(progress.Phase{Message: "Collecting"})
	st.onFatal(errors.New("reset by peer"))
	st.onFatal(errors.New("again"))

	s, err := l.Wait(waitCtx(t))
	require.True(t, IsKind(err, KindStreamLost))
	assert.Equal(t, "Error: Lost connection to progress stream", s.Status)
}

func TestRelaunchResetsAndDropsStaleEvents(t *testing.T) {
	fb := &fakeBackend{}
	ss := &streams{}
	l := New(WithBackend(fb), WithStreamFactory(ss.factory))

	first, err := l.Start(context.Background(), target, 5)
	require.NoError(t, err)
	old := ss.get(0)
	old.emit(progress.URLsFound{TotalURLs: 10, PagesScraped: 1})
	old.emit(item(1))
	require.Len(t, l.Records(), 1)

	second, err := l.Start(context.Background(), target, 5)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, old.isClosed())
	assert.Empty(t, l.Records())
	assert.Equal(t, 0, l.Snapshot().TotalDiscovered)

	old.emit(item(2))
	old.emit(progress.Completed{TotalScraped: 1, TotalProcessed: 1})
	assert.Empty(t, l.Records())
	assert.False(t, l.Snapshot().Terminal)

	ss.get(1).emit(item(1))
	assert.Len(t, l.Records(), 1)
}

func TestClose_DropsLateEvents(t *testing.T) {
	fb := &fakeBackend{}
	ss := &streams{}
	l := New(WithBackend(fb), WithStreamFactory(ss.factory))
	_, err := l.Start(context.Background(), target, 5)
	require.NoError(t, err)

	l.Close()
	l.Close()
	assert.True(t, ss.get(0).isClosed())
	ss.get(0).emit(item(1))
	assert.Empty(t, l.Records())
}

func TestWait_ContextDone(t *testing.T) {
	fb := &fakeBackend{}
	ss := &streams{}
	l := New(WithBackend(fb), WithStreamFactory(ss.factory))
	_, err := l.Start(context.Background(), target, 5)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExport(t *testing.T) {
	l := New(WithBackend(&fakeBackend{}), WithDemoStep(0))
	_, _, err := l.Export(filepath.Join(t.TempDir(), "none.csv"))
	assert.ErrorIs(t, err, ErrNoRecords)

	_, err = l.StartDemo(context.Background(), target)
	require.NoError(t, err)
	_, err = l.Wait(waitCtx(t))
	require.NoError(t, err)

	path, n, err := l.Export(filepath.Join(t.TempDir(), "listings"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "listings.csv"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.True(t, strings.HasPrefix(string(data), "Brand,Model,Condition,Location,Price,URL\n"))
	assert.Contains(t, string(data), `"JLG","450AJ","Used","Nashville, TN","$36,950"`)
}

func TestPlainReporter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainReporter(&buf)
	s := jobstate.New()
	s.Status = "Connecting to backend..."
	p.Update(s)
	p.Update(s)
	s.Status = "Progress: 1/2 (1 successful)"
	s.TotalDiscovered, s.Processed, s.Successful, s.Percentage = 2, 1, 1, 50
	p.Update(s)
	p.Finished(s, []export.Record{{Brand: "JLG"}})

	assert.Equal(t,
		"Connecting to backend...\n"+
			"[ 50.0%] Progress: 1/2 (1 successful)\n"+
			"Processed: 1  Successful: 1  Failed: ~0  Listings: 1\n",
		buf.String())
}

// Exercises the real HTTP client and stream consumer against the fake API.
func TestStart_AgainstFakeAPI(t *testing.T) {
	fake := testutil.NewBackend(t)
	fake.OnStart(func(call testutil.StartCall) {
		id := call.SessionID
		fake.SendEvent(id, "connected", map[string]any{"message": "ok"})
		fake.SendEvent(id, "pagination", map[string]any{"current_page": 1, "max_pages": call.MaxPages, "message": "Loading page 1"})
		fake.SendEvent(id, "urls_found", map[string]any{"total_urls": 2, "pages_scraped": 1})
		fake.SendEvent(id, "scraping_item", map[string]any{
			"current_index": 1, "total_count": 2, "url": "https://listing/1", "status": "completed",
			"item": map[string]any{"brand": "Genie", "model": "S-65", "price": "$40,000"},
		})
		fake.SendEvent(id, "scraping_item", map[string]any{
			"current_index": 2, "total_count": 2, "url": "https://listing/2", "status": "skipped", "reason": "no price",
		})
		fake.SendEvent(id, "overall_progress", map[string]any{"percentage": 100, "completed": 2, "total": 2, "successful": 1})
		fake.SendEvent(id, "completed", map[string]any{"total_scraped": 1, "total_processed": 2})
	})

	l := New(WithBackend(backend.New(fake.URL(), backend.WithTimeout(2*time.Second))))
	sess, err := l.Start(waitCtx(t), target, 3)
	require.NoError(t, err)
	assert.False(t, sess.Demo)

	s, err := l.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, jobstate.OutcomeSucceeded, s.Outcome)
	assert.Equal(t, 2, s.Processed)
	assert.Equal(t, 1, s.Successful)
	assert.Equal(t, 1, s.Failed())
	assert.Equal(t, 3, s.TotalPages)

	records := l.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "Genie", records[0].Brand)
	assert.Equal(t, export.DefaultLocation, records[0].Location)

	starts := fake.Starts()
	require.Len(t, starts, 1)
	assert.Equal(t, sess.ID, starts[0].SessionID)
}

func TestStart_FakeAPIUnavailableFallsBack(t *testing.T) {
	fake := testutil.NewBackend(t)
	url := fake.URL()
	fake.Close()

	l := New(WithAPIURL(url), WithDemoStep(0))
	sess, err := l.Start(waitCtx(t), target, 5)
	require.NoError(t, err)
	assert.True(t, sess.Demo)
	s, err := l.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.True(t, s.Demo)
}
