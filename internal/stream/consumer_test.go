package stream

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapewatch/internal/progress"
	"scrapewatch/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []progress.Envelope
	fatals []error
	fatal  chan error
}

func newRecorder() *recorder {
	return &recorder{fatal: make(chan error, 4)}
}

func (r *recorder) onEvent(env progress.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env)
}

func (r *recorder) onFatal(err error) {
	r.mu.Lock()
	r.fatals = append(r.fatals, err)
	r.mu.Unlock()
	r.fatal <- err
}

func (r *recorder) types() []progress.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Event.Type())
	}
	return out
}

func (r *recorder) fatalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fatals)
}

func waitDone(t *testing.T, c *Consumer) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not finish")
	}
}

func TestConsumer_DeliversInOrderAndClosesOnTerminal(t *testing.T) {
	fake := testutil.NewBackend(t)
	const id = "session_1_abcdefghi"
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	c := New(fake.URL(), WithClock(func() time.Time { return at }))
	rec := newRecorder()
	require.NoError(t, c.Open(context.Background(), id, rec.onEvent, rec.onFatal))
	fake.WaitConnected(t, id)

	fake.SendEvent(id, "connected", map[string]any{"message": "hi"})
	fake.Send(id, ": keepalive\n\n")
	fake.SendEvent(id, "urls_found", map[string]any{"total_urls": 2, "pages_scraped": 1})
	fake.Send(id, "data: {not json\n\n")
	fake.SendEvent(id, "mystery", map[string]any{"x": 1})
	fake.SendEvent(id, "heartbeat", nil)
	fake.SendEvent(id, "completed", map[string]any{"total_scraped": 2, "total_processed": 2})
	fake.SendEvent(id, "overall_progress", map[string]any{"percentage": 10})

	waitDone(t, c)

	assert.Equal(t, []progress.Type{
		progress.TypeConnected,
		progress.TypeURLsFound,
		progress.Type("mystery"),
		progress.TypeHeartbeat,
		progress.TypeCompleted,
	}, rec.types())
	assert.Equal(t, 0, rec.fatalCount())
	rec.mu.Lock()
	assert.Equal(t, at, rec.events[0].ReceivedAt)
	rec.mu.Unlock()
}

func TestConsumer_EOFBeforeTerminalIsFatalOnce(t *testing.T) {
	fake := testutil.NewBackend(t)
	const id = "s-eof"

	c := New(fake.URL())
	rec := newRecorder()
	require.NoError(t, c.Open(context.Background(), id, rec.onEvent, rec.onFatal))
	fake.SendEvent(id, "phase", map[string]any{"message": "Collecting"})
	fake.End(id)

	select {
	case err := <-rec.fatal:
		assert.True(t, errors.Is(err, ErrStreamEnded), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no fatal reported")
	}
	waitDone(t, c)
	assert.Equal(t, 1, rec.fatalCount())
	assert.Equal(t, []progress.Type{progress.TypePhase}, rec.types())
}

func TestConsumer_OpenRejected(t *testing.T) {
	fake := testutil.NewBackend(t)
	fake.SetStreamStatus(http.StatusNotFound)

	c := New(fake.URL())
	rec := newRecorder()
	err := c.Open(context.Background(), "missing", rec.onEvent, rec.onFatal)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	waitDone(t, c)
	assert.Empty(t, rec.types())
	assert.Equal(t, 0, rec.fatalCount())
}

func TestConsumer_SecondOpen(t *testing.T) {
	fake := testutil.NewBackend(t)
	c := New(fake.URL())
	rec := newRecorder()
	require.NoError(t, c.Open(context.Background(), "s1", rec.onEvent, rec.onFatal))
	t.Cleanup(c.Close)

	err := c.Open(context.Background(), "s1", rec.onEvent, rec.onFatal)
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestConsumer_CloseIsIdempotentAndSilent(t *testing.T) {
	fake := testutil.NewBackend(t)
	const id = "s-close"
	c := New(fake.URL())
	rec := newRecorder()
	require.NoError(t, c.Open(context.Background(), id, rec.onEvent, rec.onFatal))
	fake.WaitConnected(t, id)

	c.Close()
	c.Close()
	waitDone(t, c)

	fake.SendEvent(id, "connected", nil)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.types())
	assert.Equal(t, 0, rec.fatalCount())

	assert.ErrorIs(t, c.Open(context.Background(), id, rec.onEvent, rec.onFatal), ErrClosed)
}

func TestConsumer_CloseBeforeOpen(t *testing.T) {
	c := New("http://127.0.0.1:1")
	c.Close()
	waitDone(t, c)
}

func TestConsumer_CloseFromCallback(t *testing.T) {
	fake := testutil.NewBackend(t)
	const id = "s-cb"
	c := New(fake.URL())
	rec := newRecorder()
	onEvent := func(env progress.Envelope) {
		rec.onEvent(env)
		c.Close()
	}
	require.NoError(t, c.Open(context.Background(), id, onEvent, rec.onFatal))
	fake.SendEvent(id, "connected", nil)
	fake.SendEvent(id, "phase", map[string]any{"message": "late"})

	waitDone(t, c)
	assert.Equal(t, []progress.Type{progress.TypeConnected}, rec.types())
	assert.Equal(t, 0, rec.fatalCount())
}

func TestConsumer_ContextCancelIsSilent(t *testing.T) {
	fake := testutil.NewBackend(t)
	const id = "s-ctx"
	ctx, cancel := context.WithCancel(context.Background())
	c := New(fake.URL())
	rec := newRecorder()
	require.NoError(t, c.Open(ctx, id, rec.onEvent, rec.onFatal))
	fake.WaitConnected(t, id)

	cancel()
	waitDone(t, c)
	assert.Equal(t, 0, rec.fatalCount())
}

func TestConsumer_IdleTimeout(t *testing.T) {
	fake := testutil.NewBackend(t)
	const id = "s-idle"
	c := New(fake.URL(), WithIdleTimeout(100*time.Millisecond))
	rec := newRecorder()
	require.NoError(t, c.Open(context.Background(), id, rec.onEvent, rec.onFatal))

	select {
	case err := <-rec.fatal:
		assert.ErrorIs(t, err, ErrIdleTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("idle timeout never fired")
	}
	waitDone(t, c)
	assert.Equal(t, 1, rec.fatalCount())
}
