package state

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"kangsantri/internal/metrics"
	"kangsantri/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) Next(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", prefix, s.n)
}

type harness struct {
	kv      *storage.MemoryKV
	clock   *fakeClock
	ids     *seqIDs
	metrics *metrics.Metrics
	sealer  SecretSealer
}

func newHarness() *harness {
	return &harness{
		kv:      storage.NewMemoryKV(),
		clock:   newFakeClock(),
		ids:     &seqIDs{},
		metrics: metrics.New(nil),
	}
}

func (h *harness) open(t *testing.T) *App {
	t.Helper()
	app, err := Open(context.Background(), Options{
		KV:      h.kv,
		Sealer:  h.sealer,
		Logger:  zerolog.Nop(),
		Metrics: h.metrics,
		Now:     h.clock.Now,
		NewID:   h.ids.Next,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

// reopen closes app and loads a fresh handle from the same store.
func (h *harness) reopen(t *testing.T, app *App) *App {
	t.Helper()
	require.NoError(t, app.Close(context.Background()))
	return h.open(t)
}

func (h *harness) put(t *testing.T, key, value string) {
	t.Helper()
	require.NoError(t, h.kv.Set(context.Background(), key, value))
}

func (h *harness) has(t *testing.T, key string) bool {
	t.Helper()
	_, found, err := h.kv.Get(context.Background(), key)
	require.NoError(t, err)
	return found
}

func (h *harness) get(t *testing.T, key string) string {
	t.Helper()
	v, found, err := h.kv.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, found, "key %s missing", key)
	return v
}
