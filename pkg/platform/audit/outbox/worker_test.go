package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "github.com/cernops/keystone/pkg/platform/audit"
)

type fakeSource struct {
	mu        sync.Mutex
	pending   []audit.OutboxEntry
	published []string
}

func (s *fakeSource) Claim(ctx context.Context, limit uint, fn func(context.Context, []audit.OutboxEntry) ([]string, error)) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(int(limit), len(s.pending))
	if n == 0 {
		return 0, nil
	}
	batch := append([]audit.OutboxEntry{}, s.pending[:n]...)
	delivered, err := fn(ctx, batch)
	done := make(map[string]bool, len(delivered))
	for _, id := range delivered {
		done[id] = true
	}
	var rest []audit.OutboxEntry
	for _, e := range s.pending {
		if !done[e.ID] {
			rest = append(rest, e)
		}
	}
	s.pending = rest
	s.published = append(s.published, delivered...)
	if err != nil && len(delivered) == 0 {
		return 0, err
	}
	return len(delivered), nil
}

type fakeProducer struct {
	failIDs map[string]bool
	err     error
}

func (p *fakeProducer) Publish(_ context.Context, entries []audit.OutboxEntry) ([]string, error) {
	var ok []string
	for _, e := range entries {
		if p.failIDs[e.ID] {
			continue
		}
		ok = append(ok, e.ID)
	}
	if len(ok) < len(entries) {
		return ok, p.err
	}
	return ok, nil
}

func entries(ids ...string) []audit.OutboxEntry {
	out := make([]audit.OutboxEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, audit.OutboxEntry{ID: id, EventType: string(audit.EventDomainCreated)})
	}
	return out
}

func TestWorker_Drain(t *testing.T) {
	t.Run("relays every batch", func(t *testing.T) {
		src := &fakeSource{pending: entries("a", "b", "c", "d", "e")}
		w := New(src, &fakeProducer{}, WithBatchSize(2))

		n, err := w.Drain(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, src.published)
		assert.Empty(t, src.pending)
	})

	t.Run("undelivered entries stay pending", func(t *testing.T) {
		src := &fakeSource{pending: entries("a", "b")}
		w := New(src, &fakeProducer{failIDs: map[string]bool{"b": true}, err: errors.New("broker down")})

		n, err := w.Drain(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.Len(t, src.pending, 1)
		assert.Equal(t, "b", src.pending[0].ID)
	})

	t.Run("total failure is reported", func(t *testing.T) {
		brokerErr := errors.New("broker down")
		src := &fakeSource{pending: entries("a")}
		w := New(src, &fakeProducer{failIDs: map[string]bool{"a": true}, err: brokerErr})

		_, err := w.Drain(context.Background())
		require.ErrorIs(t, err, brokerErr)
		assert.Len(t, src.pending, 1)
	})
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	src := &fakeSource{pending: entries("a")}
	w := New(src, &fakeProducer{}, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.published) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
