package autosave

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/activesave/internal/pubsub"
	"github.com/zjrosen/activesave/internal/registry"
	"github.com/zjrosen/activesave/internal/store"
	"github.com/zjrosen/activesave/internal/submit"
)

// fakeSender records requests and answers with a fixed response, or with
// respond when set. When gate is set, Send blocks until it is closed.
type fakeSender struct {
	mu      sync.Mutex
	calls   []submit.Request
	resp    submit.Response
	err     error
	gate    chan struct{}
	respond func(submit.Request) (submit.Response, error)
}

func okSender() *fakeSender {
	return &fakeSender{resp: submit.Response{StatusCode: 200}}
}

func (f *fakeSender) Send(ctx context.Context, req submit.Request) (submit.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.respond != nil {
		return f.respond(req)
	}
	return f.resp, f.err
}

func (f *fakeSender) Payloads() []string {
	var out []string
	for _, req := range f.Calls() {
		out = append(out, req.Payload)
	}
	return out
}

func (f *fakeSender) Calls() []submit.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submit.Request(nil), f.calls...)
}

func newTestSession(t *testing.T, sender Sender, opts ...Option) (*Session, *store.Store) {
	t.Helper()
	cache := store.New(store.NewMemory())
	s := New(cache, sender, opts...)
	t.Cleanup(s.Close)
	return s, cache
}

func (s *Session) record(t *testing.T, id string) *registry.Record {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.registry.Get(id)
	require.True(t, ok, "form %s should be tracked", id)
	return rec
}

func (s *Session) deferredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deferred)
}

func waitAll(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func settled(t *testing.T, sub *Submission) Outcome {
	t.Helper()
	select {
	case <-sub.Done():
		return sub.Outcome()
	case <-time.After(5 * time.Second):
		t.Fatalf("submission %s did not settle", sub.ID())
		return Pending
	}
}

func nextEvent(t *testing.T, ch <-chan pubsub.Event[Signal]) pubsub.Event[Signal] {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return pubsub.Event[Signal]{}
	}
}

func noEvent(t *testing.T, ch <-chan pubsub.Event[Signal]) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
