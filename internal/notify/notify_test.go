package notify_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"

	"github.com/headwind-sh/headwind/internal/notify"
	"github.com/headwind-sh/headwind/internal/target"
)

type countingSink struct {
	name    string
	failN   int32
	calls   int32
	succeed chan struct{}
}

func (s *countingSink) Name() string { return s.name }

func (s *countingSink) Send(ctx context.Context, ev notify.Event) error {
	n := atomic.AddInt32(&s.calls, 1)
	if n <= s.failN {
		return assert.AnError
	}
	close(s.succeed)
	return nil
}

func TestNotifierRetriesThenSucceeds(t *testing.T) {
	sink := &countingSink{name: "webhook", failN: 2, succeed: make(chan struct{})}
	n := notify.New(logr.Discard(), 5, sink)

	n.Notify(context.Background(), notify.Event{
		Type: notify.EventUpdateCompleted,
		Ref:  target.Ref{Kind: target.KindStateless, Namespace: "ns", Name: "app"},
	})

	select {
	case <-sink.succeed:
	case <-time.After(5 * time.Second):
		t.Fatal("notifier did not retry to success in time")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&sink.calls), int32(3))
}

func TestNotifierGivesUpAfterMaxRetries(t *testing.T) {
	sink := &countingSink{name: "webhook", failN: 100, succeed: make(chan struct{})}
	n := notify.New(logr.Discard(), 2, sink)

	n.Notify(context.Background(), notify.Event{Type: notify.EventUpdateFailed})

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&sink.calls) == 2
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&sink.calls))
}
