package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memorySink struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
}

func (s *memorySink) WriteBatch(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Event, len(events))
	copy(cp, events)
	s.batches = append(s.batches, cp)
	return s.err
}

func (s *memorySink) events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func TestTrailFlushesOnStop(t *testing.T) {
	sink := &memorySink{}
	trail := NewTrail(sink, zap.NewNop(), Options{FlushInterval: time.Hour})
	trail.Start()

	trail.Log(Event{Kind: KindRequestSubmitted, ApprovalID: "a1"})
	trail.Log(Event{Kind: KindDecisionRecorded, ApprovalID: "a1", Decision: "approve"})
	trail.Stop()

	got := sink.events()
	require.Len(t, got, 2)
	assert.Equal(t, KindRequestSubmitted, got[0].Kind)
	assert.NotEmpty(t, got[0].ID, "id is generated")
	assert.False(t, got[0].Timestamp.IsZero(), "timestamp is stamped")
	assert.Equal(t, "approve", got[1].Decision)
}

func TestTrailFlushesFullBatch(t *testing.T) {
	sink := &memorySink{}
	trail := NewTrail(sink, zap.NewNop(), Options{BatchSize: 2, FlushInterval: time.Hour})
	trail.Start()
	defer trail.Stop()

	trail.Log(Event{Kind: KindRequestSubmitted})
	trail.Log(Event{Kind: KindRequestSubmitted})

	assert.Eventually(t, func() bool { return len(sink.events()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestTrailDropsAfterStop(t *testing.T) {
	sink := &memorySink{}
	trail := NewTrail(sink, zap.NewNop(), Options{})
	trail.Start()
	trail.Stop()
	trail.Stop() // повторный Stop безопасен

	trail.Log(Event{Kind: KindRequestSubmitted})
	assert.Empty(t, sink.events())
}

func TestTrailSurvivesSinkErrors(t *testing.T) {
	sink := &memorySink{err: errors.New("db down")}
	trail := NewTrail(sink, zap.NewNop(), Options{FlushInterval: 10 * time.Millisecond})
	trail.Start()

	trail.Log(Event{Kind: KindDeliveryFailed})
	assert.Eventually(t, func() bool { return len(sink.events()) == 1 }, time.Second, 5*time.Millisecond)

	trail.Log(Event{Kind: KindDeliveryFailed})
	trail.Stop()
	assert.Len(t, sink.events(), 2)
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(zap.NewNop())
	assert.NoError(t, sink.WriteBatch(context.Background(), []Event{{Kind: KindRequestExpired}}))
}
