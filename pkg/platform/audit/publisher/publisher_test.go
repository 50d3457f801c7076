package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "provenance/pkg/platform/audit"
	"provenance/pkg/platform/audit/store/memory"
)

func batchEvent(action audit.AuditEvent, batchID string) audit.Event {
	return audit.Event{
		Action:     string(action),
		EntityKind: "batch",
		EntityID:   batchID,
	}
}

func TestPublisher_SyncEmit(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), batchEvent(audit.EventBatchCreated, "0"))
	require.NoError(t, err)

	events, err := pub.List(context.Background(), "batch", "0")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventBatchCreated), events[0].Action)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
}

func TestPublisher_AsyncEmit_DrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), batchEvent(audit.EventBatchStatusUpdated, "1")))
	}
	pub.Close()

	events, err := store.ListByEntity(context.Background(), "batch", "1")
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	pub.Close()
	pub.Close()

	err := pub.Emit(context.Background(), batchEvent(audit.EventBatchCreated, "0"))
	assert.Error(t, err)
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	pub := NewPublisher(blockingStore{}, WithAsyncBuffer(1), WithMetrics(m))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Emit(context.Background(), batchEvent(audit.EventCustodyChanged, "2"))
		}()
	}
	wg.Wait()

	assert.Positive(t, testutil.ToFloat64(m.Dropped), "a one-slot buffer in front of a stalled store must drop")
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	before := time.Now()
	require.NoError(t, pub.Emit(context.Background(), batchEvent(audit.EventBatchCreated, "3")))
	after := time.Now()

	events, err := pub.List(context.Background(), "batch", "3")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.Before(before), "timestamp should be >= before")
	assert.False(t, events[0].Timestamp.After(after), "timestamp should be <= after")
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	event := batchEvent(audit.EventBatchRecalled, "4")
	event.Timestamp = customTime
	require.NoError(t, pub.Emit(context.Background(), event))

	events, err := pub.List(context.Background(), "batch", "4")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
	assert.Equal(t, audit.CategoryQuality, events[0].Category)
}

func TestPublisher_PersistFailureIsCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	pub := NewPublisher(failingStore{}, WithMetrics(m))

	err := pub.Emit(context.Background(), batchEvent(audit.EventBatchCreated, "5"))
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PersistFailures))

	_, err = pub.List(context.Background(), "batch", "5")
	assert.Error(t, err, "failing store cannot serve reads")
}

func TestPublisher_KeepsEntitiesApart(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), batchEvent(audit.EventBatchCreated, "6")))
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Action:     string(audit.EventLotCreated),
		EntityKind: "lot",
		EntityID:   "6",
	}))

	batches, err := pub.List(context.Background(), "batch", "6")
	require.NoError(t, err)
	require.Len(t, batches, 1)

	lots, err := pub.List(context.Background(), "lot", "6")
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, string(audit.EventLotCreated), lots[0].Action)
}

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error {
	return errors.New("disk full")
}

type blockingStore struct{}

func (blockingStore) Append(context.Context, audit.Event) error {
	time.Sleep(50 * time.Millisecond)
	return nil
}
