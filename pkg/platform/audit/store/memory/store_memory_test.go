package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "provenance/pkg/platform/audit"
)

func TestInMemoryStore_ListByEntity(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	require.NoError(t, s.Append(ctx, audit.Event{Action: "batch_created", EntityKind: "batch", EntityID: "0"}))
	require.NoError(t, s.Append(ctx, audit.Event{Action: "lot_created", EntityKind: "lot", EntityID: "0"}))
	require.NoError(t, s.Append(ctx, audit.Event{Action: "batch_status_updated", EntityKind: "batch", EntityID: "0"}))

	events, err := s.ListByEntity(ctx, "batch", "0")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "batch_created", events[0].Action)
	assert.Equal(t, "batch_status_updated", events[1].Action)

	none, err := s.ListByEntity(ctx, "batch", "9")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInMemoryStore_ListRecentAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	for _, id := range []string{"0", "1", "2"} {
		require.NoError(t, s.Append(ctx, audit.Event{Action: "lot_created", EntityKind: "lot", EntityID: id}))
	}

	recent, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "1", recent[0].EntityID)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	s.Clear()
	all, err = s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
