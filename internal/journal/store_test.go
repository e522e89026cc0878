package journal

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filepath.Join(t.TempDir(), "journal.json"))

	events := []Event{
		{At: time.Now(), InstanceID: "i-1", Action: "start", Outcome: OutcomeOK},
		{At: time.Now(), InstanceID: "i-1", Action: "stop", Outcome: OutcomeFailed, Detail: "provider rejected"},
		{At: time.Now(), InstanceID: "i-2", Action: "start", Outcome: OutcomeOK},
	}
	for _, e := range events {
		require.NoError(t, store.Append(ctx, e))
	}

	t.Run("lists all events", func(t *testing.T) {
		got, err := store.List(ctx, Filter{})
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("filters by instance", func(t *testing.T) {
		got, err := store.List(ctx, Filter{InstanceID: "i-1"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("filters by action and outcome", func(t *testing.T) {
		got, err := store.List(ctx, Filter{Action: "stop", Outcome: OutcomeFailed})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "provider rejected", got[0].Detail)
	})
}

func TestStore_Bounded(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filepath.Join(t.TempDir(), "journal.json"))

	for i := 0; i < maxEvents+25; i++ {
		err := store.Append(ctx, Event{
			At:         time.Now(),
			InstanceID: "i-1",
			Action:     "start",
			Outcome:    OutcomeOK,
			Detail:     strconv.Itoa(i),
		})
		require.NoError(t, err)
	}

	got, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, maxEvents)
	// Oldest events were dropped.
	assert.Equal(t, "25", got[0].Detail)
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.json")

	first := NewStore(path)
	require.NoError(t, first.Append(ctx, Event{At: time.Now(), InstanceID: "i-1", Action: "start", Outcome: OutcomeOK}))

	second := NewStore(path)
	got, err := second.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
