package reembed

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/studyrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryIterator_Batches(t *testing.T) {
	repos := seedIndex(t, 10)

	it := NewEntryIterator(repos.Index, 4)
	var sizes []int
	seen := map[string]bool{}
	err := it.ForEach(context.Background(), func(batch []*core.IndexedVector) error {
		sizes = append(sizes, len(batch))
		for _, e := range batch {
			assert.False(t, seen[e.ID], "entry %s visited twice", e.ID)
			seen[e.ID] = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Len(t, seen, 10)
}

func TestEntryIterator_DefaultBatchSize(t *testing.T) {
	repos := seedIndex(t, 2)
	assert.Equal(t, DefaultBatchSize, NewEntryIterator(repos.Index, 0).BatchSize())
	assert.Equal(t, DefaultBatchSize, NewEntryIterator(repos.Index, -5).BatchSize())
}

func TestEntryIterator_StopsOnError(t *testing.T) {
	repos := seedIndex(t, 10)
	boom := errors.New("boom")

	calls := 0
	err := NewEntryIterator(repos.Index, 3).ForEach(context.Background(), func([]*core.IndexedVector) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestEntryIterator_StopsOnCancel(t *testing.T) {
	repos := seedIndex(t, 10)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := NewEntryIterator(repos.Index, 3).ForEach(ctx, func([]*core.IndexedVector) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
