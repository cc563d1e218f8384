package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/babble-live/internal/domain"
)

func TestTagIndex_ConcurrentResolveOrCreate(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()

	const n = 25
	ids := make([]uint, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := h.tags.ResolveOrCreate(ctx, "x")
			if assert.NoError(t, err) {
				ids[i] = id
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	var count int64
	require.NoError(t, h.db.Model(&domain.TagModel{}).Where("name = ?", "x").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestTagIndex_Validation(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()

	_, err := h.tags.ResolveOrCreate(ctx, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	trimmed, err := h.tags.ResolveOrCreate(ctx, "  film ")
	require.NoError(t, err)
	plain, err := h.tags.ResolveOrCreate(ctx, "film")
	require.NoError(t, err)
	assert.Equal(t, plain, trimmed)

	ids, err := h.tags.ResolveAll(ctx, []string{"film", "drama", "film"})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, plain, ids[0])

	_, err = h.tags.Lookup(ctx, "never-used")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestParseHashtags(t *testing.T) {
	assert.Equal(t, []string{"film", "drama"}, ParseHashtags(" film \t drama\n"))
	assert.Empty(t, ParseHashtags("   "))
}
