package batchstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phambaophuc/image-seo/internal/models"
)

func TestMemoryStore_UpsertAndAppend(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	constraints := models.GenerationConstraints{TitleLength: 80, DescriptionLength: 200, KeywordCount: 25}

	_, err := s.Get(ctx, "b1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.AppendOutcome(ctx, "u1", "b1", constraints, models.ImageOutcome{Filename: "a.jpg", URL: "u/a"}))
	require.NoError(t, s.AppendOutcome(ctx, "u1", "b1", constraints, models.ImageOutcome{Filename: "b.jpg", Error: "generation timeout"}))

	record, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "u1", record.UserID)
	assert.Equal(t, constraints, record.Constraints)
	require.Len(t, record.Outcomes, 2)
	assert.Equal(t, "a.jpg", record.Outcomes[0].Filename)
	assert.True(t, record.Outcomes[0].Succeeded())
	assert.False(t, record.Outcomes[1].Succeeded())

	n, err := s.Count(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Count(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryStore_ConstraintsFixedAtCreation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := models.GenerationConstraints{TitleLength: 80, DescriptionLength: 200, KeywordCount: 25}
	second := models.GenerationConstraints{TitleLength: 10, DescriptionLength: 10, KeywordCount: 1}

	require.NoError(t, s.AppendOutcome(ctx, "u1", "b1", first, models.ImageOutcome{Filename: "a.jpg"}))
	require.NoError(t, s.AppendOutcome(ctx, "u1", "b1", second, models.ImageOutcome{Filename: "b.jpg"}))

	record, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, first, record.Constraints)
}

func TestBatchRecord_MergedOutcomes(t *testing.T) {
	record := &models.BatchRecord{
		Outcomes: []models.ImageOutcome{
			{Filename: "a.jpg", Error: "generation timeout"},
			{Filename: "b.jpg", URL: "u/b"},
			{Filename: "a.jpg", URL: "u/a"}, // regeneration succeeded
		},
	}

	merged := record.MergedOutcomes()
	require.Len(t, merged, 2)
	assert.Equal(t, "a.jpg", merged[0].Filename)
	assert.True(t, merged[0].Succeeded(), "latest outcome wins")
	assert.Equal(t, "b.jpg", merged[1].Filename)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.AppendOutcome(ctx, "u1", "b1", models.GenerationConstraints{}, models.ImageOutcome{Filename: "a.jpg"}))

	record, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	record.Outcomes[0].Filename = "mutated"

	again, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", again.Outcomes[0].Filename)
}
