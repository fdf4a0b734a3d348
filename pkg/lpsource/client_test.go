package lpsource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchContent(t *testing.T) {
	c := NewStub("unson", "lp-pages")

	content, err := c.FetchContent(context.Background(), "https://lp.example.com/fitness-coach")
	require.NoError(t, err)

	assert.Equal(t, "Launch fitness coach today", content.Headline)
	assert.NotEmpty(t, content.Hero)
	assert.NotEmpty(t, content.CTA)
	assert.Len(t, content.Benefits, 3)

	_, err = c.FetchContent(context.Background(), "")
	require.Error(t, err)
}

func TestCreatePR(t *testing.T) {
	c := NewStub("unson", "lp-pages")
	suggestions := []Suggestion{
		{Section: "headline", Current: "old", Proposed: "new", Rationale: "low CVR"},
	}

	url, err := c.CreatePR(context.Background(), "https://lp.example.com/fitness-coach", suggestions)
	require.NoError(t, err)
	assert.Contains(t, url, "https://github.com/unson/lp-pages/pull/")

	// Same input, same PR URL.
	again, err := c.CreatePR(context.Background(), "https://lp.example.com/fitness-coach", suggestions)
	require.NoError(t, err)
	assert.Equal(t, url, again)

	_, err = c.CreatePR(context.Background(), "https://lp.example.com/fitness-coach", nil)
	require.Error(t, err)
}
