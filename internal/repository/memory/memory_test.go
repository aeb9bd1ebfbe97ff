package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aaronshin43/rush-crawler/internal/crawler"
	"github.com/aaronshin43/rush-crawler/internal/id/uuid"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

func newStore() *DocumentStore {
	return NewDocumentStore(fixedClock{now: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)}, uuid.NewUUIDGenerator())
}

func sampleDoc(normalizedURL, category string, words int) crawler.Document {
	return crawler.Document{
		URL:           normalizedURL,
		NormalizedURL: normalizedURL,
		Title:         "Sample",
		Category:      category,
		Content:       "sample body",
		ContentHash:   "abc",
		WordCount:     words,
		Priority:      crawler.PriorityLow,
		Status:        crawler.DocumentStatusActive,
	}
}

func TestCreateAndFind(t *testing.T) {
	t.Parallel()

	store := newStore()
	ctx := context.Background()

	id, err := store.Create(ctx, sampleDoc("https://www.dickinson.edu/about", "about_dickinson", 120))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := store.FindByNormalizedURL(ctx, "https://www.dickinson.edu/about")
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Equal(t, id, doc.ID)
	require.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), doc.CrawledAt)
	require.Nil(t, doc.LastUpdated)

	missing, err := store.FindByNormalizedURL(ctx, "https://www.dickinson.edu/missing")
	require.NoError(t, err)
	require.Nil(t, missing)

	_, err = store.Create(ctx, sampleDoc("https://www.dickinson.edu/about", "about_dickinson", 120))
	require.Error(t, err)
}

func TestUpdateContent(t *testing.T) {
	t.Parallel()

	store := newStore()
	ctx := context.Background()

	_, err := store.Create(ctx, sampleDoc("https://www.dickinson.edu/news", "general_news", 80))
	require.NoError(t, err)

	updated, err := store.UpdateContent(ctx, "https://www.dickinson.edu/news", "fresh body text here", "newhash",
		[]crawler.Section{{Level: "h1", Title: "News"}})
	require.NoError(t, err)
	require.True(t, updated)

	doc, err := store.FindByNormalizedURL(ctx, "https://www.dickinson.edu/news")
	require.NoError(t, err)
	require.Equal(t, "fresh body text here", doc.Content)
	require.Equal(t, "newhash", doc.ContentHash)
	require.Equal(t, 4, doc.WordCount)
	require.NotNil(t, doc.LastUpdated)

	updated, err = store.UpdateContent(ctx, "https://www.dickinson.edu/missing", "x", "y", nil)
	require.NoError(t, err)
	require.False(t, updated)
}

func TestListURLsFiltersByPriority(t *testing.T) {
	t.Parallel()

	store := newStore()
	ctx := context.Background()

	high := sampleDoc("https://www.dickinson.edu/news", "general_news", 80)
	high.Priority = crawler.PriorityHigh
	_, err := store.Create(ctx, high)
	require.NoError(t, err)

	_, err = store.Create(ctx, sampleDoc("https://www.dickinson.edu/about", "about_dickinson", 120))
	require.NoError(t, err)
	_, err = store.Create(ctx, sampleDoc("https://www.dickinson.edu/academics", "academics", 150))
	require.NoError(t, err)

	all, err := store.ListURLs(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://www.dickinson.edu/about",
		"https://www.dickinson.edu/academics",
		"https://www.dickinson.edu/news",
	}, all)

	highOnly, err := store.ListURLs(ctx, crawler.PriorityHigh)
	require.NoError(t, err)
	require.Equal(t, []string{"https://www.dickinson.edu/news"}, highOnly)
}

func TestCountAggregateDelete(t *testing.T) {
	t.Parallel()

	store := newStore()
	ctx := context.Background()

	_, err := store.Create(ctx, sampleDoc("https://www.dickinson.edu/a", "academics", 100))
	require.NoError(t, err)
	_, err = store.Create(ctx, sampleDoc("https://www.dickinson.edu/b", "academics", 50))
	require.NoError(t, err)
	_, err = store.Create(ctx, sampleDoc("https://www.dickinson.edu/c", "athletics", 70))
	require.NoError(t, err)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	agg, err := store.AggregateByCategory(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]crawler.CategoryStats{
		"academics": {Count: 2, TotalWords: 150},
		"athletics": {Count: 1, TotalWords: 70},
	}, agg)

	deleted, err := store.DeleteByURL(ctx, "https://www.dickinson.edu/c")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = store.DeleteByURL(ctx, "https://www.dickinson.edu/c")
	require.NoError(t, err)
	require.False(t, deleted)

	n, err = store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
