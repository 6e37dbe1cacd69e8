package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/surtiapp-scraper/internal/config"
	"github.com/maltedev/surtiapp-scraper/internal/models"
	"github.com/maltedev/surtiapp-scraper/internal/ratelimit"
)

type scriptedScraper struct {
	byURL  map[string][]models.ProductRecord
	panics map[string]bool
	calls  []string
}

func (s *scriptedScraper) Scrape(ctx context.Context, categoryURL string) []models.ProductRecord {
	s.calls = append(s.calls, categoryURL)
	if s.panics[categoryURL] {
		panic("browser crashed")
	}
	return s.byURL[categoryURL]
}

type recordingWriter struct {
	name      string
	err       error
	snapshots []*models.Snapshot
	records   [][]models.ProductRecord
}

func (w *recordingWriter) Name() string { return w.name }

func (w *recordingWriter) WriteSnapshot(ctx context.Context, snap *models.Snapshot) error {
	w.snapshots = append(w.snapshots, snap)
	w.records = append(w.records, snap.Records())
	return w.err
}

func records(urls ...string) []models.ProductRecord {
	out := make([]models.ProductRecord, 0, len(urls))
	for _, u := range urls {
		out = append(out, models.ProductRecord{ProductURL: u, StockStatus: models.StockOutOfStock})
	}
	return out
}

var (
	catA = config.Category{Name: "A", URL: "https://shop.test/SearchByCategoryResults/A/1"}
	catB = config.Category{Name: "B", URL: "https://shop.test/SearchByCategoryResults/B/2"}
	catC = config.Category{Name: "C", URL: "https://shop.test/SearchByCategoryResults/C/3"}
)

func TestBuildSkipsFailingCategory(t *testing.T) {
	s := &scriptedScraper{
		byURL:  map[string][]models.ProductRecord{catB.URL: records("b1", "b2")},
		panics: map[string]bool{catA.URL: true},
	}
	w := &recordingWriter{name: "csv"}

	snap, err := NewBuilder(s, []SnapshotWriter{w}).Build(context.Background(), []config.Category{catA, catB})
	require.NoError(t, err)

	assert.Equal(t, []string{catA.URL, catB.URL}, s.calls)
	assert.Equal(t, records("b1", "b2"), snap.Records())
	require.Len(t, w.records, 1)
	assert.Equal(t, records("b1", "b2"), w.records[0])
	assert.True(t, snap.Sealed())
}

func TestBuildPreservesCategoryOrder(t *testing.T) {
	s := &scriptedScraper{byURL: map[string][]models.ProductRecord{
		catA.URL: records("a1"),
		catB.URL: records("b1", "b2"),
		catC.URL: records("c1"),
	}}

	snap, err := NewBuilder(s, nil).Build(context.Background(), []config.Category{catC, catA, catB})
	require.NoError(t, err)

	assert.Equal(t, []string{catC.URL, catA.URL, catB.URL}, s.calls)
	assert.Equal(t, records("c1", "a1", "b1", "b2"), snap.Records())
}

func TestBuildEmptySnapshotIsNotWritten(t *testing.T) {
	s := &scriptedScraper{panics: map[string]bool{catA.URL: true}}
	w := &recordingWriter{name: "csv"}

	snap, err := NewBuilder(s, []SnapshotWriter{w}).Build(context.Background(), []config.Category{catA, catB})
	require.NoError(t, err)

	assert.True(t, snap.Empty())
	assert.Empty(t, w.snapshots)
}

func TestBuildJoinsWriterErrors(t *testing.T) {
	s := &scriptedScraper{byURL: map[string][]models.ProductRecord{catA.URL: records("a1")}}
	failing := &recordingWriter{name: "postgres", err: errors.New("connection refused")}
	ok := &recordingWriter{name: "csv"}

	snap, err := NewBuilder(s, []SnapshotWriter{failing, ok}).Build(context.Background(), []config.Category{catA})

	require.Error(t, err)
	assert.ErrorContains(t, err, "postgres writer")
	assert.Len(t, ok.snapshots, 1)
	assert.Equal(t, 1, snap.Len())
}

func TestBuildSealsSnapshot(t *testing.T) {
	s := &scriptedScraper{byURL: map[string][]models.ProductRecord{catA.URL: records("a1")}}

	snap, err := NewBuilder(s, nil).Build(context.Background(), []config.Category{catA})
	require.NoError(t, err)

	assert.ErrorIs(t, snap.Append(records("late")...), models.ErrSnapshotSealed)
}

func TestBuildStopsWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &scriptedScraper{byURL: map[string][]models.ProductRecord{catA.URL: records("a1")}}
	pacer := ratelimit.NewSimpleRateLimiter(time.Millisecond, 2*time.Millisecond)
	w := &recordingWriter{name: "csv"}

	_, err := NewBuilder(s, []SnapshotWriter{w}, WithPacer(pacer)).Build(ctx, []config.Category{catA, catB})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.calls)
	assert.Empty(t, w.snapshots)
}
