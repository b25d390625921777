package timeline_test

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-provenance/internal/models"
	"github.com/DeafMist/news-provenance/internal/timeline"
)

func score(v float64) *float64 { return &v }

func stateOf(paragraphs ...[]models.SearchResult) models.ResearchState {
	var s models.ResearchState
	for _, results := range paragraphs {
		s.Paragraphs = append(s.Paragraphs, models.Paragraph{
			Research: models.Research{SearchHistory: results},
		})
	}
	return s
}

func TestBuildSameDayOrderedByScore(t *testing.T) {
	b := timeline.NewBuilder(nil, nil)
	tl, err := b.Build(stateOf([]models.SearchResult{
		{Title: "second", PublishedDate: "2025-11-08T14:30:00", Score: score(0.92)},
		{Title: "first", PublishedDate: "2025-11-08T14:30:00", Score: score(0.95)},
	}))
	require.NoError(t, err)

	require.Len(t, tl.Buckets, 1)
	bucket := tl.Buckets[0]
	require.Equal(t, "2025-11-08", bucket.DateKey)
	require.Equal(t, "2025.11.08", bucket.Date)
	require.Equal(t, 2, bucket.SourceCount)
	require.Equal(t, "first", bucket.Events[0].Title)
	require.Equal(t, "second", bucket.Events[1].Title)
	require.Equal(t, "14:30", *bucket.Events[0].Time)
	require.Equal(t, timeline.MessageOK, tl.Message)
	require.Empty(t, tl.Error)
}

func TestBuildBucketsDescendingWithRange(t *testing.T) {
	b := timeline.NewBuilder(nil, nil)
	tl, err := b.Build(stateOf(
		[]models.SearchResult{{Title: "older", PublishedDate: "2025.11.07"}},
		[]models.SearchResult{{Title: "newer", Timestamp: "2025-11-08 10:15:00"}},
	))
	require.NoError(t, err)

	require.Len(t, tl.Buckets, 2)
	require.Equal(t, "2025-11-08", tl.Buckets[0].DateKey)
	require.Equal(t, "2025-11-07", tl.Buckets[1].DateKey)
	require.Equal(t, &timeline.DateRange{Start: "2025.11.07", End: "2025.11.08"}, tl.DateRange)
	require.Equal(t, 2, tl.TotalSources)
}

func TestBuildUnknownDate(t *testing.T) {
	b := timeline.NewBuilder(nil, nil)
	tl, err := b.Build(stateOf([]models.SearchResult{{Title: "undated", Content: "text"}}))
	require.NoError(t, err)

	require.Len(t, tl.Buckets, 1)
	require.Equal(t, timeline.UnknownDateKey, tl.Buckets[0].DateKey)
	require.Equal(t, timeline.UnknownDateLabel, tl.Buckets[0].Date)
	require.Nil(t, tl.Buckets[0].Events[0].Time)
	require.Nil(t, tl.Buckets[0].Events[0].Datetime)
	require.Equal(t, 1, tl.TotalSources)
	require.Nil(t, tl.DateRange)

	raw, err := json.Marshal(tl.Buckets[0].Events[0])
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(raw, &ev))
	require.Contains(t, ev, "time")
	require.Nil(t, ev["time"])
	require.Contains(t, ev, "datetime")
	require.Nil(t, ev["datetime"])
	src := ev["sources"].([]any)[0].(map[string]any)
	require.Contains(t, src, "website_name")
	require.Nil(t, src["website_name"])
}

func TestBuildEmpty(t *testing.T) {
	b := timeline.NewBuilder(nil, nil)

	for name, state := range map[string]models.ResearchState{
		"no paragraphs":    {},
		"empty paragraphs": stateOf(nil, []models.SearchResult{}),
	} {
		t.Run(name, func(t *testing.T) {
			tl, err := b.Build(state)
			require.NoError(t, err)
			require.NotNil(t, tl.Buckets)
			require.Empty(t, tl.Buckets)
			require.Zero(t, tl.TotalSources)
			require.Nil(t, tl.DateRange)
			require.Equal(t, timeline.MessageEmpty, tl.Message)
			require.False(t, tl.Failed())
		})
	}
}

func TestBuildTruncation(t *testing.T) {
	content := strings.Repeat("x", 250)
	b := timeline.NewBuilder(nil, nil)
	tl, err := b.Build(stateOf([]models.SearchResult{{Title: "long", Content: content}}))
	require.NoError(t, err)

	ev := tl.Buckets[0].Events[0]
	require.Equal(t, content[:200]+"...", ev.Description)
	require.Len(t, ev.Sources, 1)
	require.Equal(t, content[:150]+"...", ev.Sources[0].ContentPreview)

	short := strings.Repeat("y", 200)
	tl, err = b.Build(stateOf([]models.SearchResult{{Content: short}}))
	require.NoError(t, err)
	require.Equal(t, short, tl.Buckets[0].Events[0].Description)
	require.Equal(t, short[:150]+"...", tl.Buckets[0].Events[0].Sources[0].ContentPreview)
}

func TestBuildDateOnlyKeepsMidnight(t *testing.T) {
	b := timeline.NewBuilder(nil, nil)
	tl, err := b.Build(stateOf([]models.SearchResult{{PublishedDate: "2025-08-08"}}))
	require.NoError(t, err)

	ev := tl.Buckets[0].Events[0]
	require.Equal(t, "2025.08.08", tl.Buckets[0].Date)
	require.Equal(t, "00:00", *ev.Time)
	require.Equal(t, "2025-08-08T00:00:00", *ev.Datetime)
}

func TestBuildSecondaryKeyAndStability(t *testing.T) {
	b := timeline.NewBuilder(nil, nil)
	tl, err := b.Build(stateOf([]models.SearchResult{
		{Title: "undated-a", Score: score(0.5)},
		{Title: "morning", PublishedDate: "2025-01-01 08:00:00", Score: score(0.5)},
		{Title: "evening", PublishedDate: "2025-01-01 20:00:00", Score: score(0.5)},
		{Title: "no-score", PublishedDate: "2025-01-01 23:00:00"},
		{Title: "dup-1", PublishedDate: "2025-01-01 12:00:00", Score: score(0.1)},
		{Title: "dup-2", PublishedDate: "2025-01-01 12:00:00", Score: score(0.1)},
		{Title: "undated-b", Score: score(0.5)},
	}))
	require.NoError(t, err)

	require.Len(t, tl.Buckets, 2)
	titles := func(bk timeline.Bucket) []string {
		var out []string
		for _, ev := range bk.Events {
			out = append(out, ev.Title)
		}
		return out
	}
	require.Equal(t, []string{"evening", "morning", "dup-1", "dup-2", "no-score"}, titles(tl.Buckets[0]))
	require.Equal(t, []string{"undated-a", "undated-b"}, titles(tl.Buckets[1]))
	require.Nil(t, tl.Buckets[0].Events[4].Sources[0].Score)
}

func TestBuildKeepsDuplicates(t *testing.T) {
	r := models.SearchResult{Title: "same", URL: "https://example.com", PublishedDate: "2025-02-02"}
	b := timeline.NewBuilder(nil, nil)
	tl, err := b.Build(stateOf([]models.SearchResult{r}, []models.SearchResult{r}))
	require.NoError(t, err)
	require.Equal(t, 2, tl.Buckets[0].SourceCount)
}

func TestBuildJSON(t *testing.T) {
	b := timeline.NewBuilder(nil, nil)

	raw := []byte(`{"paragraphs":[{"research":{"search_history":[
		{"title":"a","url":"https://a.example","content":"body","score":0.7,"published_date":"2025-05-05"},
		{"title":"b","timestamp":"2025-05-06 01:02:03","website_name":"B News"}
	]}},{"title":"no research"}]}`)
	tl, err := b.BuildJSON(raw)
	require.NoError(t, err)
	require.Equal(t, 2, tl.TotalSources)
	require.Equal(t, "2025-05-06", tl.Buckets[0].DateKey)
	require.Equal(t, "B News", *tl.Buckets[0].Events[0].Sources[0].WebsiteName)

	tl, err = b.BuildJSON([]byte(`{"paragraphs": "oops"}`))
	require.ErrorIs(t, err, timeline.ErrMalformedState)
	require.True(t, tl.Failed())
	require.Empty(t, tl.Message)
	require.NotNil(t, tl.Buckets)
	require.Empty(t, tl.Buckets)
	require.Zero(t, tl.TotalSources)
	require.Nil(t, tl.DateRange)
}

func TestBuildRecoversFromPanickingParser(t *testing.T) {
	boom := timeline.ParserFunc(func(string) (timeline.Stamp, bool) { panic("parser exploded") })
	b := timeline.NewBuilder(timeline.NewNormalizer(boom), nil)

	tl, err := b.Build(stateOf([]models.SearchResult{
		{Title: "ok", PublishedDate: "2025-01-01"},
		{Title: "bad", PublishedDate: "garbage"},
	}))
	require.Error(t, err)
	require.Contains(t, tl.Error, "parser exploded")
	require.Empty(t, tl.Buckets)
	require.Zero(t, tl.TotalSources)
	require.Nil(t, tl.DateRange)
}

var rawDates = []string{
	"", "2025-11-08T14:30:00", "2025-11-08", "2025/11/07 09:00:00", "2025.11.06",
	"2024-12-31 23:59:59.999", "not a date", "see 2025-01-15 for details", "2025-11-08 00:00:01",
}

func randomState(rng *rand.Rand) models.ResearchState {
	var s models.ResearchState
	for p := rng.Intn(4); p >= 0; p-- {
		var results []models.SearchResult
		for n := rng.Intn(6); n > 0; n-- {
			r := models.SearchResult{
				Title:         fmt.Sprintf("item-%d", rng.Intn(1000)),
				Content:       strings.Repeat("c", rng.Intn(300)),
				PublishedDate: rawDates[rng.Intn(len(rawDates))],
			}
			if rng.Intn(2) == 0 {
				r.Timestamp = rawDates[rng.Intn(len(rawDates))]
			}
			if rng.Intn(3) > 0 {
				r.Score = score(float64(rng.Intn(5)) / 4)
			}
			results = append(results, r)
		}
		s.Paragraphs = append(s.Paragraphs, models.Paragraph{Research: models.Research{SearchHistory: results}})
	}
	return s
}

func TestBuildProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	b := timeline.NewBuilder(nil, nil)

	for i := 0; i < 300; i++ {
		state := randomState(rng)
		tl, err := b.Build(state)
		require.NoError(t, err)

		again, err := b.Build(state)
		require.NoError(t, err)
		require.Equal(t, tl, again, "build must be idempotent")

		inputs := len(state.SearchResults())
		require.Equal(t, inputs, tl.TotalSources)

		sum := 0
		hasKnown := false
		for bi, bucket := range tl.Buckets {
			sum += bucket.SourceCount
			require.Len(t, bucket.Events, bucket.SourceCount)

			if bucket.DateKey == timeline.UnknownDateKey {
				require.Equal(t, len(tl.Buckets)-1, bi, "unknown bucket must be last")
			} else {
				hasKnown = true
				if bi > 0 {
					require.Greater(t, tl.Buckets[bi-1].DateKey, bucket.DateKey)
				}
			}

			for ei := 1; ei < len(bucket.Events); ei++ {
				prev, cur := bucket.Events[ei-1], bucket.Events[ei]
				c := cmp.Compare(scoreOf(prev), scoreOf(cur))
				if c == 0 {
					c = cmp.Compare(deref(prev.Datetime), deref(cur.Datetime))
				}
				require.GreaterOrEqual(t, c, 0)
			}

			for _, ev := range bucket.Events {
				require.LessOrEqual(t, utf8.RuneCountInString(ev.Description), 203)
			}
		}
		require.Equal(t, inputs, sum)
		require.Equal(t, hasKnown, tl.DateRange != nil)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func scoreOf(ev timeline.Event) float64 {
	if s := ev.Sources[0].Score; s != nil {
		return *s
	}
	return 0
}
