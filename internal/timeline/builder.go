// Package timeline reconstructs a dated timeline from research search results.
package timeline

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"

	"github.com/DeafMist/news-provenance/internal/models"
	"github.com/DeafMist/news-provenance/internal/processing"
)

const (
	descriptionLimit = 200
	previewLimit     = 150

	// MessageEmpty is set on timelines built from a state without results.
	MessageEmpty = "no search results found"
	// MessageOK is set on successfully built timelines.
	MessageOK = "timeline generated"
)

// ErrMalformedState is returned when raw state cannot be decoded.
var ErrMalformedState = errors.New("malformed research state")

// Source is the single reference attached to an event.
type Source struct {
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	Score          *float64 `json:"score"`
	WebsiteName    *string  `json:"website_name"`
	ContentPreview string   `json:"content_preview"`
}

// Event is one search result placed on the timeline.
type Event struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Time        *string  `json:"time"`
	Datetime    *string  `json:"datetime"`
	Sources     []Source `json:"sources"`
}

// Bucket holds the events of one calendar day.
type Bucket struct {
	Date        string  `json:"date"`
	DateKey     string  `json:"date_key"`
	Events      []Event `json:"events"`
	SourceCount int     `json:"source_count"`
}

// DateRange spans the earliest and latest parsed days, display formatted.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Timeline is the full result. Exactly one of Message and Error is set.
type Timeline struct {
	Buckets      []Bucket   `json:"timeline"`
	TotalSources int        `json:"total_sources"`
	DateRange    *DateRange `json:"date_range"`
	Message      string     `json:"message,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Failed reports whether the timeline carries an error.
func (t Timeline) Failed() bool { return t.Error != "" }

func failed(err error) Timeline {
	return Timeline{
		Buckets: []Bucket{},
		Error:   err.Error(),
	}
}

// Builder turns research states into timelines. It holds no per-call state
// and may be shared between goroutines.
type Builder struct {
	normalizer *Normalizer
	log        *slog.Logger
}

// NewBuilder creates a Builder. A nil normalizer uses the default parsers.
func NewBuilder(normalizer *Normalizer, logger *slog.Logger) *Builder {
	if normalizer == nil {
		normalizer = NewNormalizer()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{normalizer: normalizer, log: logger}
}

// BuildJSON decodes raw state and builds its timeline.
func (b *Builder) BuildJSON(raw []byte) (Timeline, error) {
	var state models.ResearchState
	if err := json.Unmarshal(raw, &state); err != nil {
		err = fmt.Errorf("%w: %v", ErrMalformedState, err)
		b.log.Warn("decode research state", slog.Any("err", err))
		return failed(err), err
	}
	return b.Build(state)
}

// Build never panics. On an unexpected failure it returns an error-shaped
// Timeline together with the error.
func (b *Builder) Build(state models.ResearchState) (tl Timeline, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("build timeline: %v", r)
			b.log.Error("timeline build failed", slog.Any("err", err))
			tl = failed(err)
		}
	}()

	results := state.SearchResults()
	if len(results) == 0 {
		return Timeline{Buckets: []Bucket{}, Message: MessageEmpty}, nil
	}

	items := make([]item, len(results))
	for i, r := range results {
		items[i] = b.normalize(r)
	}

	tl = Timeline{
		Buckets:      group(items),
		TotalSources: len(items),
		DateRange:    dateRange(items),
		Message:      MessageOK,
	}
	b.log.Debug("timeline built",
		slog.Int("sources", tl.TotalSources),
		slog.Int("buckets", len(tl.Buckets)),
	)
	return tl, nil
}

// item is a search result with its defaults applied and its date resolved.
type item struct {
	result models.SearchResult
	score  float64
	stamp  Stamp
}

func (b *Builder) normalize(r models.SearchResult) item {
	score := 0.0
	if r.Score != nil && !math.IsNaN(*r.Score) {
		score = *r.Score
	}
	return item{
		result: r,
		score:  score,
		stamp:  b.normalizer.NormalizeResult(r.PublishedDate, r.Timestamp),
	}
}

// compareItems orders by score then datetime, both descending. An empty
// datetime sorts last.
func compareItems(a, b item) int {
	if c := cmp.Compare(b.score, a.score); c != 0 {
		return c
	}
	return cmp.Compare(b.stamp.Datetime, a.stamp.Datetime)
}

func group(items []item) []Bucket {
	byDate := make(map[Date][]item)
	var dates []Date
	for _, it := range items {
		d := it.stamp.Date
		if _, ok := byDate[d]; !ok {
			dates = append(dates, d)
		}
		byDate[d] = append(byDate[d], it)
	}
	slices.SortFunc(dates, CompareDesc)

	buckets := make([]Bucket, 0, len(dates))
	for _, d := range dates {
		members := byDate[d]
		slices.SortStableFunc(members, compareItems)

		events := make([]Event, 0, len(members))
		for _, it := range members {
			events = append(events, toEvent(it))
		}
		buckets = append(buckets, Bucket{
			Date:        d.Display(),
			DateKey:     d.Key(),
			Events:      events,
			SourceCount: len(events),
		})
	}
	return buckets
}

func toEvent(it item) Event {
	r := it.result
	var score *float64
	if r.Score != nil {
		v := *r.Score
		score = &v
	}
	return Event{
		Title:       r.Title,
		Description: processing.Truncate(r.Content, descriptionLimit),
		Time:        optional(it.stamp.DisplayTime()),
		Datetime:    optional(it.stamp.Datetime),
		Sources: []Source{{
			Title:          r.Title,
			URL:            r.URL,
			Score:          score,
			WebsiteName:    optional(r.WebsiteName),
			ContentPreview: processing.Truncate(r.Content, previewLimit),
		}},
	}
}

// optional maps "" to a JSON null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func dateRange(items []item) *DateRange {
	var lo, hi string
	for _, it := range items {
		if !it.stamp.Date.IsKnown() {
			continue
		}
		day := it.stamp.Date.Key()
		if lo == "" || day < lo {
			lo = day
		}
		if day > hi {
			hi = day
		}
	}
	if lo == "" {
		return nil
	}
	return &DateRange{Start: KnownDate(lo).Display(), End: KnownDate(hi).Display()}
}
