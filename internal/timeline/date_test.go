package timeline_test

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-provenance/internal/timeline"
)

func TestNormalize(t *testing.T) {
	n := timeline.NewNormalizer()

	tests := []struct {
		name     string
		raw      string
		datetime string
		day      string
	}{
		{name: "iso seconds", raw: "2025-08-08T10:30:00", datetime: "2025-08-08T10:30:00", day: "2025-08-08"},
		{name: "iso fraction", raw: "2025-08-08T10:30:00.123456", datetime: "2025-08-08T10:30:00", day: "2025-08-08"},
		{name: "iso with zone suffix", raw: "2025-08-08T10:30:00Z", datetime: "2025-08-08T10:30:00", day: "2025-08-08"},
		{name: "space seconds", raw: "2025-08-08 10:30:00", datetime: "2025-08-08T10:30:00", day: "2025-08-08"},
		{name: "space fraction", raw: "2025-08-08 10:30:00.5", datetime: "2025-08-08T10:30:00", day: "2025-08-08"},
		{name: "date only", raw: "2025-08-08", datetime: "2025-08-08T00:00:00", day: "2025-08-08"},
		{name: "slash datetime", raw: "2025/08/08 23:59:01", datetime: "2025-08-08T23:59:01", day: "2025-08-08"},
		{name: "slash date", raw: "2025/8/8", datetime: "2025-08-08T00:00:00", day: "2025-08-08"},
		{name: "dot datetime", raw: "2025.11.07 09:05:00", datetime: "2025-11-07T09:05:00", day: "2025-11-07"},
		{name: "dot date", raw: "2025.11.07", datetime: "2025-11-07T00:00:00", day: "2025-11-07"},
		{name: "embedded datetime", raw: "published on 2025-03-01 08:00:00 by staff", datetime: "2025-03-01T08:00:00", day: "2025-03-01"},
		{name: "embedded date", raw: "updated: 2025-03-01", datetime: "2025-03-01T00:00:00", day: "2025-03-01"},
		{name: "embedded invalid day", raw: "2025-13-45", datetime: "2025-13-45T00:00:00", day: "2025-13-45"},
		{name: "embedded invalid datetime", raw: "see 2025-02-30 10:00:00 here", datetime: "2025-02-30T10:00:00", day: "2025-02-30"},
		{name: "surrounding space", raw: "  2025-03-01  ", datetime: "2025-03-01T00:00:00", day: "2025-03-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.raw)
			require.True(t, got.Date.IsKnown())
			require.Equal(t, tt.datetime, got.Datetime)
			require.Equal(t, tt.day, got.Date.Key())
		})
	}
}

func TestNormalizeUnknown(t *testing.T) {
	n := timeline.NewNormalizer()

	for _, raw := range []string{"", "   ", "yesterday", "08/11/2025", "20251108", "Sat, 08 Nov 2025 14:30:00 GMT"} {
		got := n.Normalize(raw)
		require.False(t, got.Date.IsKnown(), raw)
		require.Empty(t, got.Datetime, raw)
		require.Empty(t, got.DisplayTime(), raw)
		require.Equal(t, timeline.UnknownDateKey, got.Date.Key(), raw)
		require.Equal(t, timeline.UnknownDateLabel, got.Date.Display(), raw)
	}
}

func TestNormalizeResultPrefersPublishedDate(t *testing.T) {
	n := timeline.NewNormalizer()

	got := n.NormalizeResult("2025-01-02", "2025-03-04 05:06:07")
	require.Equal(t, "2025-01-02", got.Date.Key())

	got = n.NormalizeResult("", "2025-03-04 05:06:07")
	require.Equal(t, "2025-03-04T05:06:07", got.Datetime)

	got = n.NormalizeResult("not a date", "2025-03-04 05:06:07")
	require.False(t, got.Date.IsKnown())

	got = n.NormalizeResult("   ", "2025-03-04 05:06:07")
	require.False(t, got.Date.IsKnown())
}

func TestStampDisplay(t *testing.T) {
	n := timeline.NewNormalizer()

	got := n.Normalize("2025-08-08")
	require.Equal(t, "2025.08.08", got.Date.Display())
	require.Equal(t, "00:00", got.DisplayTime())

	got = n.Normalize("2025-08-08T10:30:59")
	require.Equal(t, "10:30", got.DisplayTime())

	ts, ok := got.Time()
	require.True(t, ok)
	require.Equal(t, time.Date(2025, 8, 8, 10, 30, 59, 0, time.UTC), ts)

	got = n.Normalize("2025-13-45")
	require.Equal(t, "2025.13.45", got.Date.Display())
	require.Equal(t, "00:00", got.DisplayTime())
	_, ok = got.Time()
	require.False(t, ok)
}

func TestNormalizerRFC1123(t *testing.T) {
	n := timeline.NewNormalizer(timeline.RFC1123Parsers()...)

	tests := []struct {
		raw      string
		datetime string
	}{
		{raw: "Sat, 08 Nov 2025 14:30:00 GMT", datetime: "2025-11-08T14:30:00"},
		{raw: "Sat, 08 Nov 2025 14:30:00 +0800", datetime: "2025-11-08T14:30:00"},
	}
	for _, tt := range tests {
		got := n.Normalize(tt.raw)
		require.Equal(t, tt.datetime, got.Datetime, tt.raw)
		require.Equal(t, "2025-11-08", got.Date.Key(), tt.raw)
	}

	got := n.Normalize("2025-01-02")
	require.Equal(t, "2025-01-02T00:00:00", got.Datetime)
}

func TestNormalizerExtraParser(t *testing.T) {
	compact := timeline.PrefixLayout(`\d{8}`, "20060102")
	n := timeline.NewNormalizer(compact)

	got := n.Normalize("20251108")
	require.Equal(t, "2025-11-08T00:00:00", got.Datetime)
}

func TestCompareDesc(t *testing.T) {
	dates := []timeline.Date{
		timeline.KnownDate("2025-01-02"),
		timeline.Unknown,
		timeline.KnownDate("2025-11-08"),
		timeline.KnownDate("2024-12-31"),
	}
	slices.SortFunc(dates, timeline.CompareDesc)

	keys := make([]string, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, d.Key())
	}
	require.Equal(t, []string{"2025-11-08", "2025-01-02", "2024-12-31", "unknown"}, keys)
}
