package timeline_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-provenance/internal/models"
	"github.com/DeafMist/news-provenance/internal/timeline"
)

func TestFormatMarkdown(t *testing.T) {
	b := timeline.NewBuilder(nil, nil)
	tl, err := b.Build(stateOf([]models.SearchResult{
		{Title: "Flood warning", URL: "https://news.example/flood", Content: "Rivers rising.", Score: score(0.95), WebsiteName: "Example News", PublishedDate: "2025-11-08T14:30:00"},
		{Title: "", Content: "", Timestamp: "undated"},
	}))
	require.NoError(t, err)

	md := timeline.FormatMarkdown(tl)
	require.Contains(t, md, "**Date range**: 2025.11.08 - 2025.11.08")
	require.Contains(t, md, "**Total sources**: 2")
	require.Contains(t, md, "### 2025.11.08 (1)")
	require.Contains(t, md, "**Flood warning** (14:30)")
	require.Contains(t, md, "- [Flood warning](https://news.example/flood) - Example News (relevance: 0.95)")
	require.Contains(t, md, "### unknown date (1)")
	require.Contains(t, md, "**Untitled**\n")
}

func TestFormatMarkdownEmpty(t *testing.T) {
	md := timeline.FormatMarkdown(timeline.Timeline{})
	require.Equal(t, "## Source timeline\n\n---\n", md)
}
