package timeline

import (
	"fmt"
	"strings"
)

// FormatMarkdown renders a timeline for reports and terminals.
func FormatMarkdown(tl Timeline) string {
	var sb strings.Builder
	sb.WriteString("## Source timeline\n\n")

	if tl.DateRange != nil {
		fmt.Fprintf(&sb, "**Date range**: %s - %s  \n", tl.DateRange.Start, tl.DateRange.End)
		fmt.Fprintf(&sb, "**Total sources**: %d  \n\n", tl.TotalSources)
	}
	sb.WriteString("---\n")

	for _, b := range tl.Buckets {
		fmt.Fprintf(&sb, "\n### %s (%d)\n", b.Date, b.SourceCount)

		for _, ev := range b.Events {
			title := ev.Title
			if title == "" {
				title = "Untitled"
			}
			if ev.Time != nil {
				fmt.Fprintf(&sb, "\n**%s** (%s)\n", title, *ev.Time)
			} else {
				fmt.Fprintf(&sb, "\n**%s**\n", title)
			}
			if ev.Description != "" {
				sb.WriteString(ev.Description + "\n")
			}

			sb.WriteString("**Sources:**\n")
			for _, src := range ev.Sources {
				sb.WriteString("- " + sourceLine(src) + "\n")
			}
			sb.WriteString("\n")
		}
		sb.WriteString("---\n")
	}
	return sb.String()
}

func sourceLine(src Source) string {
	title := src.Title
	if title == "" {
		title = "Untitled"
	}
	line := title
	if src.URL != "" {
		line = fmt.Sprintf("[%s](%s)", title, src.URL)
	}
	if src.WebsiteName != nil && *src.WebsiteName != "" {
		line += " - " + *src.WebsiteName
	}
	if src.Score != nil && *src.Score != 0 {
		line += fmt.Sprintf(" (relevance: %.2f)", *src.Score)
	}
	return line
}
