package models

// ResearchState is the snapshot a research agent returns alongside its report.
// Only the parts the timeline needs are modelled; unknown keys are ignored.
type ResearchState struct {
	Query      string      `json:"query,omitempty"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

// Paragraph is one section of a research report.
type Paragraph struct {
	Title    string   `json:"title,omitempty"`
	Research Research `json:"research"`
}

// Research holds the searches performed for a paragraph.
type Research struct {
	SearchHistory []SearchResult `json:"search_history"`
}

// SearchResult is a single retrieved document. Absent JSON keys decode to the
// zero value, which is also the documented default for every field.
type SearchResult struct {
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Content       string   `json:"content"`
	Score         *float64 `json:"score,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	Timestamp     string   `json:"timestamp,omitempty"`
	WebsiteName   string   `json:"website_name,omitempty"`
	Query         string   `json:"query,omitempty"`
}

// SearchResults flattens every paragraph's search history in order.
func (s ResearchState) SearchResults() []SearchResult {
	var out []SearchResult
	for _, p := range s.Paragraphs {
		out = append(out, p.Research.SearchHistory...)
	}
	return out
}

// Verdict is the outcome of a truth verification.
type Verdict string

const (
	VerdictTrue         Verdict = "true"
	VerdictFalse        Verdict = "false"
	VerdictPartial      Verdict = "partially_true"
	VerdictUndetermined Verdict = "undetermined"
)

// ParseVerdict maps free-form verdict strings onto the known set.
func ParseVerdict(raw string) Verdict {
	switch Verdict(raw) {
	case VerdictTrue, VerdictFalse, VerdictPartial:
		return Verdict(raw)
	}
	switch raw {
	case "真", "True", "TRUE":
		return VerdictTrue
	case "假", "False", "FALSE":
		return VerdictFalse
	case "部分真实", "partial", "partially true":
		return VerdictPartial
	}
	return VerdictUndetermined
}

// Verification is the result of checking a report against its query.
type Verification struct {
	Verdict   Verdict `json:"verdict"`
	Summary   string  `json:"summary"`
	Query     string  `json:"query"`
	Timestamp string  `json:"timestamp"`
	Error     string  `json:"error,omitempty"`
}
