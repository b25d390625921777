package models

import "time"

// SourceDocument is an archived search result as stored in Elasticsearch.
type SourceDocument struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id,omitempty"`
	Query       string     `json:"query,omitempty"`
	Title       string     `json:"title"`
	URL         string     `json:"url,omitempty"`
	Content     string     `json:"content"`
	WebsiteName string     `json:"website_name,omitempty"`
	Score       float64    `json:"score"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Keywords    []string   `json:"keywords"`
	IndexedAt   time.Time  `json:"indexed_at"`
}

// SourceMessage is the Kafka payload carrying one search result of a finished
// research run to the archive worker.
type SourceMessage struct {
	TaskID      string       `json:"task_id"`
	Query       string       `json:"query"`
	Result      SearchResult `json:"result"`
	CollectedAt time.Time    `json:"collected_at"`
}
