package models

import "time"

// HistoryEntry records a finished query for the recent-queries list.
type HistoryEntry struct {
	TaskID      string    `json:"task_id"`
	Query       string    `json:"query"`
	Mode        string    `json:"mode"`
	Verdict     Verdict   `json:"verdict,omitempty"`
	SourceCount int       `json:"source_count"`
	CreatedAt   time.Time `json:"created_at"`
}
