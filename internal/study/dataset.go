package study

import "time"

// Dataset holds metadata for a survey table registered with a study.
type Dataset struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Rows        int       `json:"rows"`
	Columns     []string  `json:"columns"`
	AddedAt     time.Time `json:"added_at"`
}
