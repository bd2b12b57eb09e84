package model

import "time"

// EventLogEntry is one append-only narrative line. Entries are never
// mutated or deleted except by a full room reset.
type EventLogEntry struct {
	ID        string         `json:"id"`
	Phase     Phase          `json:"phase"`
	Message   string         `json:"message"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"ts"`
}
