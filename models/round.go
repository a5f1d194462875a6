package models

import "time"

// RoundRecord is the persisted outcome of a finished round.
type RoundRecord struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Number       int       `gorm:"index" json:"number"`
	Kind         string    `gorm:"size:16;not null" json:"kind"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	DurationSec  int       `json:"duration_sec"`
	ForcedEnd    bool      `json:"forced_end"`
	Reversed     bool      `json:"reversed"`
	DecisiveUsed bool      `json:"decisive_used"`
	Standings    string    `gorm:"type:text" json:"standings"`  // JSON array of final standings
	Eliminated   string    `gorm:"type:text" json:"eliminated"` // comma-separated external ids
	ArchiveURL   string    `json:"archive_url,omitempty"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// EventLogLine is one typed line of the per-event activity log shown on overlays.
type EventLogLine struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Type           string    `gorm:"size:16;index;not null" json:"type"` // gift|queue|booster|twist|elim|join
	ExternalUserID string    `gorm:"index" json:"external_user_id,omitempty"`
	Message        string    `gorm:"type:text" json:"message"`
	RoundNumber    int       `json:"round_number"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}
