package models

import "time"

// QueueEntry is a viewer's request to enter the arena. Ranking is derived, not stored.
type QueueEntry struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ExternalUserID string    `gorm:"uniqueIndex;not null" json:"external_user_id"`
	JoinedAt       time.Time `gorm:"index;not null" json:"joined_at"`
	BoostCount     int       `json:"boost_count" gorm:"default:0;check:boost_count >= 0"`
}
