package models

import "time"

// PointsEntry is the audit trail of every BP credit or debit request.
// Requested keeps the amount asked for, Applied what actually landed after capping.
type PointsEntry struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ExternalUserID string    `gorm:"index;not null" json:"external_user_id"`
	Requested      int64     `json:"requested"`
	Applied        int64     `json:"applied"`
	Reason         string    `gorm:"size:64" json:"reason"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}
