package models

import (
	"time"

	"gorm.io/gorm"
)

// Viewer is a live-stream audience member as seen by the arena game.
// Created lazily on the first event observed for an external id and never deleted.
type Viewer struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	ExternalID  string `gorm:"uniqueIndex;not null" json:"external_id"` // platform-assigned, stable
	DisplayName string `gorm:"not null" json:"display_name"`
	Handle      string `gorm:"index;not null" json:"handle"`

	// Spendable points (BP)
	PointsBalance  int64  `json:"points_balance" gorm:"default:0;check:points_balance >= 0"`
	LifetimePoints int64  `json:"lifetime_points" gorm:"default:0"`
	TodayPoints    int64  `json:"today_points" gorm:"default:0"`
	TodayDate      string `json:"today_date" gorm:"size:10"` // UTC YYYY-MM-DD of TodayPoints

	// Diamonds per bucket
	RoundDiamonds  int64 `json:"round_diamonds" gorm:"default:0"`
	StreamDiamonds int64 `json:"stream_diamonds" gorm:"default:0"`
	TotalDiamonds  int64 `json:"total_diamonds" gorm:"default:0"`

	// Membership
	IsFan        bool       `json:"is_fan" gorm:"default:false"`
	FanExpiresAt *time.Time `json:"fan_expires_at,omitempty"`
	IsVIP        bool       `json:"is_vip" gorm:"default:false"`
	VIPExpiresAt *time.Time `json:"vip_expires_at,omitempty"`
	QueueBlocked bool       `json:"queue_blocked" gorm:"default:false"`

	// Loaded from twist_inventories on demand
	Inventory map[string]int `json:"inventory,omitempty" gorm:"-"`

	Timestamps
}

// FanActive reports whether the fan flag is set and not expired at now.
func (v *Viewer) FanActive(now time.Time) bool {
	return v.IsFan && (v.FanExpiresAt == nil || v.FanExpiresAt.After(now))
}

// VIPActive reports whether the VIP flag is set and not expired at now.
func (v *Viewer) VIPActive(now time.Time) bool {
	return v.IsVIP && (v.VIPExpiresAt == nil || v.VIPExpiresAt.After(now))
}

// TwistInventory is the count of one twist kind owned by a viewer.
type TwistInventory struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ExternalUserID string    `gorm:"uniqueIndex:idx_inventory_owner_kind;not null" json:"external_user_id"`
	Kind           string    `gorm:"uniqueIndex:idx_inventory_owner_kind;size:32;not null" json:"kind"`
	Quantity       int       `json:"quantity" gorm:"default:0;check:quantity >= 0"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
