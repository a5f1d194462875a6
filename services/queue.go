// services/queue.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"live-arena-system/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// QueueRules are the queue's slice of Settings.
type QueueRules struct {
	CostPerBoostSlot   int64
	MaxBoostPerCommand int
	VIPWeight          int
}

// QueueRank is one line of a queue snapshot.
type QueueRank struct {
	Position       int       `json:"position"`
	ExternalUserID string    `json:"external_user_id"`
	DisplayName    string    `json:"display_name"`
	Handle         string    `json:"handle"`
	JoinedAt       time.Time `json:"joined_at"`
	BoostCount     int       `json:"boost_count"`
	IsVIP          bool      `json:"is_vip"`
	IsFan          bool      `json:"is_fan"`
	Priority       int       `json:"priority"`
	Reason         string    `json:"reason"`
}

// QueueService is the ordered waiting list for arena entry.
type QueueService struct {
	DB     *gorm.DB
	Ledger *LedgerService
	Clock  clockwork.Clock
	Rules  func() QueueRules
}

func NewQueueService(db *gorm.DB, ledger *LedgerService, clock clockwork.Clock, rules func() QueueRules) *QueueService {
	return &QueueService{DB: db, Ledger: ledger, Clock: clock, Rules: rules}
}

// Join adds a viewer with zero boost. Blocked viewers are rejected; an existing entry
// is reported as ErrAlreadyQueued and left untouched.
func (s *QueueService) Join(ctx context.Context, externalID string) error {
	db := s.DB.WithContext(ctx)

	var v models.Viewer
	if err := db.Where("external_id = ?", externalID).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownViewer, externalID)
		}
		return fmt.Errorf("load viewer %s: %w", externalID, err)
	}
	if v.QueueBlocked {
		return ErrQueueBlocked
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var existing models.QueueEntry
		err := tx.Where("external_user_id = ?", externalID).First(&existing).Error
		if err == nil {
			return ErrAlreadyQueued
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load queue entry %s: %w", externalID, err)
		}
		return tx.Create(&models.QueueEntry{
			ID:             uuid.NewString(),
			ExternalUserID: externalID,
			JoinedAt:       s.Clock.Now().UTC(),
		}).Error
	})
}

// Leave removes the entry and refunds half of what was spent on boosts.
// Leaving when not queued is a no-op returning 0.
func (s *QueueService) Leave(ctx context.Context, externalID string) (int64, error) {
	entry, err := s.Remove(ctx, externalID)
	if err != nil || entry == nil {
		return 0, err
	}
	refund := RefundFor(entry.BoostCount, s.Rules().CostPerBoostSlot)
	if refund > 0 {
		if err := s.Ledger.RefundPoints(ctx, externalID, refund, "queue_leave_refund"); err != nil {
			return 0, err
		}
	}
	log.Printf("[QUEUE] 🚪 %s left the queue (boost %d, refund %d BP)", externalID, entry.BoostCount, refund)
	return refund, nil
}

// RefundFor is floor(boost × cost × 0.5).
func RefundFor(boostCount int, costPerSlot int64) int64 {
	if boostCount <= 0 || costPerSlot <= 0 {
		return 0
	}
	return int64(boostCount) * costPerSlot / 2
}

// Remove deletes the entry without refund and returns it, or nil if absent.
// Used for promotion into the arena.
func (s *QueueService) Remove(ctx context.Context, externalID string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("external_user_id = ?", externalID).First(&entry).Error; err != nil {
			return err
		}
		return tx.Delete(&entry).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("remove queue entry %s: %w", externalID, err)
	}
	return &entry, nil
}

// Boost buys priority. Slots are clamped to [1, MaxBoostPerCommand].
func (s *QueueService) Boost(ctx context.Context, externalID string, slots int) (int, error) {
	rules := s.Rules()
	slots = ClampBoost(slots, rules.MaxBoostPerCommand)

	db := s.DB.WithContext(ctx)
	var entry models.QueueEntry
	if err := db.Where("external_user_id = ?", externalID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotQueued
		}
		return 0, fmt.Errorf("load queue entry %s: %w", externalID, err)
	}

	cost := int64(slots) * rules.CostPerBoostSlot
	if err := s.Ledger.SpendPoints(ctx, externalID, cost, "queue_boost"); err != nil {
		return 0, err
	}
	if err := db.Model(&entry).Update("boost_count", gorm.Expr("boost_count + ?", slots)).Error; err != nil {
		// Give the points back; the boost never landed.
		if rerr := s.Ledger.RefundPoints(ctx, externalID, cost, "queue_boost_failed"); rerr != nil {
			log.Printf("[QUEUE] ❌ refund after failed boost for %s: %v", externalID, rerr)
		}
		return 0, fmt.Errorf("boost %s: %w", externalID, err)
	}
	log.Printf("[QUEUE] 🚀 %s boosted +%d for %d BP", externalID, slots, cost)
	return slots, nil
}

// ClampBoost bounds a requested slot count to [1, max].
func ClampBoost(slots, max int) int {
	if slots < 1 {
		slots = 1
	}
	if max >= 1 && slots > max {
		slots = max
	}
	return slots
}

// Contains reports whether the viewer holds a queue entry.
func (s *QueueService) Contains(ctx context.Context, externalID string) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.QueueEntry{}).Where("external_user_id = ?", externalID).Count(&n).Error
	return n > 0, err
}

// Snapshot ranks the queue by priority desc, then join time asc. VIP and fan status
// are read at snapshot time, not join time.
func (s *QueueService) Snapshot(ctx context.Context) ([]QueueRank, error) {
	db := s.DB.WithContext(ctx)

	var entries []models.QueueEntry
	if err := db.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	if len(entries) == 0 {
		return []QueueRank{}, nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ExternalUserID
	}
	var viewers []models.Viewer
	if err := db.Where("external_id IN ?", ids).Find(&viewers).Error; err != nil {
		return nil, fmt.Errorf("load queued viewers: %w", err)
	}
	byID := make(map[string]models.Viewer, len(viewers))
	for _, v := range viewers {
		byID[v.ExternalID] = v
	}

	now := s.Clock.Now()
	weight := s.Rules().VIPWeight
	ranks := make([]QueueRank, 0, len(entries))
	for _, e := range entries {
		v := byID[e.ExternalUserID]
		vip := v.VIPActive(now)
		r := QueueRank{
			ExternalUserID: e.ExternalUserID,
			DisplayName:    v.DisplayName,
			Handle:         v.Handle,
			JoinedAt:       e.JoinedAt,
			BoostCount:     e.BoostCount,
			IsVIP:          vip,
			IsFan:          v.FanActive(now),
			Priority:       e.BoostCount,
		}
		if vip {
			r.Priority += weight
		}
		r.Reason = priorityReason(vip, e.BoostCount)
		ranks = append(ranks, r)
	}

	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Priority != ranks[j].Priority {
			return ranks[i].Priority > ranks[j].Priority
		}
		if !ranks[i].JoinedAt.Equal(ranks[j].JoinedAt) {
			return ranks[i].JoinedAt.Before(ranks[j].JoinedAt)
		}
		return ranks[i].ExternalUserID < ranks[j].ExternalUserID
	})
	for i := range ranks {
		ranks[i].Position = i + 1
	}
	return ranks, nil
}

func priorityReason(vip bool, boost int) string {
	var parts []string
	if vip {
		parts = append(parts, "VIP")
	}
	if boost > 0 {
		parts = append(parts, fmt.Sprintf("Boost +%d", boost))
	}
	if len(parts) == 0 {
		return "FIFO"
	}
	return strings.Join(parts, " + ")
}

// Clear empties the queue without refunds.
func (s *QueueService) Clear(ctx context.Context) error {
	return s.DB.WithContext(ctx).Where("1 = 1").Delete(&models.QueueEntry{}).Error
}
