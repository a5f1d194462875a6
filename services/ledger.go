// services/ledger.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"live-arena-system/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Bucket selects which diamond counter AddCurrency increments.
type Bucket string

const (
	BucketRound   Bucket = "round"
	BucketStream  Bucket = "stream"
	BucketAllTime Bucket = "all_time"
)

func (b Bucket) column() (string, error) {
	switch b {
	case BucketRound:
		return "round_diamonds", nil
	case BucketStream:
		return "stream_diamonds", nil
	case BucketAllTime:
		return "total_diamonds", nil
	}
	return "", fmt.Errorf("unknown bucket %q", b)
}

// LedgerService tracks diamonds and spendable points (BP).
type LedgerService struct {
	DB       *gorm.DB
	Identity *IdentityService
	Clock    clockwork.Clock
	// DailyCap returns the current cap; settings can change at runtime.
	DailyCap func() int64
}

func NewLedgerService(db *gorm.DB, identity *IdentityService, clock clockwork.Clock, dailyCap func() int64) *LedgerService {
	return &LedgerService{DB: db, Identity: identity, Clock: clock, DailyCap: dailyCap}
}

// AddCurrency increments one diamond bucket. Non-positive amounts are a no-op.
func (s *LedgerService) AddCurrency(ctx context.Context, externalID string, amount int64, bucket Bucket) error {
	if amount <= 0 || IsUnknownID(externalID) {
		return nil
	}
	col, err := bucket.column()
	if err != nil {
		return err
	}
	res := s.DB.WithContext(ctx).Model(&models.Viewer{}).
		Where("external_id = ?", externalID).
		Update(col, gorm.Expr(col+" + ?", amount))
	if res.Error != nil {
		return fmt.Errorf("add %d diamonds (%s) to %s: %w", amount, bucket, externalID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownViewer, externalID)
	}
	return nil
}

// AddPoints credits BP subject to the daily cap and returns what actually landed.
// The requested amount is always audited, capped or not.
func (s *LedgerService) AddPoints(ctx context.Context, externalID string, amount int64, reason string) (int64, error) {
	if amount <= 0 || IsUnknownID(externalID) {
		return 0, nil
	}
	if _, err := s.Identity.Resolve(ctx, externalID, "", ""); err != nil {
		return 0, err
	}

	today := s.Clock.Now().UTC().Format("2006-01-02")
	dailyCap := s.DailyCap()

	var credited int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v models.Viewer
		if err := lockForUpdate(tx).Where("external_id = ?", externalID).First(&v).Error; err != nil {
			return fmt.Errorf("load viewer %s: %w", externalID, err)
		}

		accrued := v.TodayPoints
		if v.TodayDate != today {
			accrued = 0
		}
		if room := dailyCap - accrued; room > 0 {
			credited = min(amount, room)
		}

		if err := tx.Model(&v).Updates(map[string]any{
			"today_date":      today,
			"today_points":    accrued + credited,
			"points_balance":  gorm.Expr("points_balance + ?", credited),
			"lifetime_points": gorm.Expr("lifetime_points + ?", credited),
		}).Error; err != nil {
			return err
		}
		return tx.Create(&models.PointsEntry{
			ID:             uuid.NewString(),
			ExternalUserID: externalID,
			Requested:      amount,
			Applied:        credited,
			Reason:         reason,
		}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("add points to %s: %w", externalID, err)
	}
	if credited < amount {
		log.Printf("[LEDGER] %s hit the daily cap: requested %d, credited %d (%s)", externalID, amount, credited, reason)
	}
	return credited, nil
}

// SpendPoints debits BP only if the balance covers it. The check and the debit are a
// single conditional UPDATE, so concurrent spends can never overdraw.
func (s *LedgerService) SpendPoints(ctx context.Context, externalID string, amount int64, reason string) error {
	if amount <= 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Viewer{}).
			Where("external_id = ? AND points_balance >= ?", externalID, amount).
			Update("points_balance", gorm.Expr("points_balance - ?", amount))
		if res.Error != nil {
			return fmt.Errorf("spend %d points for %s: %w", amount, externalID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientFunds
		}
		return tx.Create(&models.PointsEntry{
			ID:             uuid.NewString(),
			ExternalUserID: externalID,
			Requested:      -amount,
			Applied:        -amount,
			Reason:         reason,
		}).Error
	})
}

// RefundPoints returns previously spent BP. Refunds bypass the daily cap.
func (s *LedgerService) RefundPoints(ctx context.Context, externalID string, amount int64, reason string) error {
	if amount <= 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Viewer{}).
			Where("external_id = ?", externalID).
			Update("points_balance", gorm.Expr("points_balance + ?", amount))
		if res.Error != nil {
			return fmt.Errorf("refund %d points to %s: %w", amount, externalID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrUnknownViewer, externalID)
		}
		return tx.Create(&models.PointsEntry{
			ID:             uuid.NewString(),
			ExternalUserID: externalID,
			Requested:      amount,
			Applied:        amount,
			Reason:         reason,
		}).Error
	})
}

// Balance returns the current spendable BP.
func (s *LedgerService) Balance(ctx context.Context, externalID string) (int64, error) {
	var v models.Viewer
	err := s.DB.WithContext(ctx).Select("points_balance").Where("external_id = ?", externalID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownViewer, externalID)
	}
	return v.PointsBalance, err
}

// ResetRoundCurrency zeroes one viewer's round bucket.
func (s *LedgerService) ResetRoundCurrency(ctx context.Context, externalID string) error {
	return s.DB.WithContext(ctx).Model(&models.Viewer{}).
		Where("external_id = ?", externalID).
		Update("round_diamonds", 0).Error
}

// ResetSessionCurrency zeroes the stream and round buckets for everyone.
func (s *LedgerService) ResetSessionCurrency(ctx context.Context) error {
	return s.DB.WithContext(ctx).Model(&models.Viewer{}).
		Where("stream_diamonds <> 0 OR round_diamonds <> 0").
		Updates(map[string]any{"stream_diamonds": 0, "round_diamonds": 0}).Error
}

// lockForUpdate takes a row lock where the dialect supports one.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
