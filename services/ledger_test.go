package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"live-arena-system/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, dailyCap int64) (*LedgerService, *clockwork.FakeClock) {
	t.Helper()
	db := newTestDB(t)
	clock := clockwork.NewFakeClockAt(testEpoch)
	return NewLedgerService(db, NewIdentityService(db), clock, func() int64 { return dailyCap }), clock
}

func TestLedgerDailyCap(t *testing.T) {
	ledger, clock := newTestLedger(t, 100)
	ctx := context.Background()

	got, err := ledger.AddPoints(ctx, "u1", 80, "gift")
	require.NoError(t, err)
	assert.EqualValues(t, 80, got)

	got, err = ledger.AddPoints(ctx, "u1", 50, "gift")
	require.NoError(t, err)
	assert.EqualValues(t, 20, got)

	got, err = ledger.AddPoints(ctx, "u1", 5, "chat")
	require.NoError(t, err)
	assert.Zero(t, got)

	// new UTC day resets the allowance
	clock.Advance(24 * time.Hour)
	got, err = ledger.AddPoints(ctx, "u1", 30, "chat")
	require.NoError(t, err)
	assert.EqualValues(t, 30, got)

	bal, err := ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 130, bal)

	var n int64
	require.NoError(t, ledger.DB.Model(&models.PointsEntry{}).Count(&n).Error)
	assert.EqualValues(t, 4, n)
	var capped models.PointsEntry
	require.NoError(t, ledger.DB.Where("requested = ?", 50).First(&capped).Error)
	assert.EqualValues(t, 20, capped.Applied)
}

func TestLedgerSpendAndRefund(t *testing.T) {
	ledger, _ := newTestLedger(t, 1000)
	ctx := context.Background()

	_, err := ledger.AddPoints(ctx, "u1", 100, "seed")
	require.NoError(t, err)

	require.NoError(t, ledger.SpendPoints(ctx, "u1", 60, "boost"))
	assert.ErrorIs(t, ledger.SpendPoints(ctx, "u1", 60, "boost"), ErrInsufficientFunds)

	require.NoError(t, ledger.RefundPoints(ctx, "u1", 30, "leave"))
	bal, err := ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 70, bal)
}

func TestLedgerConcurrentSpendNeverOverdraws(t *testing.T) {
	ledger, _ := newTestLedger(t, 1000)
	ctx := context.Background()
	_, err := ledger.AddPoints(ctx, "u1", 100, "seed")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ledger.SpendPoints(ctx, "u1", 30, "boost") == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	bal, err := ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 10, bal)
}

func TestLedgerConcurrentAddPointsHoldsDailyCap(t *testing.T) {
	ledger, _ := newTestLedger(t, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var total int64
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := ledger.AddPoints(ctx, "u1", 15, "gift")
			assert.NoError(t, err)
			mu.Lock()
			total += got
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 100, total)
	bal, err := ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 100, bal)

	var v models.Viewer
	require.NoError(t, ledger.DB.Where("external_id = ?", "u1").First(&v).Error)
	assert.EqualValues(t, 100, v.TodayPoints)

	var n int64
	require.NoError(t, ledger.DB.Model(&models.PointsEntry{}).Count(&n).Error)
	assert.EqualValues(t, 10, n)
}

func TestLedgerCurrencyBuckets(t *testing.T) {
	ledger, _ := newTestLedger(t, 1000)
	ctx := context.Background()
	_, err := ledger.Identity.Resolve(ctx, "u1", "Alice", "")
	require.NoError(t, err)

	for _, b := range []Bucket{BucketRound, BucketStream, BucketAllTime} {
		require.NoError(t, ledger.AddCurrency(ctx, "u1", 100, b))
	}
	require.NoError(t, ledger.AddCurrency(ctx, "u1", -5, BucketRound))
	assert.ErrorIs(t, ledger.AddCurrency(ctx, "ghost", 5, BucketRound), ErrUnknownViewer)

	require.NoError(t, ledger.ResetRoundCurrency(ctx, "u1"))
	var v models.Viewer
	require.NoError(t, ledger.DB.Where("external_id = ?", "u1").First(&v).Error)
	assert.Zero(t, v.RoundDiamonds)
	assert.EqualValues(t, 100, v.StreamDiamonds)
	assert.EqualValues(t, 100, v.TotalDiamonds)

	require.NoError(t, ledger.ResetSessionCurrency(ctx))
	require.NoError(t, ledger.DB.Where("external_id = ?", "u1").First(&v).Error)
	assert.Zero(t, v.StreamDiamonds)
	assert.EqualValues(t, 100, v.TotalDiamonds)
}
