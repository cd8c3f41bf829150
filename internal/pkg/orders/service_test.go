package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/MemoWindow/app/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	svc := NewServiceFromDB(db)
	require.NoError(t, svc.Migrate())
	return svc, db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sampleInput(sessionID string) OrderInput {
	return OrderInput{
		SessionID:     sessionID,
		ExternalID:    "mw_" + sessionID,
		UserID:        "u1",
		MemoryID:      7,
		ProductID:     "mug",
		CustomerEmail: "a@b.c",
		CustomerName:  "Ann",
		AmountPaid:    1499,
	}
}

func TestRecordOrder_Idempotent(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	first, created, err := svc.RecordOrder(ctx, sampleInput("cs_1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)
	assert.Equal(t, models.OrderStatusPending, first.Status)
	assert.Equal(t, 1, first.Quantity)
	assert.Equal(t, int64(1499), first.UnitPrice)
	assert.Equal(t, int64(1499), first.TotalPrice)
	assert.Nil(t, first.PrintfulOrderID)

	again := sampleInput("cs_1")
	again.CustomerName = "Somebody Else"
	second, created, err := svc.RecordOrder(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ann", second.CustomerName)

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Where("stripe_session_id = ?", "cs_1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordOrder_RequiresSession(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.RecordOrder(context.Background(), sampleInput(" "))
	assert.Error(t, err)
}

func TestRecordOrder_UsesUnitPrice(t *testing.T) {
	svc, _ := newTestService(t)
	in := sampleInput("cs_price")
	in.UnitPrice = 1200
	in.Quantity = 2

	order, _, err := svc.RecordOrder(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), order.UnitPrice)
	assert.Equal(t, int64(2400), order.TotalPrice)
	assert.Equal(t, int64(1499), order.AmountPaid)
}

func TestListRecent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, _, err := svc.RecordOrder(ctx, sampleInput(fmt.Sprintf("cs_%d", i)))
		require.NoError(t, err)
	}

	list, total, err := svc.ListRecent(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, list, 3)
	assert.Equal(t, "cs_5", list[0].StripeSessionID)
	assert.Equal(t, "cs_4", list[1].StripeSessionID)
	assert.Equal(t, "cs_3", list[2].StripeSessionID)

	empty, _ := newTestService(t)
	list, total, err = empty.ListRecent(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
}

func TestClaimForFulfillment_Lease(t *testing.T) {
	svc, _ := newTestService(t)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc.WithClock(clock.Now)
	ctx := context.Background()

	_, _, err := svc.RecordOrder(ctx, sampleInput("cs_lease"))
	require.NoError(t, err)

	order, err := svc.ClaimForFulfillment(ctx, "cs_lease", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, order.Attempts)

	_, err = svc.ClaimForFulfillment(ctx, "cs_lease", 30*time.Second)
	assert.ErrorIs(t, err, ErrOrderInFlight)

	clock.Advance(31 * time.Second)
	order, err = svc.ClaimForFulfillment(ctx, "cs_lease", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, order.Attempts)
}

func TestClaimForFulfillment_AfterPaid(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.RecordOrder(ctx, sampleInput("cs_done"))
	require.NoError(t, err)
	_, err = svc.ClaimForFulfillment(ctx, "cs_done", time.Minute)
	require.NoError(t, err)
	_, err = svc.CompleteFulfillment(ctx, "cs_done", "pf_1")
	require.NoError(t, err)

	order, err := svc.ClaimForFulfillment(ctx, "cs_done", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
}

func TestCompleteFulfillment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.RecordOrder(ctx, sampleInput("cs_ok"))
	require.NoError(t, err)
	_, err = svc.ClaimForFulfillment(ctx, "cs_ok", time.Minute)
	require.NoError(t, err)

	order, err := svc.CompleteFulfillment(ctx, "cs_ok", "12345")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, "12345", order.ProviderOrderID())
	assert.Nil(t, order.LeaseExpiresAt)

	// Same id again is a no-op.
	order, err = svc.CompleteFulfillment(ctx, "cs_ok", "12345")
	require.NoError(t, err)
	assert.Equal(t, "12345", order.ProviderOrderID())

	_, err = svc.CompleteFulfillment(ctx, "cs_ok", "99999")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.CompleteFulfillment(ctx, "cs_unknown", "1")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCompleteFulfillment_AfterCancel(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, _, err := svc.RecordOrder(ctx, sampleInput("cs_race"))
	require.NoError(t, err)
	_, err = svc.ClaimForFulfillment(ctx, "cs_race", time.Minute)
	require.NoError(t, err)
	_, _, err = svc.Cancel(ctx, created.ID, "admin-1", "")
	require.NoError(t, err)

	order, err := svc.CompleteFulfillment(ctx, "cs_race", "555")
	require.ErrorIs(t, err, ErrCancelledMeanwhile)
	assert.NotErrorIs(t, err, ErrInvalidTransition)
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, "555", order.ProviderOrderID())

	stored, err := svc.GetBySessionID(ctx, "cs_race")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, stored.Status)
	assert.Equal(t, "555", stored.ProviderOrderID())
	assert.Nil(t, stored.LeaseExpiresAt)

	// A reconciliation replay with the same id reports the same outcome.
	_, err = svc.CompleteFulfillment(ctx, "cs_race", "555")
	assert.ErrorIs(t, err, ErrCancelledMeanwhile)

	// A different provider id is not accepted.
	_, err = svc.CompleteFulfillment(ctx, "cs_race", "556")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRecordFailure(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.RecordOrder(ctx, sampleInput("cs_fail"))
	require.NoError(t, err)
	_, err = svc.ClaimForFulfillment(ctx, "cs_fail", time.Minute)
	require.NoError(t, err)

	require.NoError(t, svc.RecordFailure(ctx, "cs_fail", models.OrderStatusFailed, errors.New("Invalid variant")))
	order, err := svc.GetBySessionID(ctx, "cs_fail")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, order.Status)
	assert.Equal(t, "Invalid variant", order.LastError)
	assert.Nil(t, order.PrintfulOrderID)
	assert.Nil(t, order.LeaseExpiresAt)

	// A failed order can be claimed again and completed.
	order, err = svc.ClaimForFulfillment(ctx, "cs_fail", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	order, err = svc.CompleteFulfillment(ctx, "cs_fail", "777")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Empty(t, order.LastError)

	err = svc.RecordFailure(ctx, "cs_fail", models.OrderStatusShipped, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancel(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pending, _, err := svc.RecordOrder(ctx, sampleInput("cs_c1"))
	require.NoError(t, err)

	order, changed, err := svc.Cancel(ctx, pending.ID, "admin-1", "customer request")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, "admin-1", order.CancelledBy)
	assert.Equal(t, "customer request", order.CancelReason)
	assert.NotNil(t, order.CancelledAt)

	order, changed, err = svc.Cancel(ctx, pending.ID, "admin-2", "again")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "admin-1", order.CancelledBy)

	_, _, err = svc.Cancel(ctx, 9999, "admin-1", "")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCancel_DefaultReasonAndPaid(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	o, _, err := svc.RecordOrder(ctx, sampleInput("cs_paid"))
	require.NoError(t, err)
	_, err = svc.ClaimForFulfillment(ctx, "cs_paid", time.Minute)
	require.NoError(t, err)
	_, err = svc.CompleteFulfillment(ctx, "cs_paid", "42")
	require.NoError(t, err)

	order, changed, err := svc.Cancel(ctx, o.ID, "admin-1", "  ")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, DefaultCancelReason, order.CancelReason)
}

func TestCancel_InvalidTransition(t *testing.T) {
	for _, status := range []string{models.OrderStatusProcessing, models.OrderStatusShipped, models.OrderStatusDelivered, models.OrderStatusFailed} {
		t.Run(status, func(t *testing.T) {
			svc, db := newTestService(t)
			ctx := context.Background()

			o, _, err := svc.RecordOrder(ctx, sampleInput("cs_"+status))
			require.NoError(t, err)
			require.NoError(t, db.Model(&models.Order{}).Where("id = ?", o.ID).Update("status", status).Error)

			order, changed, err := svc.Cancel(ctx, o.ID, "admin-1", "")
			assert.False(t, changed)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			var te *TransitionError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, status, te.From)
			assert.Equal(t, status, order.Status)
		})
	}
}

func TestStorageErrorWrapping(t *testing.T) {
	svc, db := newTestService(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, _, err = svc.RecordOrder(context.Background(), sampleInput("cs_down"))
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "record order", se.Op)

	_, _, err = svc.ListRecent(context.Background(), 10)
	assert.ErrorAs(t, err, &se)
}

func TestListStale(t *testing.T) {
	svc, db := newTestService(t)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc.WithClock(clock.Now)
	ctx := context.Background()

	// Never attempted.
	_, _, err := svc.RecordOrder(ctx, sampleInput("cs_fresh"))
	require.NoError(t, err)

	// Attempted, transport failure recorded.
	_, _, err = svc.RecordOrder(ctx, sampleInput("cs_stuck"))
	require.NoError(t, err)
	_, err = svc.ClaimForFulfillment(ctx, "cs_stuck", time.Minute)
	require.NoError(t, err)
	require.NoError(t, svc.RecordFailure(ctx, "cs_stuck", models.OrderStatusPending, errors.New("timeout")))

	// Attempted and completed.
	_, _, err = svc.RecordOrder(ctx, sampleInput("cs_paid"))
	require.NoError(t, err)
	_, err = svc.ClaimForFulfillment(ctx, "cs_paid", time.Minute)
	require.NoError(t, err)
	_, err = svc.CompleteFulfillment(ctx, "cs_paid", "1")
	require.NoError(t, err)

	old := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.Model(&models.Order{}).Where("1 = 1").UpdateColumn("updated_at", old).Error)

	list, err := svc.ListStale(ctx, time.Now().UTC().Add(-10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "cs_stuck", list[0].StripeSessionID)
}
