package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ManuelReschke/MemoWindow/app/models"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/orders"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/printful"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeLedger struct {
	calls    map[string]string
	err      error
	failures map[string]string
}

func (f *fakeLedger) CompleteFulfillment(ctx context.Context, sessionID, printfulOrderID string) (*models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.calls == nil {
		f.calls = map[string]string{}
	}
	f.calls[sessionID] = printfulOrderID
	id := printfulOrderID
	return &models.Order{ID: 1, StripeSessionID: sessionID, Status: models.OrderStatusPaid, PrintfulOrderID: &id}, nil
}

func (f *fakeLedger) RecordFailure(ctx context.Context, sessionID, status string, cause error) error {
	if f.failures == nil {
		f.failures = map[string]string{}
	}
	f.failures[sessionID] = status + ": " + cause.Error()
	return nil
}

type fakeLookup struct {
	orders    map[string]string
	err       error
	calls     int
	cancelErr error
	cancelled []string
}

func (f *fakeLookup) GetOrderByExternalID(ctx context.Context, externalID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if id, ok := f.orders[externalID]; ok {
		return id, nil
	}
	return "", printful.ErrOrderNotFound
}

func (f *fakeLookup) CancelOrder(ctx context.Context, printfulOrderID string) error {
	f.cancelled = append(f.cancelled, printfulOrderID)
	return f.cancelErr
}

func reconcileJob(p ReconcileOrderPayload) *Job {
	return &Job{ID: "job-1", Type: JobTypeReconcileOrder, Payload: p.ToMap(), MaxRetries: DefaultMaxRetries}
}

func TestReconcileProcessor(t *testing.T) {
	tests := []struct {
		name       string
		payload    ReconcileOrderPayload
		lookup     *fakeLookup
		ledgerErr  error
		wantErr    bool
		wantStamp  string
		wantLookup int
		wantFailed string
	}{
		{
			name:       "known printful id skips lookup",
			payload:    ReconcileOrderPayload{SessionID: "cs_1", ExternalID: "mw_cs_1", PrintfulOrderID: "555"},
			lookup:     &fakeLookup{},
			wantStamp:  "555",
			wantLookup: 0,
		},
		{
			name:       "found upstream by external id",
			payload:    ReconcileOrderPayload{SessionID: "cs_2", ExternalID: "mw_cs_2"},
			lookup:     &fakeLookup{orders: map[string]string{"mw_cs_2": "777"}},
			wantStamp:  "777",
			wantLookup: 1,
		},
		{
			name:       "nothing upstream marks the row failed",
			payload:    ReconcileOrderPayload{SessionID: "cs_3", ExternalID: "mw_cs_3"},
			lookup:     &fakeLookup{},
			wantLookup: 1,
			wantFailed: models.OrderStatusFailed + ": " + ErrNoUpstreamOrder.Error(),
		},
		{
			name:       "lookup failure is retried",
			payload:    ReconcileOrderPayload{SessionID: "cs_4", ExternalID: "mw_cs_4"},
			lookup:     &fakeLookup{err: &printful.TransportError{Op: "get order", Err: errors.New("timeout")}},
			wantErr:    true,
			wantLookup: 1,
		},
		{
			name:      "order moved on",
			payload:   ReconcileOrderPayload{SessionID: "cs_5", PrintfulOrderID: "1"},
			lookup:    &fakeLookup{},
			ledgerErr: &orders.TransitionError{From: models.OrderStatusShipped, To: models.OrderStatusPaid},
		},
		{
			name:      "storage failure is retried",
			payload:   ReconcileOrderPayload{SessionID: "cs_6", PrintfulOrderID: "1"},
			lookup:    &fakeLookup{},
			ledgerErr: &orders.StorageError{Op: "complete fulfillment", Err: errors.New("db down")},
			wantErr:   true,
		},
		{
			name:    "missing session id",
			payload: ReconcileOrderPayload{ExternalID: "mw_x"},
			lookup:  &fakeLookup{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &fakeLedger{err: tt.ledgerErr}
			process := NewReconcileProcessor(ledger, tt.lookup)

			err := process(context.Background(), reconcileJob(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantLookup, tt.lookup.calls)
			assert.Equal(t, tt.wantFailed, ledger.failures[tt.payload.SessionID])
			assert.Empty(t, tt.lookup.cancelled)
			if tt.wantStamp != "" {
				assert.Equal(t, tt.wantStamp, ledger.calls[tt.payload.SessionID])
			} else {
				assert.Empty(t, ledger.calls)
			}
		})
	}
}

func TestReconcileProcessor_CancelledMeanwhile(t *testing.T) {
	ledger := &fakeLedger{err: orders.ErrCancelledMeanwhile}
	lookup := &fakeLookup{cancelErr: &printful.TransportError{Op: "cancel order", Err: errors.New("timeout")}}
	process := NewReconcileProcessor(ledger, lookup)
	job := reconcileJob(ReconcileOrderPayload{SessionID: "cs_c", ExternalID: "mw_cs_c", PrintfulOrderID: "900"})

	// A failed upstream cancel is retried by the queue.
	assert.Error(t, process(context.Background(), job))

	lookup.cancelErr = nil
	require.NoError(t, process(context.Background(), job))
	assert.Equal(t, []string{"900", "900"}, lookup.cancelled)
	assert.Empty(t, ledger.failures)
}

func TestReconcile_UnmatchedStaleOrderLeavesSweep(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ledger := orders.NewServiceFromDB(db)
	require.NoError(t, ledger.Migrate())
	ctx := context.Background()

	_, _, err = ledger.RecordOrder(ctx, orders.OrderInput{SessionID: "cs_lost", ExternalID: "mw_cs_lost", UserID: "u1", ProductID: "mug", AmountPaid: 1499})
	require.NoError(t, err)
	_, err = ledger.ClaimForFulfillment(ctx, "cs_lost", time.Minute)
	require.NoError(t, err)
	require.NoError(t, ledger.RecordFailure(ctx, "cs_lost", models.OrderStatusPending, errors.New("timeout")))
	old := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.Model(&models.Order{}).Where("1 = 1").UpdateColumn("updated_at", old).Error)

	q, _ := newTestQueue(t, 1)
	m := NewManager(q, ledger)
	n, err := m.SweepStaleOrdersOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	job, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	require.NoError(t, NewReconcileProcessor(ledger, &fakeLookup{})(ctx, job))

	order, err := ledger.GetBySessionID(ctx, "cs_lost")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, order.Status)
	assert.Equal(t, ErrNoUpstreamOrder.Error(), order.LastError)

	stale, err := ledger.ListStale(ctx, time.Now().UTC().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	// The row stays claimable by a later webhook delivery.
	claimed, err := ledger.ClaimForFulfillment(ctx, "cs_lost", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, claimed.Status)
}
