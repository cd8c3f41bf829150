package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuelReschke/MemoWindow/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStaleSource struct {
	orders []models.Order
	err    error
	before time.Time
}

func (f *fakeStaleSource) ListStale(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	f.before = before
	return f.orders, f.err
}

func TestManager_SweepStaleOrdersOnce(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	ctx := context.Background()
	pf := "999"
	source := &fakeStaleSource{orders: []models.Order{
		{ID: 1, StripeSessionID: "cs_a", ExternalID: "mw_cs_a"},
		{ID: 2, StripeSessionID: "cs_b", ExternalID: "mw_cs_b", PrintfulOrderID: &pf},
	}}
	m := NewManager(q, source)

	n, err := m.SweepStaleOrdersOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.WithinDuration(t, time.Now().Add(-DefaultStaleAfter), source.before, 5*time.Second)

	// The second sweep is deduplicated by the reconcile lock.
	n, err = m.SweepStaleOrdersOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	size, _ := q.GetQueueSize(ctx)
	assert.Equal(t, int64(2), size)

	var payloads []ReconcileOrderPayload
	for i := 0; i < 2; i++ {
		job, err := q.dequeueJob(ctx)
		require.NoError(t, err)
		p, err := ReconcileOrderPayloadFromMap(job.Payload)
		require.NoError(t, err)
		payloads = append(payloads, *p)
	}
	assert.ElementsMatch(t, []ReconcileOrderPayload{
		{SessionID: "cs_a", ExternalID: "mw_cs_a"},
		{SessionID: "cs_b", ExternalID: "mw_cs_b", PrintfulOrderID: "999"},
	}, payloads)
}

func TestManager_SweepErrors(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	m := NewManager(q, &fakeStaleSource{err: errors.New("db down")})

	_, err := m.SweepStaleOrdersOnce(context.Background())
	assert.Error(t, err)

	none := NewManager(q, nil)
	n, err := none.SweepStaleOrdersOnce(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestManager_StartStop(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	m := NewManager(q, &fakeStaleSource{})

	assert.False(t, m.IsRunning())
	m.Stop()
	assert.False(t, m.IsRunning())

	m.Start()
	assert.True(t, m.IsRunning())
	assert.True(t, q.running)
	m.Stop()
	assert.False(t, m.IsRunning())
	assert.False(t, q.running)
}
