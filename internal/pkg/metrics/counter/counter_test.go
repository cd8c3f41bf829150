package counter

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := New(client)
	ctx := context.Background()

	empty, err := c.Outcomes(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, c.AddOutcome(ctx, "fulfilled"))
	require.NoError(t, c.AddOutcome(ctx, "fulfilled"))
	require.NoError(t, c.AddOutcome(ctx, OutcomeInvalidSignature))
	require.NoError(t, c.AddOutcome(ctx, "duplicate"))
	mr.HSet(webhookOutcomesKey, "garbage", "x")

	got, err := c.Outcomes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []OutcomeCount{
		{Outcome: "duplicate", Count: 1},
		{Outcome: "fulfilled", Count: 2},
		{Outcome: OutcomeInvalidSignature, Count: 1},
	}, got)
}

func TestOutcomes_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	c := New(client)
	assert.Error(t, c.AddOutcome(context.Background(), "fulfilled"))
	_, err := c.Outcomes(context.Background())
	assert.Error(t, err)
}
