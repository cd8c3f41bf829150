package counter

import (
	"context"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const webhookOutcomesKey = "webhook:counters:outcomes"

// Outcome labels besides the pipeline outcomes.
const (
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeError            = "error"
)

// Counter keeps webhook outcome tallies in a Redis hash shared by all instances.
type Counter struct {
	client *redis.Client
}

func New(client *redis.Client) *Counter {
	return &Counter{client: client}
}

// AddOutcome increments the tally for one outcome.
func (c *Counter) AddOutcome(ctx context.Context, outcome string) error {
	return c.client.HIncrBy(ctx, webhookOutcomesKey, outcome, 1).Err()
}

// OutcomeCount is one row of a snapshot.
type OutcomeCount struct {
	Outcome string
	Count   int64
}

// Outcomes returns every tally sorted by outcome name.
func (c *Counter) Outcomes(ctx context.Context) ([]OutcomeCount, error) {
	data, err := c.client.HGetAll(ctx, webhookOutcomesKey).Result()
	if err != nil {
		return nil, err
	}

	counts := make([]OutcomeCount, 0, len(data))
	for k, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		counts = append(counts, OutcomeCount{Outcome: k, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Outcome < counts[j].Outcome })
	return counts, nil
}
