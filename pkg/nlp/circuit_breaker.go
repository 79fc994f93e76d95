package nlp

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/soundprediction/expertgraph/pkg/types"
)

// BreakerConfig holds circuit-breaker settings for the synthesis client.
type BreakerConfig struct {
	Enabled          bool
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	ReadyToTripRatio float64
}

// CircuitBreakerClient wraps a synthesis client with a circuit breaker so a
// failing upstream stops receiving traffic until it recovers.
type CircuitBreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker
}

// NewCircuitBreakerClient wraps client with breaker settings derived from
// cfg.
func NewCircuitBreakerClient(client Client, cfg BreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	if logger == nil {
		logger = slog.Default()
	}

	ratio := cfg.ReadyToTripRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	st := gobreaker.Settings{
		Name:        "answer-synthesis",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= ratio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	}

	return &CircuitBreakerClient{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(st),
	}
}

// Synthesize implements Client through the breaker.
func (c *CircuitBreakerClient) Synthesize(ctx context.Context, query string, evidence []types.Evidence) (*Answer, error) {
	resp, err := c.cb.Execute(func() (interface{}, error) {
		return c.client.Synthesize(ctx, query, evidence)
	})
	if err != nil {
		return nil, err
	}
	return resp.(*Answer), nil
}

// Close implements Client.
func (c *CircuitBreakerClient) Close() error {
	return c.client.Close()
}
