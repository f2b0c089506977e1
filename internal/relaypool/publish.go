package relaypool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	publishRateLimit = rate.Limit(2)
	publishRateBurst = 5
)

// PublishResult is one relay's outcome for a single publish attempt, per
// spec §4.4's "publish(event) returns per-relay results" contract.
type PublishResult struct {
	RelayURL string
	OK       bool
	Reason   string
}

// Publisher rate-limits and fans out event publication across a pool's
// currently connected relays, reporting each relay's outcome faithfully —
// the pool never collapses a partial failure into a single error, the way
// klistr's Publisher does for its own write-relay fan-out.
type Publisher struct {
	pool    *Pool
	limiter *rate.Limiter
}

// NewPublisher wraps pool with outbound rate limiting.
func NewPublisher(pool *Pool) *Publisher {
	return &Publisher{
		pool:    pool,
		limiter: rate.NewLimiter(publishRateLimit, publishRateBurst),
	}
}

// Publish sends event to every currently connected relay, waiting for an
// outbound rate-limit token first. At least one relay succeeding is
// required for the caller to consider the attempt useful, but every
// relay's outcome is reported regardless.
func (p *Publisher) Publish(ctx context.Context, event *nostr.Event) ([]PublishResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	relays := p.pool.connectedRelays()
	if len(relays) == 0 {
		return nil, nil
	}

	results := make([]PublishResult, 0, len(relays))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	for url, relay := range relays {
		url, relay := url, relay
		group.Go(func() error {
			publishCtx, cancel := context.WithTimeout(groupCtx, 15*time.Second)
			defer cancel()

			err := relay.Publish(publishCtx, *event)
			result := PublishResult{RelayURL: url, OK: err == nil}
			if err != nil {
				result.Reason = err.Error()
				slog.Debug("publish to relay failed", "relay", url, "id", event.ID, "error", err)
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil // per-relay failure never aborts the fan-out
		})
	}
	_ = group.Wait()

	return results, nil
}
