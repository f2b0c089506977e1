package relaypool

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// Subscription is a handle over one subscription opened per currently
// connected relay. Events are delivered in arrival order per relay; the
// pool does not globally interleave or dedupe across relays — per spec
// §4.4, that is the caller's responsibility if cross-relay ordering
// matters.
type Subscription struct {
	cancel  context.CancelFunc
	closed  sync.Once
	wg      sync.WaitGroup
	subs    []*nostr.Subscription
}

// Close closes every underlying per-relay subscription. Idempotent.
func (s *Subscription) Close() {
	s.closed.Do(func() {
		s.cancel()
		for _, sub := range s.subs {
			sub.Unsub()
		}
	})
	s.wg.Wait()
}

// Subscribe opens one subscription per currently connected relay and
// delivers every event to handler as it arrives. The returned Subscription
// must be closed by the caller.
func (p *Pool) Subscribe(ctx context.Context, filters nostr.Filters, handler EventHandler) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel}

	relays := p.connectedRelays()
	for url, relay := range relays {
		relaySub, err := relay.Subscribe(subCtx, filters)
		if err != nil {
			slog.Warn("subscribe failed", "relay", url, "error", err)
			continue
		}
		sub.subs = append(sub.subs, relaySub)

		sub.wg.Add(1)
		go func(url string, relaySub *nostr.Subscription) {
			defer sub.wg.Done()
			for event := range relaySub.Events {
				handler(url, event)
			}
		}(url, relaySub)
	}

	return sub, nil
}
