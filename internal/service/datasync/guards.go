package datasync

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/ignite/mautic-sync/internal/mautic"
	"github.com/ignite/mautic-sync/internal/metrics"
	"github.com/ignite/mautic-sync/internal/pkg/logger"
)

// BreakerSettings tunes the per-tenant circuit breakers.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// guards keeps per-tenant breakers and rate limiters alive across runs.
type guards struct {
	mu       sync.Mutex
	breaker  *BreakerSettings
	rps      float64
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
	limiters map[string]*rate.Limiter
}

func newGuards() *guards {
	return &guards{
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (g *guards) options(tenantID string) []mautic.Option {
	g.mu.Lock()
	defer g.mu.Unlock()

	var opts []mautic.Option
	if g.breaker != nil {
		cb, ok := g.breakers[tenantID]
		if !ok {
			cb = newBreaker(tenantID, *g.breaker)
			g.breakers[tenantID] = cb
		}
		opts = append(opts, mautic.WithBreaker(cb))
	}
	if g.rps > 0 {
		l, ok := g.limiters[tenantID]
		if !ok {
			burst := int(g.rps)
			if burst < 1 {
				burst = 1
			}
			l = rate.NewLimiter(rate.Limit(g.rps), burst)
			g.limiters[tenantID] = l
		}
		opts = append(opts, mautic.WithRateLimiter(l))
	}
	return opts
}

func newBreaker(tenantID string, s BreakerSettings) *gobreaker.CircuitBreaker[[]byte] {
	threshold := s.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	metrics.CircuitBreakerState.WithLabelValues(tenantID).Set(0)
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        tenantID,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		// Rejected requests (4xx) mean a misconfigured tenant, not an outage.
		IsSuccessful: func(err error) bool {
			var rre *mautic.RemoteRequestError
			if errors.As(err, &rre) {
				return !rre.Temporary()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("datasync: circuit breaker state change", "tenant_id", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
