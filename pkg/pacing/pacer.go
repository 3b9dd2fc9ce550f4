package pacing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for pacing.
var (
	exportPacingWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "export_pacing_wait_seconds",
		Help:    "Time spent waiting before page fetches",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 5, 30, 60},
	})

	exportCooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "export_cooldowns_total",
		Help: "Total number of Retry-After cooldowns recorded",
	})
)

// Pacer spaces out page fetches and tracks shared cooldowns.
type Pacer struct {
	redis  *redis.Client
	logger zerolog.Logger
	delay  time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewPacer creates a pacer with the given inter-page delay.
// A non-positive delay falls back to DefaultPageDelay.
func NewPacer(redisClient *redis.Client, logger zerolog.Logger, delay time.Duration) *Pacer {
	if delay <= 0 {
		delay = DefaultPageDelay
	}
	return &Pacer{
		redis:  redisClient,
		logger: logger,
		delay:  delay,
	}
}

// GetState retrieves the shared pacing state from Redis.
// Returns an idle state if nothing has been recorded yet.
func (p *Pacer) GetState(ctx context.Context) (*State, error) {
	cooldownTS, err := p.redis.Get(ctx, RedisKeyCooldownUntil).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get cooldown: %w", err)
	}
	if err == redis.Nil {
		return &State{LastUpdate: time.Now()}, nil
	}

	lastUpdateStr, err := p.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	state := &State{CooldownUntil: time.Unix(cooldownTS, 0)}
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &state.LastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	return state, nil
}

// UpdateFromHeaders records a Retry-After cooldown from a throttled
// response. Only 429 and 503 responses carry a meaningful Retry-After for
// the export service; other statuses are ignored.
func (p *Pacer) UpdateFromHeaders(ctx context.Context, statusCode int, headers http.Header) error {
	if statusCode != http.StatusTooManyRequests && statusCode != http.StatusServiceUnavailable {
		return nil
	}

	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return nil
	}

	cooldownUntil, err := parseRetryAfter(retryAfter)
	if err != nil {
		return fmt.Errorf("parse Retry-After header: %w", err)
	}

	now := time.Now()
	pipe := p.redis.Pipeline()
	pipe.Set(ctx, RedisKeyCooldownUntil, cooldownUntil.Unix(), 0)

	lastUpdateJSON, err := json.Marshal(now)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store pacing state in redis: %w", err)
	}

	exportCooldownsTotal.Inc()
	p.logger.Warn().
		Int("status", statusCode).
		Time("cooldown_until", cooldownUntil).
		Msg("Export service throttling - cooldown recorded")

	return nil
}

// Wait blocks until the next page fetch may proceed: the inter-page delay
// since the previous fetch plus any shared cooldown. Returns early with the
// context error on cancellation.
func (p *Pacer) Wait(ctx context.Context) error {
	wait := p.localDelay()

	state, err := p.GetState(ctx)
	if err != nil {
		// Pacing is best-effort: a Redis failure should not kill the
		// export, only lose the shared cooldown.
		p.logger.Warn().Err(err).Msg("Pacing state unavailable - using local delay only")
	} else if cooldown := state.TimeUntilReady(); cooldown > wait {
		p.logger.Info().
			Dur("cooldown", cooldown).
			Msg("Waiting out shared cooldown before next page")
		wait = cooldown
	}

	if wait <= 0 {
		p.markFetch()
		return nil
	}

	exportPacingWaitSeconds.Observe(wait.Seconds())

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}

	p.markFetch()
	return nil
}

// localDelay returns the remaining inter-page delay since the last fetch.
func (p *Pacer) localDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last.IsZero() {
		return 0
	}
	remaining := p.delay - time.Since(p.last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (p *Pacer) markFetch() {
	p.mu.Lock()
	p.last = time.Now()
	p.mu.Unlock()
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) (time.Time, error) {
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return time.Time{}, fmt.Errorf("negative Retry-After: %d", seconds)
		}
		return time.Now().Add(time.Duration(seconds) * time.Second), nil
	}

	when, err := http.ParseTime(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid Retry-After %q", value)
	}
	return when, nil
}
