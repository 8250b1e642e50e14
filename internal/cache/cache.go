// Package cache memoizes expensive query and aggregation results under
// content-addressed fingerprints. Entries expire by TTL (checked lazily on
// lookup), the store is bounded by LRU eviction, and concurrent callers
// sharing a fingerprint trigger at most one computation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"weather-query-service/pkg/metrics"
)

// CacheError signals that the underlying cache store misbehaved. It is never
// surfaced to callers of GetOrCompute: the request falls back to direct
// computation.
type CacheError struct {
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache store unavailable: %v", e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// Fingerprint derives the cache key for a namespace and its canonical parts.
// The namespace stays in clear text so whole classes of entries can be
// invalidated by prefix; the parts are digested so semantically identical
// requests always collide and different ones (almost) never do.
func Fingerprint(namespace string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0}) // field separator, keeps ("ab","c") != ("a","bc")
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	payload   interface{}
	createdAt time.Time
	ttl       time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// Service is the cache layer. It owns the only mutable shared state in the
// core; everything else is read-only after startup.
type Service struct {
	store   *lru.Cache[string, *entry]
	group   singleflight.Group
	logger  zerolog.Logger
	metrics *metrics.Collector

	// now is replaceable in tests to drive TTL expiry deterministically
	now func() time.Time
}

// NewService creates a cache bounded to maxEntries (LRU eviction)
func NewService(maxEntries int, logger zerolog.Logger, metricsCollector *metrics.Collector) (*Service, error) {
	s := &Service{
		logger:  logger,
		metrics: metricsCollector,
		now:     time.Now,
	}

	store, err := lru.NewWithEvict[string, *entry](maxEntries, func(key string, _ *entry) {
		if metricsCollector != nil {
			metricsCollector.CacheEvictionsTotal.Inc()
		}
	})
	if err != nil {
		return nil, &CacheError{Err: err}
	}
	s.store = store
	return s, nil
}

// GetOrCompute returns the cached payload for the fingerprint, or runs
// computeFn and caches its result for ttl. Concurrent callers with the same
// fingerprint observe exactly one execution: waiters receive the shared
// result, or the shared failure without individual retries. Failures are
// never cached.
func (s *Service) GetOrCompute(ctx context.Context, fingerprint string, ttl time.Duration, computeFn func(context.Context) (interface{}, error)) (interface{}, error) {
	if payload, ok := s.lookup(fingerprint); ok {
		s.metrics.CacheHitsTotal.Inc()
		s.logger.Debug().Str("fingerprint", fingerprint).Msg("[CACHE_HIT] Serving cached result")
		return payload, nil
	}

	payload, err, shared := s.group.Do(fingerprint, func() (interface{}, error) {
		// Re-check under the singleflight lock: a previous flight may have
		// populated the entry between our lookup and this call.
		if payload, ok := s.lookup(fingerprint); ok {
			s.metrics.CacheHitsTotal.Inc()
			return payload, nil
		}
		s.metrics.CacheMissesTotal.Inc()

		// A caller that abandons the request must not cancel a computation
		// other waiters still need; the compute path applies its own timeout.
		result, err := computeFn(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		s.store.Add(fingerprint, &entry{
			payload:   result,
			createdAt: s.now(),
			ttl:       ttl,
		})
		s.metrics.CacheEntries.Set(float64(s.store.Len()))
		return result, nil
	})

	if shared {
		s.metrics.CacheSharedTotal.Inc()
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// lookup returns a live entry, removing it lazily when expired
func (s *Service) lookup(fingerprint string) (interface{}, bool) {
	e, ok := s.store.Get(fingerprint)
	if !ok {
		return nil, false
	}
	if e.expired(s.now()) {
		s.store.Remove(fingerprint)
		s.metrics.CacheEntries.Set(float64(s.store.Len()))
		s.logger.Debug().Str("fingerprint", fingerprint).Msg("[CACHE_EXPIRE] Removed stale entry")
		return nil, false
	}
	return e.payload, true
}

// Invalidate removes a single entry. Used administratively, e.g. after a
// data reload.
func (s *Service) Invalidate(fingerprint string) bool {
	removed := s.store.Remove(fingerprint)
	s.metrics.CacheEntries.Set(float64(s.store.Len()))
	return removed
}

// InvalidatePrefix removes every entry whose fingerprint starts with the
// given prefix (typically a namespace such as "summary:"). Returns the number
// of removed entries.
func (s *Service) InvalidatePrefix(prefix string) int {
	removed := 0
	for _, key := range s.store.Keys() {
		if strings.HasPrefix(key, prefix) {
			if s.store.Remove(key) {
				removed++
			}
		}
	}
	s.metrics.CacheEntries.Set(float64(s.store.Len()))
	s.logger.Info().Str("prefix", prefix).Int("removed", removed).Msg("[CACHE_INVALIDATE] Entries invalidated")
	return removed
}

// Len returns the current number of stored entries, including not yet
// collected expired ones.
func (s *Service) Len() int {
	return s.store.Len()
}
