package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"weather-query-service/pkg/metrics"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(16, zerolog.Nop(), metrics.NewCollector("test"))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return s
}

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		partsA    []string
		partsB    []string
		wantEqual bool
	}{
		{
			name:      "identical parts collide",
			namespace: "query",
			partsA:    []string{"SELECT 1"},
			partsB:    []string{"SELECT 1"},
			wantEqual: true,
		},
		{
			name:      "different parts diverge",
			namespace: "query",
			partsA:    []string{"SELECT 1"},
			partsB:    []string{"SELECT 2"},
			wantEqual: false,
		},
		{
			name:      "field boundaries matter",
			namespace: "summary",
			partsA:    []string{"ab", "c"},
			partsB:    []string{"a", "bc"},
			wantEqual: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Fingerprint(tt.namespace, tt.partsA...)
			b := Fingerprint(tt.namespace, tt.partsB...)
			if (a == b) != tt.wantEqual {
				t.Errorf("Fingerprint equality = %v, want %v (%q vs %q)", a == b, tt.wantEqual, a, b)
			}
		})
	}
}

func TestFingerprint_NamespaceStaysReadable(t *testing.T) {
	fp := Fingerprint("trend", "320", "TG")
	if fp[:6] != "trend:" {
		t.Errorf("fingerprint %q does not start with its namespace", fp)
	}
}

func TestService_GetOrCompute_CachesResult(t *testing.T) {
	s := newTestService(t)
	calls := 0

	compute := func(ctx context.Context) (interface{}, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		got, err := s.GetOrCompute(context.Background(), "query:abc", time.Minute, compute)
		if err != nil {
			t.Fatalf("GetOrCompute failed: %v", err)
		}
		if got != 42 {
			t.Errorf("payload = %v, want 42", got)
		}
	}

	if calls != 1 {
		t.Errorf("compute ran %d times, want 1", calls)
	}
}

func TestService_GetOrCompute_ExpiresByTTL(t *testing.T) {
	s := newTestService(t)

	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	calls := 0
	compute := func(ctx context.Context) (interface{}, error) {
		calls++
		return calls, nil
	}

	if _, err := s.GetOrCompute(context.Background(), "summary:x", 5*time.Minute, compute); err != nil {
		t.Fatalf("first GetOrCompute failed: %v", err)
	}

	// Within TTL: still served from cache
	current = current.Add(4 * time.Minute)
	got, err := s.GetOrCompute(context.Background(), "summary:x", 5*time.Minute, compute)
	if err != nil {
		t.Fatalf("second GetOrCompute failed: %v", err)
	}
	if got != 1 || calls != 1 {
		t.Errorf("within TTL: payload = %v, calls = %d, want 1 and 1", got, calls)
	}

	// Past TTL: entry is dropped and recomputed
	current = current.Add(2 * time.Minute)
	got, err = s.GetOrCompute(context.Background(), "summary:x", 5*time.Minute, compute)
	if err != nil {
		t.Fatalf("third GetOrCompute failed: %v", err)
	}
	if got != 2 || calls != 2 {
		t.Errorf("past TTL: payload = %v, calls = %d, want 2 and 2", got, calls)
	}
}

func TestService_GetOrCompute_SingleFlight(t *testing.T) {
	s := newTestService(t)

	var computations int32
	started := make(chan struct{})
	release := make(chan struct{})

	compute := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&computations, 1)
		close(started)
		<-release
		return "shared", nil
	}

	const waiters = 8
	var wg sync.WaitGroup
	results := make([]interface{}, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.GetOrCompute(context.Background(), "query:flight", time.Minute, compute)
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&computations); n != 1 {
		t.Errorf("compute ran %d times, want 1", n)
	}
	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Errorf("waiter %d failed: %v", i, errs[i])
		}
		if results[i] != "shared" {
			t.Errorf("waiter %d payload = %v, want %q", i, results[i], "shared")
		}
	}
}

func TestService_GetOrCompute_FailuresNotCached(t *testing.T) {
	s := newTestService(t)

	calls := 0
	boom := errors.New("storage exploded")
	compute := func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return "ok", nil
	}

	if _, err := s.GetOrCompute(context.Background(), "query:fail", time.Minute, compute); !errors.Is(err, boom) {
		t.Fatalf("first call error = %v, want %v", err, boom)
	}

	got, err := s.GetOrCompute(context.Background(), "query:fail", time.Minute, compute)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if got != "ok" || calls != 2 {
		t.Errorf("payload = %v, calls = %d; failure was cached", got, calls)
	}
}

func TestService_GetOrCompute_SurvivesCallerCancellation(t *testing.T) {
	s := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := s.GetOrCompute(ctx, "query:cancelled", time.Minute, func(ctx context.Context) (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return "computed", nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if got != "computed" {
		t.Errorf("payload = %v, want %q", got, "computed")
	}
}

func TestService_Invalidate(t *testing.T) {
	s := newTestService(t)

	seed := func(fp string) {
		if _, err := s.GetOrCompute(context.Background(), fp, time.Minute, func(ctx context.Context) (interface{}, error) {
			return fp, nil
		}); err != nil {
			t.Fatalf("seeding %q failed: %v", fp, err)
		}
	}

	seed("summary:a")
	seed("summary:b")
	seed("trend:c")

	if !s.Invalidate("summary:a") {
		t.Error("Invalidate should report an existing entry as removed")
	}
	if s.Invalidate("summary:a") {
		t.Error("Invalidate should report a missing entry as not removed")
	}

	if removed := s.InvalidatePrefix("summary:"); removed != 1 {
		t.Errorf("InvalidatePrefix removed %d entries, want 1", removed)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d after invalidation, want 1", s.Len())
	}

	// The untouched namespace still answers from cache
	got, err := s.GetOrCompute(context.Background(), "trend:c", time.Minute, func(ctx context.Context) (interface{}, error) {
		return "recomputed", nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if got != "trend:c" {
		t.Errorf("payload = %v, want original cached value", got)
	}
}

func TestService_EvictionKeepsBound(t *testing.T) {
	s, err := NewService(2, zerolog.Nop(), metrics.NewCollector("test"))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	for _, fp := range []string{"query:1", "query:2", "query:3"} {
		fp := fp
		if _, err := s.GetOrCompute(context.Background(), fp, time.Minute, func(ctx context.Context) (interface{}, error) {
			return fp, nil
		}); err != nil {
			t.Fatalf("seeding %q failed: %v", fp, err)
		}
	}

	if s.Len() != 2 {
		t.Errorf("Len = %d, want the configured bound of 2", s.Len())
	}
}
