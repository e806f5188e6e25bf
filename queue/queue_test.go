package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/svetoslav0421/nocode-claude-ai/job"
)

func TestManager_UnconfiguredType(t *testing.T) {
	m := NewManager()
	for range 100 {
		if !m.Acquire(job.TypeGeneration) {
			t.Fatal("Acquire should always succeed for an unconfigured type")
		}
	}
	m.Release(job.TypeGeneration)
	if m.ActiveCount(job.TypeGeneration) != 0 {
		t.Fatal("unconfigured types are not tracked")
	}
}

func TestManager_MaxConcurrency(t *testing.T) {
	m := NewManager(Limit{Type: job.TypeValidation, MaxConcurrency: 2})

	if !m.Acquire(job.TypeValidation) || !m.Acquire(job.TypeValidation) {
		t.Fatal("first two Acquire calls should succeed")
	}
	if m.Acquire(job.TypeValidation) {
		t.Fatal("third Acquire should fail (max concurrency 2)")
	}
	if !m.Acquire(job.TypeTests) {
		t.Fatal("other types are not affected")
	}

	m.Release(job.TypeValidation)
	if !m.Acquire(job.TypeValidation) {
		t.Fatal("Acquire should succeed after Release")
	}
	if got := m.ActiveCount(job.TypeValidation); got != 2 {
		t.Fatalf("active = %d, want 2", got)
	}
}

func TestManager_RateLimit(t *testing.T) {
	m := NewManager(Limit{Type: job.TypeGeneration, RateLimit: 10, RateBurst: 2})

	allowed := 0
	for range 5 {
		if m.Acquire(job.TypeGeneration) {
			allowed++
			m.Release(job.TypeGeneration)
		}
	}
	if allowed != 2 {
		t.Fatalf("allowed %d immediately, want burst of 2", allowed)
	}

	time.Sleep(150 * time.Millisecond)
	if !m.Acquire(job.TypeGeneration) {
		t.Fatal("token should have refilled")
	}
}

func TestManager_DeniedByConcurrencyKeepsToken(t *testing.T) {
	m := NewManager(Limit{Type: job.TypeGeneration, MaxConcurrency: 1, RateLimit: 0.001, RateBurst: 1})

	if !m.Acquire(job.TypeGeneration) {
		t.Fatal("first Acquire should succeed")
	}
	if m.Acquire(job.TypeGeneration) {
		t.Fatal("second Acquire should be denied by concurrency")
	}
	m.SetLimit(Limit{Type: job.TypeGeneration, MaxConcurrency: 2, RateLimit: 0.001, RateBurst: 1})
	if got := m.ActiveCount(job.TypeGeneration); got != 1 {
		t.Fatalf("SetLimit lost active count: %d", got)
	}
	if !m.Acquire(job.TypeGeneration) {
		t.Fatal("fresh limiter should grant its burst token")
	}
}

func TestManager_ReleaseUnderflow(t *testing.T) {
	m := NewManager(Limit{Type: job.TypeTests, MaxConcurrency: 1})
	m.Release(job.TypeTests)
	m.Release(job.TypeTests)
	if got := m.ActiveCount(job.TypeTests); got != 0 {
		t.Fatalf("active = %d after spurious releases", got)
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	const limit = 3
	m := NewManager(Limit{Type: job.TypeExplanation, MaxConcurrency: limit})

	var (
		wg      sync.WaitGroup
		running atomic.Int32
		peak    atomic.Int32
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !m.Acquire(job.TypeExplanation) {
				return
			}
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
			m.Release(job.TypeExplanation)
		}()
	}
	wg.Wait()

	if peak.Load() > limit {
		t.Fatalf("peak concurrency %d exceeds limit %d", peak.Load(), limit)
	}
	if m.ActiveCount(job.TypeExplanation) != 0 {
		t.Fatalf("active = %d after all releases", m.ActiveCount(job.TypeExplanation))
	}
}
