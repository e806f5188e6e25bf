package queue

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// Limit defines how fast and how many jobs of one type may run in this
// process.
type Limit struct {
	// Type is the job type the limit applies to.
	Type job.Type `yaml:"type"`

	// MaxConcurrency caps simultaneous executions of Type. Zero means no
	// cap.
	MaxConcurrency int `yaml:"max_concurrency"`

	// RateLimit is the sustained number of executions per second. Zero
	// disables rate limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit is
	// set.
	RateBurst int `yaml:"rate_burst"`
}

type typeState struct {
	limit   Limit
	limiter *rate.Limiter
	active  int
}

func newTypeState(l Limit) *typeState {
	ts := &typeState{limit: l}
	if l.RateLimit > 0 {
		burst := l.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(l.RateLimit), burst)
	}
	return ts
}

// Manager gates job execution by type. It is safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	types map[job.Type]*typeState
}

// NewManager creates a Manager. Types without a Limit are never gated.
func NewManager(limits ...Limit) *Manager {
	m := &Manager{types: make(map[job.Type]*typeState, len(limits))}
	for _, l := range limits {
		m.types[l.Type] = newTypeState(l)
	}
	return m
}

// Acquire reports whether a job of type t may start now. On true the
// caller must call Release when the job finishes.
func (m *Manager) Acquire(t job.Type) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.types[t]
	if ts == nil {
		return true
	}
	if ts.limit.MaxConcurrency > 0 && ts.active >= ts.limit.MaxConcurrency {
		return false
	}
	// Concurrency first so a denied job does not burn a rate token.
	if ts.limiter != nil && !ts.limiter.Allow() {
		return false
	}
	ts.active++
	return true
}

// Release returns the slot taken by a successful Acquire.
func (m *Manager) Release(t job.Type) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ts := m.types[t]; ts != nil && ts.active > 0 {
		ts.active--
	}
}

// SetLimit installs or replaces the limit for l.Type, keeping the current
// active count.
func (m *Manager) SetLimit(l Limit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := newTypeState(l)
	if existing := m.types[l.Type]; existing != nil {
		ts.active = existing.active
	}
	m.types[l.Type] = ts
}

// ActiveCount returns the number of running jobs of type t.
func (m *Manager) ActiveCount(t job.Type) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts := m.types[t]; ts != nil {
		return ts.active
	}
	return 0
}
