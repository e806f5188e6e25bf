package backoff_test

import (
	"math"
	"testing"
	"time"

	"github.com/svetoslav0421/nocode-claude-ai/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)
	for _, attempt := range []int{5, 10, 100, 10000} {
		if got := e.Delay(attempt); got != 10*time.Second {
			t.Errorf("Delay(%d) = %v, want cap", attempt, got)
		}
	}
}

func TestExponential_NoMaxSaturates(t *testing.T) {
	e := backoff.NewExponential(time.Second, 0)
	if got := e.Delay(200); got != time.Duration(math.MaxInt64) {
		t.Errorf("Delay(200) = %v, want %v", got, time.Duration(math.MaxInt64))
	}
}

func TestNoMaxDelaysStayPositiveAndMonotonic(t *testing.T) {
	strategies := map[string]backoff.Strategy{
		"exponential": backoff.NewExponential(2*time.Second, 0),
		"jitter":      backoff.NewExponentialWithJitter(2*time.Second, 0),
	}
	for name, s := range strategies {
		t.Run(name, func(t *testing.T) {
			var prev time.Duration
			for attempt := 1; attempt <= 1100; attempt++ {
				got := s.Delay(attempt)
				if got <= 0 {
					t.Fatalf("Delay(%d) = %v, want > 0", attempt, got)
				}
				if got < prev/2 {
					t.Fatalf("Delay(%d) = %v shrank below half of previous %v", attempt, got, prev)
				}
				prev = got
			}
			if got := s.Delay(1100); got != time.Duration(math.MaxInt64) {
				t.Fatalf("Delay(1100) = %v, want saturated", got)
			}
		})
	}
}

func TestExponentialWithJitter_WithinBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, time.Minute)

	for attempt := 1; attempt <= 5; attempt++ {
		base := time.Second << (attempt - 1)
		for range 100 {
			got := e.Delay(attempt)
			if got < base/2 || got > base {
				t.Fatalf("Delay(%d) = %v, want in [%v, %v]", attempt, got, base/2, base)
			}
		}
	}
}

func TestExponentialWithJitter_NonDecreasing(t *testing.T) {
	e := backoff.NewExponentialWithJitter(100*time.Millisecond, 3*time.Second)

	for trial := range 200 {
		prev := time.Duration(0)
		for attempt := 1; attempt <= 12; attempt++ {
			got := e.Delay(attempt)
			if got <= 0 {
				t.Fatalf("trial %d: Delay(%d) = %v, want > 0", trial, attempt, got)
			}
			if got < prev {
				t.Fatalf("trial %d: Delay(%d) = %v < previous %v", trial, attempt, got, prev)
			}
			prev = got
		}
	}
}

func TestExponentialWithJitter_CapIsExact(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 5*time.Second)
	if got := e.Delay(20); got != 5*time.Second {
		t.Errorf("Delay(20) = %v, want exactly Max", got)
	}
}

func TestFunc(t *testing.T) {
	var s backoff.Strategy = backoff.Func(func(attempt int) time.Duration {
		return time.Duration(attempt) * time.Millisecond
	})
	if got := s.Delay(3); got != 3*time.Millisecond {
		t.Errorf("Delay(3) = %v", got)
	}
}

func TestDefaultStrategy(t *testing.T) {
	s := backoff.DefaultStrategy()
	if s == nil {
		t.Fatal("DefaultStrategy returned nil")
	}
	if got := s.Delay(1); got <= 0 {
		t.Errorf("Delay(1) = %v, want > 0", got)
	}
}
