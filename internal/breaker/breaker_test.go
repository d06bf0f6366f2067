package breaker

import (
	"testing"

	"github.com/forgekit/forge/internal/domain"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := New(3)
	if !b.IsClosed() {
		t.Error("new breaker should be closed")
	}
	if b.IsOpen() || b.IsHalfOpen() {
		t.Error("new breaker should be neither open nor half-open")
	}
}

func TestBreaker_ProgressKeepsClosed(t *testing.T) {
	b := New(3)

	if got := b.RecordProgress(); got != Continue {
		t.Errorf("RecordProgress = %v, want Continue", got)
	}
	if !b.IsClosed() {
		t.Error("breaker should stay closed after progress")
	}
	if b.ConsecutiveNoProgress() != 0 {
		t.Errorf("counter = %d, want 0", b.ConsecutiveNoProgress())
	}
}

func TestBreaker_FirstNoProgressHalfOpens(t *testing.T) {
	b := New(3)

	if got := b.RecordNoProgress(); got != Continue {
		t.Errorf("RecordNoProgress = %v, want Continue", got)
	}
	if !b.IsHalfOpen() {
		t.Error("breaker should be half-open after first no-progress")
	}
	if b.ConsecutiveNoProgress() != 1 {
		t.Errorf("counter = %d, want 1", b.ConsecutiveNoProgress())
	}
}

func TestBreaker_OpensAtLimit(t *testing.T) {
	b := New(3)

	b.RecordNoProgress()
	b.RecordNoProgress()
	if got := b.RecordNoProgress(); got != OpenCircuit {
		t.Errorf("third RecordNoProgress = %v, want OpenCircuit", got)
	}
	if !b.IsOpen() {
		t.Error("breaker should be open at the limit")
	}
	if b.ConsecutiveNoProgress() != 3 {
		t.Errorf("counter = %d, want 3", b.ConsecutiveNoProgress())
	}
}

func TestBreaker_ExactlyNIterationsOpen(t *testing.T) {
	for _, limit := range []int{1, 2, 5, 8} {
		b := New(limit)
		for i := 0; i < limit-1; i++ {
			if got := b.RecordNoProgress(); got != Continue {
				t.Fatalf("limit %d: iteration %d tripped early", limit, i+1)
			}
		}
		if got := b.RecordNoProgress(); got != OpenCircuit {
			t.Errorf("limit %d: iteration %d = %v, want OpenCircuit", limit, limit, got)
		}
	}
}

func TestBreaker_ProgressResetsCounter(t *testing.T) {
	b := New(2)

	b.RecordNoProgress()
	b.RecordProgress()
	if got := b.RecordNoProgress(); got != Continue {
		t.Errorf("no-progress after reset = %v, want Continue", got)
	}
	if !b.IsHalfOpen() {
		t.Error("breaker should be half-open, not open")
	}
	if b.ConsecutiveNoProgress() != 1 {
		t.Errorf("counter = %d, want 1", b.ConsecutiveNoProgress())
	}
}

func TestBreaker_LimitOneOpensImmediately(t *testing.T) {
	b := New(1)

	if got := b.RecordNoProgress(); got != OpenCircuit {
		t.Errorf("RecordNoProgress = %v, want OpenCircuit", got)
	}
	if !b.IsOpen() {
		t.Error("breaker should be open")
	}
}

func TestBreaker_ResetClearsState(t *testing.T) {
	b := New(3)
	b.RecordNoProgress()
	b.RecordNoProgress()
	b.RecordNoProgress()

	b.Reset()

	if !b.IsClosed() {
		t.Error("breaker should be closed after reset")
	}
	if b.ConsecutiveNoProgress() != 0 {
		t.Errorf("counter = %d, want 0", b.ConsecutiveNoProgress())
	}
}

func TestBreaker_FromStateRestores(t *testing.T) {
	b := FromState(domain.CircuitBreakerState{
		State:                 domain.CircuitHalfOpen,
		ConsecutiveNoProgress: 2,
	}, 5)

	if !b.IsHalfOpen() {
		t.Error("restored breaker should be half-open")
	}
	if b.ConsecutiveNoProgress() != 2 {
		t.Errorf("counter = %d, want 2", b.ConsecutiveNoProgress())
	}
}
