package ratelimit

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLimiter_AllowsFirstCall(t *testing.T) {
	dir := t.TempDir()
	l := New(100)

	result, err := l.CheckAndIncrement(dir, 1000)
	if err != nil {
		t.Fatal(err)
	}

	if !result.Allowed {
		t.Error("first call should be allowed")
	}
	if result.CurrentCount != 1 {
		t.Errorf("CurrentCount = %d, want 1", result.CurrentCount)
	}
	if result.Remaining != 99 {
		t.Errorf("Remaining = %d, want 99", result.Remaining)
	}
}

func TestLimiter_BlocksAtLimit(t *testing.T) {
	dir := t.TempDir()
	l := New(3)

	for i, now := range []int64{1000, 1001, 1002} {
		result, err := l.CheckAndIncrement(dir, now)
		if err != nil {
			t.Fatal(err)
		}
		if !result.Allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
		if result.CurrentCount != i+1 {
			t.Errorf("call %d: CurrentCount = %d, want %d", i+1, result.CurrentCount, i+1)
		}
	}

	result, err := l.CheckAndIncrement(dir, 1003)
	if err != nil {
		t.Fatal(err)
	}
	if result.Allowed {
		t.Error("fourth call should be rejected")
	}
	if result.CurrentCount != 3 {
		t.Errorf("CurrentCount = %d, want 3", result.CurrentCount)
	}
	if result.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", result.Remaining)
	}
}

func TestLimiter_ResetsAfterOneHour(t *testing.T) {
	dir := t.TempDir()
	l := New(3)

	l.CheckAndIncrement(dir, 1000)
	l.CheckAndIncrement(dir, 1001)
	l.CheckAndIncrement(dir, 1002)
	blocked, err := l.CheckAndIncrement(dir, 1003)
	if err != nil {
		t.Fatal(err)
	}
	if blocked.Allowed {
		t.Error("call within the window should be rejected")
	}

	afterReset, err := l.CheckAndIncrement(dir, 4600)
	if err != nil {
		t.Fatal(err)
	}
	if !afterReset.Allowed {
		t.Error("call at the window boundary should be allowed")
	}
	if afterReset.CurrentCount != 1 {
		t.Errorf("CurrentCount = %d, want 1", afterReset.CurrentCount)
	}
}

func TestLimiter_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	first := New(5)
	first.CheckAndIncrement(dir, 1000)
	first.CheckAndIncrement(dir, 1001)

	second := New(5)
	state := second.GetState(dir)
	if state.Count != 2 {
		t.Errorf("Count = %d, want 2", state.Count)
	}

	result, err := second.CheckAndIncrement(dir, 1002)
	if err != nil {
		t.Fatal(err)
	}
	if result.CurrentCount != 3 {
		t.Errorf("CurrentCount = %d, want 3", result.CurrentCount)
	}
}

func TestLimiter_ZeroMaxAlwaysDenies(t *testing.T) {
	dir := t.TempDir()
	l := New(0)

	result, err := l.CheckAndIncrement(dir, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if result.Allowed {
		t.Error("zero budget should deny every call")
	}
	if result.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", result.Remaining)
	}
}

func TestLimiter_RemainingNeverUnderflows(t *testing.T) {
	dir := t.TempDir()
	l := New(1)

	l.CheckAndIncrement(dir, 1000)
	result, err := l.CheckAndIncrement(dir, 1001)
	if err != nil {
		t.Fatal(err)
	}
	if result.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", result.Remaining)
	}
}

func TestLimiter_MalformedFilesTreatedAsZero(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".call_count"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	l := New(2)

	result, err := l.CheckAndIncrement(dir, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Allowed || result.CurrentCount != 1 {
		t.Errorf("got allowed=%v count=%d, want allowed=true count=1", result.Allowed, result.CurrentCount)
	}
}

func TestLimiter_ResetClearsCount(t *testing.T) {
	dir := t.TempDir()
	l := New(100)

	l.CheckAndIncrement(dir, 1000)
	l.CheckAndIncrement(dir, 1001)

	if err := l.Reset(dir, 2000); err != nil {
		t.Fatal(err)
	}

	state := l.GetState(dir)
	if state.Count != 0 {
		t.Errorf("Count = %d, want 0", state.Count)
	}
	if state.LastResetEpoch != 2000 {
		t.Errorf("LastResetEpoch = %d, want 2000", state.LastResetEpoch)
	}
}
