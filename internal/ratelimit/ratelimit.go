// Package ratelimit enforces an hourly engine-call budget persisted under the
// runtime directory, so the budget survives restarts and is shared across
// separate invocations of the tool.
package ratelimit

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const resetIntervalSecs = 3600

const (
	callCountFile = ".call_count"
	lastResetFile = ".last_reset"
)

// Limiter admits or rejects calls against a per-hour budget
type Limiter struct {
	maxCallsPerHour int
}

// Result is the outcome of one admission check
type Result struct {
	Allowed      bool
	CurrentCount int
	Remaining    int
}

// State is the persisted limiter state
type State struct {
	Count          int
	LastResetEpoch int64
}

// New creates a limiter. A max of 0 denies every call; configuration rejects
// that value before a limiter is ever built.
func New(maxCallsPerHour int) *Limiter {
	return &Limiter{maxCallsPerHour: maxCallsPerHour}
}

// CheckAndIncrement loads the persisted state, resets the window if an hour
// has passed, then either rejects (persisting the unchanged state) or
// increments and persists.
func (l *Limiter) CheckAndIncrement(runtimeDir string, nowEpoch int64) (Result, error) {
	state := l.loadState(runtimeDir)
	count, lastReset := maybeReset(state, nowEpoch)

	if count >= l.maxCallsPerHour {
		if err := l.persistState(runtimeDir, count, lastReset); err != nil {
			return Result{}, err
		}
		return Result{Allowed: false, CurrentCount: count, Remaining: 0}, nil
	}

	newCount := count + 1
	if err := l.persistState(runtimeDir, newCount, lastReset); err != nil {
		return Result{}, err
	}

	remaining := l.maxCallsPerHour - newCount
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, CurrentCount: newCount, Remaining: remaining}, nil
}

// GetState returns the persisted state without modifying it
func (l *Limiter) GetState(runtimeDir string) State {
	return l.loadState(runtimeDir)
}

// Reset zeroes the counter and stamps a new window start
func (l *Limiter) Reset(runtimeDir string, nowEpoch int64) error {
	return l.persistState(runtimeDir, 0, nowEpoch)
}

// loadState tolerates missing or malformed files by treating them as zero;
// the monitor may read these files concurrently and must never see a failure.
func (l *Limiter) loadState(runtimeDir string) State {
	var state State
	if raw, err := os.ReadFile(filepath.Join(runtimeDir, callCountFile)); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil {
			state.Count = v
		}
	}
	if raw, err := os.ReadFile(filepath.Join(runtimeDir, lastResetFile)); err == nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64); err == nil {
			state.LastResetEpoch = v
		}
	}
	return state
}

func maybeReset(state State, nowEpoch int64) (int, int64) {
	if nowEpoch-state.LastResetEpoch >= resetIntervalSecs {
		return 0, nowEpoch
	}
	return state.Count, state.LastResetEpoch
}

func (l *Limiter) persistState(runtimeDir string, count int, lastReset int64) error {
	countPath := filepath.Join(runtimeDir, callCountFile)
	if err := os.WriteFile(countPath, []byte(strconv.Itoa(count)), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", countPath, err)
	}
	resetPath := filepath.Join(runtimeDir, lastResetFile)
	if err := os.WriteFile(resetPath, []byte(strconv.FormatInt(lastReset, 10)), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", resetPath, err)
	}
	return nil
}
