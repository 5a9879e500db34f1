// Package ratelimit implements the two adaptive backoff designs spec.md
// §4.6 describes: AcademicAPIRateLimiter (self-recovering) and the
// TabPool/EngineRateLimiter vocabulary shared with pkg/browser
// (manual-recovery only). Both share the BackoffState bookkeeping here.
package ratelimit

import "time"

// BackoffState is the per-provider (or per-pool) bookkeeping record
// spec.md §3 names explicitly.
type BackoffState struct {
	EffectiveLimit      int
	ConfiguredLimit     int
	LastFailure         time.Time
	LastRecoveryAttempt time.Time
	BackoffActive       bool
	ConsecutiveFailures int
}

// newBackoffState starts a provider at full configured capacity.
func newBackoffState(configuredLimit int) *BackoffState {
	return &BackoffState{
		EffectiveLimit:  configuredLimit,
		ConfiguredLimit: configuredLimit,
	}
}

// NewBackoffState is the exported constructor pkg/browser uses directly,
// since its manual-recovery-only policy doesn't otherwise need this package.
func NewBackoffState(configuredLimit int) *BackoffState {
	return newBackoffState(configuredLimit)
}

// StepDecrease is the exported form of stepDecrease for callers outside
// this package (pkg/browser's CAPTCHA/403 handlers).
func (b *BackoffState) StepDecrease(step int, now time.Time) {
	b.stepDecrease(step, now)
}

// stepDecrease decreases EffectiveLimit by step, floored at 1, and marks
// backoff active — shared by report_429, report_captcha, and report_403
// (spec.md §4.6). The counter always increments, even at the floor, "no
// silent masking".
func (b *BackoffState) stepDecrease(step int, now time.Time) {
	b.ConsecutiveFailures++
	b.LastFailure = now
	b.BackoffActive = true

	next := b.EffectiveLimit - step
	if next < 1 {
		next = 1
	}
	b.EffectiveLimit = next
}
