// Package timebase implements the kernel's TSC-deadline time source: PIT
// calibration, the monotonic tick counter, and the sleep_until primitive
// that backs sched_sleep_ns and every IPC blocking wait with a deadline.
//
// Real hardware calibrates its TSC by counting ticks across a fixed PIT
// interval and programs a TSC-deadline MSR to wake the CPU; this package
// models the same two-phase contract (Calibrate, then SleepUntil) over a
// monotonic clock source so the rest of the kernel core never has to know
// whether it is running on real silicon or under test.
package timebase

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"d7kernel/errors"
)

// maxSleep rejects sleeps beyond one year, guarding ns_to_ticks against
// overflow the way the spec requires.
const maxSleep = 365 * 24 * time.Hour

// clockNow reads a monotonic reference clock. Calibration measures how
// many of these nanoseconds elapse per simulated PIT interval; swapping
// this out is how tests run the clock under their own control.
var clockNow = func() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		return time.Now().UnixNano()
	}
	return ts.Nano()
}

// TimeBase is the calibrated tick source. Ticks are a software TSC: an
// arbitrary monotonically increasing counter whose frequency is fixed at
// Calibrate time, exactly as the real TSC is assumed invariant once the
// PIT calibration loop completes.
type TimeBase struct {
	freqHz int64
	origin int64 // clockNow() reading that corresponds to tick 0
}

// Calibrate measures tsc_freq_hz by busy-waiting a fixed PIT interval (timed
// by the Go wall clock, which stands in for the PIT and is independent of
// clockNow) and counting reference-clock ticks elapsed across it, then
// returns a ready
// TimeBase. interval models the PIT measurement window; a longer interval
// gives a steadier frequency estimate at the cost of boot latency,
// mirroring the real calibration trade-off. On this software TSC the
// reference clock is already nanosecond-resolution, so the measured
// frequency converges to 1e9 Hz; the measurement is still performed so a
// TimeBase built over a different clockNow (as tests substitute) gets a
// frequency that reflects that clock's actual resolution.
func Calibrate(interval time.Duration) *TimeBase {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	t0 := clockNow()
	pitEnd := time.Now().Add(interval)
	for time.Now().Before(pitEnd) {
		time.Sleep(time.Microsecond)
	}
	t1 := clockNow()

	elapsedTicks := t1 - t0
	freq := int64(time.Second.Nanoseconds())
	if elapsedTicks > 0 {
		freq = elapsedTicks * int64(time.Second.Nanoseconds()) / interval.Nanoseconds()
	}
	return &TimeBase{freqHz: freq, origin: t1}
}

// FreqHz returns the calibrated tick frequency, published to user space via
// the per-CPU info page.
func (t *TimeBase) FreqHz() uint64 {
	return uint64(t.freqHz)
}

// Now returns the current tick count. Ticks advance 1:1 with the
// reference monotonic clock once calibrated to nanosecond frequency,
// giving a serializing read with no wraparound within any realistic boot.
func (t *TimeBase) Now() uint64 {
	delta := clockNow() - t.origin
	if delta < 0 {
		delta = 0
	}
	return uint64(delta)
}

// NsToTicks converts a nanosecond duration to ticks using the
// split-magnitude algorithm: seconds-scale durations go through
// milliseconds, sub-second durations through microseconds, and anything
// under a millisecond is converted directly. The split keeps every
// intermediate product well inside uint64 range while not truncating sub-
// microsecond precision away for short sleeps.
func (t *TimeBase) NsToTicks(ns uint64) uint64 {
	freq := uint64(t.freqHz)
	switch {
	case ns > uint64(time.Second.Nanoseconds()):
		ms := ns / uint64(time.Millisecond.Nanoseconds())
		return ms * (freq / 1000)
	case ns >= uint64(time.Millisecond.Nanoseconds()):
		us := ns / uint64(time.Microsecond.Nanoseconds())
		return us * freq / 1_000_000
	default:
		return ns * freq / 1_000_000_000
	}
}

// TicksToNs is the inverse of NsToTicks, used to report elapsed wall time
// back to user space (e.g. in diagnostics).
func (t *TimeBase) TicksToNs(ticks uint64) uint64 {
	freq := uint64(t.freqHz)
	if freq == 0 {
		return 0
	}
	switch {
	case ticks > freq: // more than ~1s worth of ticks
		ms := ticks / (freq / 1000)
		return ms * uint64(time.Millisecond.Nanoseconds())
	case ticks >= freq/1000: // more than ~1ms worth of ticks
		us := ticks * 1_000_000 / freq
		return us * uint64(time.Microsecond.Nanoseconds())
	default:
		return ticks * 1_000_000_000 / freq
	}
}

// Deadline computes the absolute tick deadline for a relative sleep of ns
// nanoseconds from now. It rejects sleeps beyond one year as an overflow
// guard.
func (t *TimeBase) Deadline(ns uint64) (uint64, error) {
	if ns > uint64(maxSleep.Nanoseconds()) {
		return 0, errors.New("sched_sleep_ns", errors.Unknown).WithDetail("sleep exceeds one year")
	}
	return t.Now() + t.NsToTicks(ns), nil
}

// sleepQuantum bounds how long a single halt;recheck iteration waits
// before re-testing the deadline, so SleepUntil notices context
// cancellation promptly instead of oversleeping.
const sleepQuantum = 500 * time.Microsecond

// SleepUntil blocks the calling goroutine until Now() >= deadline,
// modeling "program TSC-deadline MSR, then halt; recheck with interrupts
// enabled". It is idempotent with respect to spurious wakeups: a deadline
// already in the past returns immediately, and any early return from the
// underlying wait simply loops back to recheck Now().
func (t *TimeBase) SleepUntil(ctx context.Context, deadline uint64) error {
	for {
		now := t.Now()
		if now >= deadline {
			return nil
		}
		remaining := t.TicksToNs(deadline - now)
		wait := time.Duration(remaining)
		if wait > sleepQuantum {
			wait = sleepQuantum
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
