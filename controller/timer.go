package controller

import "time"

// TickHz and VideoHz are the controller's two fixed timer rates (spec §2,
// §4.1). The scheduler is polled separately at 1 Hz.
const (
	TickHz  = 250
	VideoHz = 60
)

// intervalTimer is a level-triggered poll: Poll() fires at most once per
// elapsed period, even if called much less often than that period would
// otherwise require — it never "catches up" with a burst (grounded on
// original_source/src/controller/timer.rs's IntervalTimer).
type intervalTimer struct {
	period time.Duration
	next   time.Time
}

func newIntervalTimer(period time.Duration, now time.Time) *intervalTimer {
	return &intervalTimer{period: period, next: now.Add(period)}
}

// poll reports whether the period has elapsed since the last fire, and
// if so advances the reference point to now (not to next+period), so a
// long stall doesn't cause a burst of catch-up fires afterward.
func (t *intervalTimer) poll(now time.Time) bool {
	if now.Before(t.next) {
		return false
	}
	t.next = now.Add(t.period)
	return true
}

// timers bundles the controller's tick and video-frame interval timers
// (original_source/src/controller/timer.rs's ControllerTimers).
type timers struct {
	tick       *intervalTimer
	videoFrame *intervalTimer
}

func newTimers(now time.Time) *timers {
	return &timers{
		tick:       newIntervalTimer(time.Second/TickHz, now),
		videoFrame: newIntervalTimer(time.Second/VideoHz, now),
	}
}

// crossedDailyInstant is a wraparound-aware time-of-day window: matches
// when "now" has just crossed HourUTC:MinuteUTC, including across
// midnight (original_source/src/controller/timer.rs's
// DailyPollInterval).
func crossedDailyInstant(hour, minute int, lastCheck, now time.Time) bool {
	scheduled := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())

	// If "now" is before the scheduled time today, the relevant
	// instant to compare against is yesterday's occurrence.
	if now.Before(scheduled) {
		scheduled = scheduled.AddDate(0, 0, -1)
	}

	return lastCheck.Before(scheduled) && !now.Before(scheduled)
}

// configScheduler polls the lighting schedule table at 1 Hz, applying a
// named scheme when local wall-clock time crosses a scheduled instant
// (spec §4.1 "Scheduler", SPEC_FULL.md's scheduled-lighting-scheme
// supplement).
type configScheduler struct {
	poll      *intervalTimer
	lastCheck time.Time
}

func newConfigScheduler(now time.Time) *configScheduler {
	return &configScheduler{
		poll:      newIntervalTimer(time.Second, now),
		lastCheck: now,
	}
}

// due returns the schedule entries, among those given, whose instant has
// just been crossed, and advances the internal "last checked" reference.
// Returns nil if the 1 Hz poll interval hasn't elapsed.
func (s *configScheduler) due(now time.Time, entries []scheduleEntry) []scheduleEntry {
	if !s.poll.poll(now) {
		return nil
	}
	var due []scheduleEntry
	for _, e := range entries {
		if crossedDailyInstant(e.hour, e.minute, s.lastCheck, now) {
			due = append(due, e)
		}
	}
	s.lastCheck = now
	return due
}

type scheduleEntry struct {
	hour, minute int
	scheme       string
}
