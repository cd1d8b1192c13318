package gimbal

import "time"

// RequestScope controls how eagerly the value cache keeps an address
// refreshed (spec §4.4 stage 1).
type RequestScope int

const (
	ScopeOnce RequestScope = iota
	ScopeContinuous
	ScopeInfrequent
)

// stalenessThreshold returns how old a cached value may be before it's
// considered stale for this scope (spec §4.4: "Continuous: staleness
// threshold ≈ 250 ms. Infrequent: re-request every few seconds;
// staleness threshold proportionally larger").
func (s RequestScope) stalenessThreshold() time.Duration {
	switch s {
	case ScopeContinuous:
		return 250 * time.Millisecond
	case ScopeInfrequent:
		return 5 * time.Second
	default:
		return 250 * time.Millisecond
	}
}

// valueState tracks one cached address: what was last requested of it,
// and when/what it last reported (spec §3 "2-D table of
// GimbalValueState").
type valueState struct {
	scope         RequestScope
	lastRequested time.Time
	haveUpdate    bool
	lastUpdate    time.Time
	value         int16
}

// ValueCache is the gimbal controller's staleness-gated read cache,
// indexed by (value index, axis target).
type ValueCache struct {
	states map[[2]int]*valueState
}

func NewValueCache() *ValueCache {
	return &ValueCache{states: map[[2]int]*valueState{}}
}

func (c *ValueCache) entry(index, target int) *valueState {
	key := [2]int{index, target}
	s, ok := c.states[key]
	if !ok {
		s = &valueState{}
		c.states[key] = s
	}
	return s
}

// Request marks an address as wanted under the given scope. Requesting
// is independent of whether a value scheduler downstream has actually
// sent the read yet.
func (c *ValueCache) Request(index, target int, scope RequestScope, now time.Time) {
	s := c.entry(index, target)
	s.scope = scope
	s.lastRequested = now
}

// Update records a freshly received value (the controller calls this for
// each gimbal value it receives from a GET_VALUE response).
func (c *ValueCache) Update(index, target int, value int16, now time.Time) {
	s := c.entry(index, target)
	s.haveUpdate = true
	s.lastUpdate = now
	s.value = value
}

// Read returns the cached value and whether it is fresh enough to use
// (spec §4.4: "Read angles = encoder_sub(raw_angles, center_cal)... Stage
// 1 — ... staleness flag").
func (c *ValueCache) Read(index, target int, now time.Time) (value int16, stale bool) {
	s := c.entry(index, target)
	if !s.haveUpdate {
		return 0, true
	}
	age := now.Sub(s.lastUpdate)
	return s.value, age > s.scope.stalenessThreshold()
}

// EncoderSub is modular subtraction on a 4096-count circle, returning a
// signed value in (-2048, 2048] (spec §4.4 stage 1).
func EncoderSub(a, b int32) int32 {
	const counts = 4096
	d := (a - b) % counts
	if d <= -counts/2 {
		d += counts
	} else if d > counts/2 {
		d -= counts
	}
	return d
}
