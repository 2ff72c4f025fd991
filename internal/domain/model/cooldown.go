package model

import (
	"fmt"
	"time"
)

// CooldownPhase is the tag of the Cooldown state.
type CooldownPhase int

const (
	CooldownIdle CooldownPhase = iota
	CooldownCooling
)

// Cooldown is the global gate between usage checks: either Idle or Cooling
// with a number of whole seconds remaining.
type Cooldown struct {
	Phase     CooldownPhase
	Remaining int
	Deadline  time.Time
}

// IdleCooldown returns the Idle state.
func IdleCooldown() Cooldown {
	return Cooldown{Phase: CooldownIdle}
}

// CoolingFor returns a Cooling state of the given length starting at now.
// A non-positive length yields Idle.
func CoolingFor(seconds int, now time.Time) Cooldown {
	if seconds <= 0 {
		return IdleCooldown()
	}
	return Cooldown{
		Phase:     CooldownCooling,
		Remaining: seconds,
		Deadline:  now.Add(time.Duration(seconds) * time.Second),
	}
}

// IsCooling reports whether checks are currently rejected.
func (c Cooldown) IsCooling() bool {
	return c.Phase == CooldownCooling
}

// Tick advances the countdown by one second. Reaching zero returns Idle.
func (c Cooldown) Tick() Cooldown {
	if !c.IsCooling() {
		return c
	}
	c.Remaining--
	if c.Remaining <= 0 {
		return IdleCooldown()
	}
	return c
}

// String renders the state for logs and labels.
func (c Cooldown) String() string {
	if !c.IsCooling() {
		return "idle"
	}
	return fmt.Sprintf("cooling(%ds)", c.Remaining)
}
