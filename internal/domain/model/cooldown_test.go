package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldown_TicksDownToIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := CoolingFor(3, now)

	assert.True(t, c.IsCooling())
	assert.Equal(t, now.Add(3*time.Second), c.Deadline)
	assert.Equal(t, "cooling(3s)", c.String())

	c = c.Tick()
	assert.Equal(t, 2, c.Remaining)
	c = c.Tick()
	assert.Equal(t, 1, c.Remaining)
	c = c.Tick()

	assert.False(t, c.IsCooling())
	assert.Equal(t, IdleCooldown(), c)
	assert.Equal(t, "idle", c.String())
}

func TestCooldown_TickOnIdleIsNoop(t *testing.T) {
	assert.Equal(t, IdleCooldown(), IdleCooldown().Tick())
}

func TestCoolingFor_NonPositiveIsIdle(t *testing.T) {
	assert.False(t, CoolingFor(0, time.Now()).IsCooling())
}
