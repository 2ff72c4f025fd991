package application

import (
	"time"

	"github.com/ericfisherdev/keyquota/internal/domain/port/driven"
)

// DefaultCooldownSeconds is the global pause enforced between usage checks.
const DefaultCooldownSeconds = 10

// cooldownTimer owns the single repeating countdown tick. restart always
// cancels the previous schedule first, and each schedule carries a generation
// so a tick that was already queued behind a restart is ignored.
type cooldownTimer struct {
	scheduler driven.Scheduler
	cancel    func()
	gen       uint64
}

// restart cancels any pending countdown and schedules fn every second. fn
// receives the generation it was scheduled under.
func (t *cooldownTimer) restart(fn func(gen uint64)) {
	t.stop()
	t.gen++
	gen := t.gen
	t.cancel = t.scheduler.Every(time.Second, func() { fn(gen) })
}

func (t *cooldownTimer) current(gen uint64) bool {
	return t.cancel != nil && t.gen == gen
}

func (t *cooldownTimer) stop() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}
