package driven

import "time"

// Scheduler runs fn every interval until the returned cancel func is called.
// cancel is idempotent and safe to call from inside fn.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (cancel func())
}
