// Package clock implements the Scheduler port on top of time.Ticker.
package clock

import (
	"sync"
	"time"

	"github.com/ericfisherdev/keyquota/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Scheduler = (*TickerScheduler)(nil)

// TickerScheduler runs each scheduled callback on its own goroutine driven by
// a time.Ticker. Ticks that arrive while a callback is still running are
// dropped, matching time.Ticker.
type TickerScheduler struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	next   uint64
	stops  map[uint64]chan struct{}
	closed bool
}

// NewTickerScheduler creates an empty scheduler.
func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{stops: map[uint64]chan struct{}{}}
}

// Every calls fn once per interval until the returned cancel func is called.
// cancel is idempotent and may be called from inside fn. After Close, Every
// schedules nothing and returns a no-op cancel.
func (s *TickerScheduler) Every(interval time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return func() {}
	}

	s.next++
	id := s.next
	stop := make(chan struct{})
	s.stops[id] = stop

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				// A tick can race a cancel; re-check so fn never runs after
				// cancel has returned to a caller on another goroutine.
				select {
				case <-stop:
					return
				default:
				}
				fn()
			}
		}
	}()

	return func() { s.cancel(id) }
}

func (s *TickerScheduler) cancel(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stop, ok := s.stops[id]; ok {
		close(stop)
		delete(s.stops, id)
	}
}

// Close cancels every schedule and waits for running callbacks to return.
func (s *TickerScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for id, stop := range s.stops {
		close(stop)
		delete(s.stops, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
