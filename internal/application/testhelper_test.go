package application

import (
	"context"
	"sync"
	"time"

	"github.com/ericfisherdev/keyquota/internal/domain/model"
)

// staticProbe reports a fixed environment.
type staticProbe model.Environment

func (p staticProbe) Environment() model.Environment {
	return model.Environment(p)
}

var testEnvironment = staticProbe{
	UserAgent:      "keyquota/test (linux; amd64) go1.25",
	Locale:         "en-US",
	ColorDepth:     "24",
	Resolution:     "120x40",
	TimezoneOffset: "-60",
	Processors:     "8",
}

// memoryKV is an in-memory driven.KVStore.
type memoryKV struct {
	mu      sync.Mutex
	data    map[string]string
	setErr  error
	getErr  error
	sets    int
	deletes int
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: map[string]string{}}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.data[key] = value
	return nil
}

func (m *memoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, key)
	return nil
}

func (m *memoryKV) value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// fakeRelay returns a canned usage or error and counts calls. When gate is
// non-nil each call blocks until it receives.
type fakeRelay struct {
	mu      sync.Mutex
	calls   int
	secrets []string
	usage   model.Usage
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeRelay) Init(context.Context) error { return nil }

func (f *fakeRelay) FetchUsage(_ context.Context, secret string) (model.Usage, error) {
	f.mu.Lock()
	f.calls++
	f.secrets = append(f.secrets, secret)
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return f.usage, f.err
}

func (f *fakeRelay) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// manualScheduler runs scheduled callbacks only when Fire is called.
type manualScheduler struct {
	mu        sync.Mutex
	next      int
	fns       map[int]func()
	scheduled int
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{fns: map[int]func(){}}
}

func (m *manualScheduler) Every(_ time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := m.next
	m.fns[id] = fn
	m.scheduled++
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.fns, id)
	}
}

// Fire runs every active callback once.
func (m *manualScheduler) Fire() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.fns))
	for _, fn := range m.fns {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (m *manualScheduler) active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fns)
}
