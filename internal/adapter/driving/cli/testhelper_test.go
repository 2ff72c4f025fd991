package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ericfisherdev/keyquota/internal/config"
	"github.com/ericfisherdev/keyquota/internal/domain/model"
)

const (
	secretA = "0f1e2d3c-aaaa-bbbb-cccc-123456789abc:fx"
	secretB = "ffffffff-1111-2222-3333-444444444444"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type stubRelay struct {
	mu        sync.Mutex
	initCalls int
	calls     int
	usage     model.Usage
	err       error
}

func (s *stubRelay) Init(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initCalls++
	return nil
}

func (s *stubRelay) FetchUsage(context.Context, string) (model.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.usage, s.err
}

type frozenScheduler struct{}

func (frozenScheduler) Every(time.Duration, func()) func() { return func() {} }

type fixedProbe struct{}

func (fixedProbe) Environment() model.Environment {
	return model.Environment{UserAgent: "test", Locale: "en-US", Processors: "4"}
}

// cliFixture swaps the core wiring for in-memory adapters. The store outlives
// individual commands so state carries across runs like the SQLite file does.
type cliFixture struct {
	store *memoryStore
	relay *stubRelay
	opens int
}

var configEnvKeys = []string{
	"KEYQUOTA_CONFIG_FILE",
	"KEYQUOTA_LISTEN_ADDR",
	"KEYQUOTA_DB_PATH",
	"KEYQUOTA_RELAY_URL",
	"KEYQUOTA_UPSTREAM_URL",
	"KEYQUOTA_UPSTREAM_TIMEOUT",
	"KEYQUOTA_UPSTREAM_RPS",
	"KEYQUOTA_COOLDOWN",
	"KEYQUOTA_HISTORY_LIMIT",
}

func setupCLI(t *testing.T) *cliFixture {
	t.Helper()

	for _, key := range configEnvKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}

	f := &cliFixture{
		store: &memoryStore{data: map[string]string{}},
		relay: &stubRelay{usage: model.Usage{CharacterCount: 460000, CharacterLimit: 500000}},
	}

	origOpen := openCoreFunc
	origLogger := slog.Default()
	openCoreFunc = func(_ context.Context, cfg *config.Config, logger *slog.Logger) (*core, error) {
		f.opens++
		return newCore(cfg, f.store, fixedProbe{}, f.relay, frozenScheduler{}, logger), nil
	}
	t.Cleanup(func() {
		openCoreFunc = origOpen
		slog.SetDefault(origLogger)
	})

	return f
}

// run executes the root command and returns stdout and stderr.
func (f *cliFixture) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	return execute(context.Background(), stdin, args...)
}

func execute(ctx context.Context, stdin string, args ...string) (string, string, error) {
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()

	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// resetFlags restores every flag to its default so package-level flag
// variables do not leak between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		_ = fl.Value.Set(fl.DefValue)
		fl.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
