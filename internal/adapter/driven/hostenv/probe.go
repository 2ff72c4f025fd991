// Package hostenv implements the EnvironmentProbe port by reading attributes
// of the local host.
package hostenv

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/muesli/termenv"

	"github.com/ericfisherdev/keyquota/internal/domain/model"
	"github.com/ericfisherdev/keyquota/internal/domain/port/driven"
)

// DefaultFramebufferPath is where Linux exposes the primary display size.
const DefaultFramebufferPath = "/sys/class/graphics/fb0/virtual_size"

// Compile-time interface satisfaction check.
var _ driven.EnvironmentProbe = (*Probe)(nil)

// Probe reports the host environment. Every attribute is chosen to stay the
// same across runs, and between the CLI and the server, on an unchanged host:
// nothing depends on the current terminal window or whether stdout is a TTY.
type Probe struct {
	version         string
	getenv          func(string) string
	now             func() time.Time
	framebufferPath string
	numCPU          func() int
}

// Option customizes a Probe.
type Option func(*Probe)

// WithGetenv overrides the environment variable lookup.
func WithGetenv(getenv func(string) string) Option {
	return func(p *Probe) { p.getenv = getenv }
}

// WithClock overrides the time source used for the timezone offset.
func WithClock(now func() time.Time) Option {
	return func(p *Probe) { p.now = now }
}

// WithFramebufferPath overrides the display size file.
func WithFramebufferPath(path string) Option {
	return func(p *Probe) { p.framebufferPath = path }
}

// WithNumCPU overrides the processor count.
func WithNumCPU(fn func() int) Option {
	return func(p *Probe) { p.numCPU = fn }
}

// NewProbe creates a Probe. version appears in the user agent.
func NewProbe(version string, opts ...Option) *Probe {
	p := &Probe{
		version:         version,
		getenv:          os.Getenv,
		now:             time.Now,
		framebufferPath: DefaultFramebufferPath,
		numCPU:          runtime.NumCPU,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Environment collects the attribute tuple. Attributes that cannot be
// determined are left empty.
func (p *Probe) Environment() model.Environment {
	return model.Environment{
		UserAgent:      p.userAgent(),
		Locale:         p.locale(),
		ColorDepth:     p.colorDepth(),
		Resolution:     p.resolution(),
		TimezoneOffset: p.timezoneOffset(),
		Processors:     strconv.Itoa(p.numCPU()),
	}
}

func (p *Probe) userAgent() string {
	return fmt.Sprintf("keyquota/%s (%s; %s) %s", p.version, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

// locale returns the message locale as a BCP 47 style tag, e.g. "en-US".
func (p *Probe) locale() string {
	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := p.getenv(name)
		if v == "" {
			continue
		}
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		return strings.ReplaceAll(v, "_", "-")
	}
	return ""
}

// colorDepth maps the configured terminal color profile to bits per pixel.
func (p *Probe) colorDepth() string {
	out := termenv.NewOutput(os.Stdout, termenv.WithUnsafe(), termenv.WithEnvironment(environ{p.getenv}))
	switch out.Profile {
	case termenv.TrueColor:
		return "24"
	case termenv.ANSI256:
		return "8"
	case termenv.ANSI:
		return "4"
	default:
		return "1"
	}
}

// resolution reads the framebuffer size, reported by the kernel as "W,H".
func (p *Probe) resolution() string {
	data, err := os.ReadFile(p.framebufferPath)
	if err != nil {
		return ""
	}
	w, h, ok := strings.Cut(strings.TrimSpace(string(data)), ",")
	if !ok || w == "" || h == "" {
		return ""
	}
	return w + "x" + h
}

// timezoneOffset is minutes behind UTC, so zones east of UTC are negative.
func (p *Probe) timezoneOffset() string {
	_, offset := p.now().Zone()
	return strconv.Itoa(-offset / 60)
}

// environ adapts a getenv function to termenv.Environ.
type environ struct {
	getenv func(string) string
}

func (e environ) Environ() []string {
	return os.Environ()
}

func (e environ) Getenv(key string) string {
	return e.getenv(key)
}
