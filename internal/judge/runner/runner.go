// Package runner executes untrusted participant code against a single input
// in a throwaway workspace with a hard wall-clock limit.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"codenvibe/internal/common"
)

type OutcomeKind int

const (
	KindOutput OutcomeKind = iota
	KindTimeout
	KindRuntimeError
)

func (k OutcomeKind) String() string {
	switch k {
	case KindOutput:
		return "output"
	case KindTimeout:
		return "timeout"
	case KindRuntimeError:
		return "runtime_error"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of one run. Output holds captured stdout verbatim,
// including for failed runs; Diagnostic is set for failures only.
type Outcome struct {
	Kind       OutcomeKind
	Output     string
	Diagnostic string
	Duration   time.Duration
}

// Err converts a failed outcome into the judging error taxonomy.
func (o Outcome) Err() error {
	switch o.Kind {
	case KindTimeout:
		return common.ErrExecutionTimeout
	case KindRuntimeError:
		if o.Diagnostic == "" {
			return common.ErrExecutionRuntime
		}
		return fmt.Errorf("%w: %s", common.ErrExecutionRuntime, o.Diagnostic)
	default:
		return nil
	}
}

// Runner never returns an error: spawn failures, crashes and non-zero exits
// all come back as KindRuntimeError.
type Runner interface {
	Run(ctx context.Context, code, input string, limit time.Duration) Outcome
}

type Config struct {
	WorkRoot          string
	DefaultTimeLimit  time.Duration
	MemoryLimitBytes  uint64
	OutputLimitBytes  int64
	IsolateNamespaces bool
	// AllowUnisolated lets New fall back to a plain process group when the
	// host refuses to create namespaces. Without it New fails instead.
	AllowUnisolated bool
	// MaxProcesses caps processes and threads per run (RLIMIT_NPROC inside
	// the run's user namespace, and pids.max when CgroupRoot is set).
	MaxProcesses uint64
	// CgroupRoot is a delegated cgroup v2 directory. When set, every run gets
	// its own child cgroup and is killed through cgroup.kill.
	CgroupRoot string
}

const (
	defaultTimeLimit    = 2 * time.Second
	defaultOutputLimit  = 64 * 1024
	defaultMaxProcesses = 64
	maxFileSizeBytes    = 16 << 20
)

func (c Config) withDefaults() Config {
	if c.DefaultTimeLimit <= 0 {
		c.DefaultTimeLimit = defaultTimeLimit
	}
	if c.OutputLimitBytes <= 0 {
		c.OutputLimitBytes = defaultOutputLimit
	}
	if c.MaxProcesses == 0 {
		c.MaxProcesses = defaultMaxProcesses
	}
	return c
}

// Registry maps language names to runners.
type Registry struct {
	mu       sync.RWMutex
	fallback string
	runners  map[string]Runner
}

func NewRegistry(fallback string, runners map[string]Runner) *Registry {
	r := &Registry{fallback: fallback, runners: make(map[string]Runner, len(runners))}
	for name, rn := range runners {
		r.runners[name] = rn
	}
	return r
}

// NewRegistryFromConfig builds a process runner for every built-in profile.
func NewRegistryFromConfig(cfg Config, fallback string) (*Registry, error) {
	if _, err := LookupProfile(fallback); err != nil {
		return nil, err
	}
	runners := make(map[string]Runner)
	for _, name := range ProfileNames() {
		profile, _ := LookupProfile(name)
		rn, err := New(profile, cfg)
		if err != nil {
			return nil, err
		}
		runners[name] = rn
	}
	return NewRegistry(fallback, runners), nil
}

// Resolve returns the runner for language, or the fallback for "".
func (r *Registry) Resolve(language string) (Runner, error) {
	if language == "" {
		language = r.fallback
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rn, ok := r.runners[language]
	if !ok {
		return nil, fmt.Errorf("no runner for language %q: %w", language, common.ErrQuestionIntegrity)
	}
	return rn, nil
}

func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cappedBuffer keeps the first max bytes and silently discards the rest so a
// chatty child never blocks on a full pipe.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int64
	truncated bool
}

func newCappedBuffer(max int64) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.max - int64(c.buf.Len())
	if room <= 0 {
		c.truncated = c.truncated || len(p) > 0
		return len(p), nil
	}
	if int64(len(p)) > room {
		c.buf.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	c.buf.Write(p)
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *cappedBuffer) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}

func minimalEnv(workDir string, extra []string) []string {
	env := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + workDir,
		"TMPDIR=" + workDir,
		"LANG=C.UTF-8",
	}
	return append(env, extra...)
}
