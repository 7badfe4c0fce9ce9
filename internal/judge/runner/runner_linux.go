//go:build linux

package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"codenvibe/internal/platform/logger"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

type processRunner struct {
	cfg     Config
	profile Profile
}

// probeIsolation starts a trivial process inside the namespaces every run
// uses. Hosts with unprivileged user namespaces disabled fail here.
var probeIsolation = sync.OnceValue(func() error {
	path, err := exec.LookPath("true")
	if err != nil {
		return fmt.Errorf("find probe binary: %w", err)
	}
	cmd := exec.Command(path)
	cmd.SysProcAttr = buildSysProcAttr(true)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("start process in new namespaces: %w", err)
	}
	return nil
})

// New creates a runner that launches profile's interpreter in its own
// process group under rlimits, inside fresh namespaces unless isolation is
// turned off.
func New(profile Profile, cfg Config) (Runner, error) {
	if profile.SourceFile == "" || profile.Command == "" {
		return nil, fmt.Errorf("profile %q is incomplete", profile.Name)
	}
	cfg = cfg.withDefaults()
	ctx := context.Background()

	if cfg.IsolateNamespaces {
		if err := probeIsolation(); err != nil {
			if !cfg.AllowUnisolated {
				return nil, fmt.Errorf("runner %s: namespace isolation unavailable: %w", profile.Name, err)
			}
			logger.Error(ctx, "namespace isolation unavailable, running participant code without it",
				zap.String("component", "runner"), zap.String("language", profile.Name), zap.Error(err))
			cfg.IsolateNamespaces = false
		}
	}
	if !cfg.IsolateNamespaces && cfg.CgroupRoot == "" {
		logger.Warn(ctx, "runner has neither namespaces nor a cgroup; detached processes can outlive a run",
			zap.String("component", "runner"), zap.String("language", profile.Name))
	}
	return &processRunner{cfg: cfg, profile: profile}, nil
}

func (r *processRunner) Run(ctx context.Context, code, input string, limit time.Duration) Outcome {
	if limit <= 0 {
		limit = r.cfg.DefaultTimeLimit
	}
	start := time.Now()

	workDir, err := os.MkdirTemp(r.cfg.WorkRoot, "run-"+slug.Make(r.profile.Name)+"-")
	if err != nil {
		return spawnFailure(start, fmt.Errorf("create workspace: %w", err))
	}
	defer os.RemoveAll(workDir)

	if err := os.WriteFile(filepath.Join(workDir, r.profile.SourceFile), []byte(code), 0o600); err != nil {
		return spawnFailure(start, fmt.Errorf("write source: %w", err))
	}
	argv, err := r.profile.Argv(workDir)
	if err != nil {
		return spawnFailure(start, err)
	}

	var cg *runCgroup
	if r.cfg.CgroupRoot != "" {
		if cg, err = r.prepareCgroup(); err != nil {
			return spawnFailure(start, err)
		}
		defer func() {
			if err := cg.remove(); err != nil {
				logger.Warn(ctx, "remove run cgroup failed", zap.String("component", "runner"), zap.Error(err))
			}
		}()
	}

	stdout := newCappedBuffer(r.cfg.OutputLimitBytes)
	stderr := newCappedBuffer(r.cfg.OutputLimitBytes)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = workDir
	cmd.Env = minimalEnv(workDir, r.profile.Env)
	cmd.Stdin = strings.NewReader(input)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = buildSysProcAttr(r.cfg.IsolateNamespaces)
	if cg != nil {
		fd, err := cg.open()
		if err != nil {
			return spawnFailure(start, err)
		}
		cmd.SysProcAttr.UseCgroupFD = true
		cmd.SysProcAttr.CgroupFD = fd
	}
	// Bounds Wait when a leftover descendant still holds the output pipes.
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return spawnFailure(start, fmt.Errorf("spawn %s: %w", argv[0], err))
	}
	pid := cmd.Process.Pid
	r.applyLimits(ctx, pid, limit)

	kill := func() {
		killProcessGroup(pid)
		if cg != nil {
			_ = cg.kill()
		}
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			kill()
		case <-timer.C:
			timedOut.Store(true)
			kill()
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	kill()
	if errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		// The program exited cleanly; only a leftover child kept the pipes open.
		waitErr = nil
	}

	outcome := Outcome{Output: stdout.String(), Duration: time.Since(start)}
	switch {
	case timedOut.Load() || cpuLimitHit(cmd.ProcessState):
		outcome.Kind = KindTimeout
		outcome.Diagnostic = fmt.Sprintf("exceeded time limit of %s", limit)
	case ctx.Err() != nil:
		outcome.Kind = KindRuntimeError
		outcome.Diagnostic = "execution cancelled"
	case stdout.Truncated():
		outcome.Kind = KindRuntimeError
		outcome.Diagnostic = fmt.Sprintf("output limit of %d bytes exceeded", r.cfg.OutputLimitBytes)
	case waitErr != nil:
		outcome.Kind = KindRuntimeError
		outcome.Diagnostic = diagnostic(stderr.String(), waitErr)
	default:
		outcome.Kind = KindOutput
	}

	logger.Debug(ctx, "run finished",
		zap.String("component", "runner"),
		zap.String("language", r.profile.Name),
		zap.Stringer("kind", outcome.Kind),
		zap.Duration("elapsed", outcome.Duration))
	return outcome
}

type rlimitSpec struct {
	name     string
	resource int
	cur, max uint64
}

func (r *processRunner) rlimits(limit time.Duration) []rlimitSpec {
	cpuSeconds := uint64((limit+time.Second-1)/time.Second) + 1
	limits := []rlimitSpec{
		{"cpu", unix.RLIMIT_CPU, cpuSeconds, cpuSeconds + 1},
		{"fsize", unix.RLIMIT_FSIZE, maxFileSizeBytes, maxFileSizeBytes},
		{"nofile", unix.RLIMIT_NOFILE, 64, 64},
		{"core", unix.RLIMIT_CORE, 0, 0},
	}
	if r.cfg.MemoryLimitBytes > 0 && !r.profile.SkipAddressSpaceLimit {
		limits = append(limits, rlimitSpec{"as", unix.RLIMIT_AS, r.cfg.MemoryLimitBytes, r.cfg.MemoryLimitBytes})
	}
	// Outside a user namespace RLIMIT_NPROC counts every process of the
	// server's uid, so it is only a per-run cap inside one.
	if r.cfg.IsolateNamespaces && r.cfg.MaxProcesses > 0 {
		limits = append(limits, rlimitSpec{"nproc", unix.RLIMIT_NPROC, r.cfg.MaxProcesses, r.cfg.MaxProcesses})
	}
	return limits
}

func (r *processRunner) applyLimits(ctx context.Context, pid int, limit time.Duration) {
	for _, l := range r.rlimits(limit) {
		rl := unix.Rlimit{Cur: l.cur, Max: l.max}
		if err := unix.Prlimit(pid, l.resource, &rl, nil); err != nil {
			logger.Warn(ctx, "apply rlimit failed",
				zap.String("component", "runner"), zap.String("limit", l.name), zap.Error(err))
		}
	}
}

func (r *processRunner) prepareCgroup() (*runCgroup, error) {
	cg, err := createRunCgroup(r.cfg.CgroupRoot, r.profile.Name)
	if err != nil {
		return nil, err
	}
	if err := cg.applyLimits(r.cfg.MaxProcesses, r.cfg.MemoryLimitBytes); err != nil {
		cg.remove()
		return nil, err
	}
	return cg, nil
}

func buildSysProcAttr(isolate bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !isolate {
		return attr
	}
	attr.Cloneflags = syscall.CLONE_NEWUSER | syscall.CLONE_NEWNS | syscall.CLONE_NEWPID |
		syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC | syscall.CLONE_NEWNET
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getuid(), Size: 1}}
	attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getgid(), Size: 1}}
	return attr
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func cpuLimitHit(state *os.ProcessState) bool {
	if state == nil {
		return false
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled() && ws.Signal() == syscall.SIGXCPU
}

func diagnostic(stderr string, waitErr error) string {
	if msg := strings.TrimSpace(stderr); msg != "" {
		return msg
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.Error()
	}
	return waitErr.Error()
}

func spawnFailure(start time.Time, err error) Outcome {
	return Outcome{Kind: KindRuntimeError, Diagnostic: err.Error(), Duration: time.Since(start)}
}
