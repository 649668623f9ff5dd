//go:build linux

package limiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"arbiter/pkg/utils/logger"
)

const defaultStdoutStderrMaxBytes int64 = 64 * 1024

type linuxLimiter struct {
	cfg       Config
	registry  map[string][]string
	registryM sync.Mutex
}

// New creates a Linux limiter. Runs are delegated to the sandbox-init helper
// which sets up namespaces, mounts and rlimits before exec'ing the target.
func New(cfg Config) (Limiter, error) {
	if cfg.StdoutStderrMaxBytes <= 0 {
		cfg.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	if cfg.HelperPath == "" {
		cfg.HelperPath = "sandbox-init"
	}
	return &linuxLimiter{
		cfg:      cfg,
		registry: make(map[string][]string),
	}, nil
}

func (l *linuxLimiter) Run(ctx context.Context, runSpec RunSpec) (Measurement, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return Measurement{}, err
	}

	isolation := runSpec.Isolation
	if l.cfg.SeccompDir != "" && isolation.SeccompProfile != "" && !filepath.IsAbs(isolation.SeccompProfile) {
		isolation.SeccompProfile = filepath.Join(l.cfg.SeccompDir, isolation.SeccompProfile)
	}

	cgroupPath := ""
	cgroupCleanup := func() {}
	var err error
	if l.cfg.EnableCgroup {
		cgroupPath, cgroupCleanup, err = createRunCgroup(l.cfg.CgroupRoot, runSpec.SubmissionID, runSpec.TestID)
		if err != nil {
			return Measurement{}, fmt.Errorf("create cgroup: %w", err)
		}
		if err := applyCgroupLimits(cgroupPath, runSpec.Limits); err != nil {
			cgroupCleanup()
			return Measurement{}, fmt.Errorf("apply cgroup limits: %w", err)
		}
		l.registerCgroup(runSpec.SubmissionID, cgroupPath)
	}
	defer func() {
		if l.cfg.EnableCgroup {
			l.unregisterCgroup(runSpec.SubmissionID, cgroupPath)
			cgroupCleanup()
		}
	}()

	initReq := initRequest{
		RunSpec:       runSpec,
		Isolation:     isolation,
		EnableSeccomp: l.cfg.EnableSeccomp,
		EnableNs:      l.cfg.EnableNamespaces,
		// Without a cgroup the address-space rlimit is the only memory cap.
		// With one it stays off so OOM kills keep coming from the cgroup.
		EnableMemRlimit: !l.cfg.EnableCgroup,
	}

	stdinPipe, err := jsonToPipe(initReq)
	if err != nil {
		return Measurement{}, fmt.Errorf("encode init request: %w", err)
	}
	defer stdinPipe.Close()

	cmd := exec.CommandContext(ctx, l.cfg.HelperPath)
	cmd.SysProcAttr = buildSysProcAttr(isolation, l.cfg.EnableNamespaces)
	cmd.Stdin = stdinPipe

	var helperStderr bytes.Buffer
	cmd.Stderr = &helperStderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Measurement{}, fmt.Errorf("start helper: %w", err)
	}

	if l.cfg.EnableCgroup {
		if err := addProcessToCgroup(cgroupPath, cmd.Process.Pid); err != nil {
			logger.Warn(ctx, "add process to cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}

	var timedOut atomic.Bool
	killCtx, cancelKill := context.WithCancel(ctx)
	defer cancelKill()

	done := make(chan struct{})
	go func() {
		wallLimit := durationFromMs(runSpec.Limits.WallTimeMs)
		var wallTimer <-chan time.Time
		if wallLimit > 0 {
			wallTimer = time.After(wallLimit)
		}
		select {
		case <-killCtx.Done():
			l.killProcessGroup(cmd.Process.Pid)
		case <-wallTimer:
			timedOut.Store(true)
			l.killProcessGroup(cmd.Process.Pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	if waitErr != nil && helperStderr.Len() > 0 {
		logger.Warn(ctx, "sandbox helper failed", zap.String("stderr", helperStderr.String()))
	}

	stdoutPath := resolveHostPath(runSpec.StdoutPath, runSpec)
	stderrPath := resolveHostPath(runSpec.StderrPath, runSpec)
	measurement := Measurement{
		ExitCode:    exitCodeFromErr(waitErr, cmd.ProcessState),
		CPUTimeMs:   cpuTimeMs(cmd.ProcessState),
		WallTimeMs:  time.Since(start).Milliseconds(),
		MemoryKB:    memoryPeakKB(cgroupPath, cmd.ProcessState),
		OutputBytes: fileSizeBytes(stdoutPath),
		Stdout:      readLimitedFile(stdoutPath, l.cfg.StdoutStderrMaxBytes),
		Stderr:      readLimitedFile(stderrPath, l.cfg.StdoutStderrMaxBytes),
		TimedOut:    timedOut.Load(),
		OomKilled:   wasOomKilled(cgroupPath),
	}

	if waitErr != nil && errors.Is(waitErr, context.DeadlineExceeded) {
		measurement.TimedOut = true
	}
	if measurement.TimedOut && measurement.ExitCode == 0 {
		measurement.ExitCode = -1
	}

	return measurement, nil
}

func (l *linuxLimiter) KillSubmission(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return fmt.Errorf("submission id is required")
	}
	paths := l.snapshotCgroups(submissionID)
	for _, cgroupPath := range paths {
		if err := killCgroup(cgroupPath); err != nil {
			logger.Warn(ctx, "kill cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}
	return nil
}

func (l *linuxLimiter) registerCgroup(submissionID, cgroupPath string) {
	l.registryM.Lock()
	defer l.registryM.Unlock()
	l.registry[submissionID] = append(l.registry[submissionID], cgroupPath)
}

func (l *linuxLimiter) unregisterCgroup(submissionID, cgroupPath string) {
	l.registryM.Lock()
	defer l.registryM.Unlock()
	paths := l.registry[submissionID]
	if len(paths) == 0 {
		return
	}
	updated := paths[:0]
	for _, p := range paths {
		if p != cgroupPath {
			updated = append(updated, p)
		}
	}
	if len(updated) == 0 {
		delete(l.registry, submissionID)
		return
	}
	l.registry[submissionID] = updated
}

func (l *linuxLimiter) snapshotCgroups(submissionID string) []string {
	l.registryM.Lock()
	defer l.registryM.Unlock()
	paths := l.registry[submissionID]
	out := make([]string, len(paths))
	copy(out, paths)
	return out
}

// killProcessGroup terminates the helper's whole process group so no child
// of the submission survives the call.
func (l *linuxLimiter) killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func validateRunSpec(runSpec RunSpec) error {
	if runSpec.SubmissionID == "" {
		return fmt.Errorf("submission id is required")
	}
	if runSpec.TestID == "" {
		return fmt.Errorf("test id is required")
	}
	if runSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if len(runSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	return nil
}

type initRequest struct {
	RunSpec         RunSpec
	Isolation       IsolationProfile
	EnableSeccomp   bool
	EnableNs        bool
	EnableMemRlimit bool
}

func jsonToPipe(req initRequest) (io.ReadCloser, error) {
	reader, writer := io.Pipe()
	go func() {
		enc := json.NewEncoder(writer)
		err := enc.Encode(req)
		_ = writer.CloseWithError(err)
	}()
	return reader, nil
}

func buildSysProcAttr(profile IsolationProfile, enableNamespaces bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !enableNamespaces {
		return attr
	}

	cloneFlags := uintptr(syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC)
	if profile.DisableNetwork {
		cloneFlags |= syscall.CLONE_NEWNET
	}
	cloneFlags |= syscall.CLONE_NEWUSER

	attr.Cloneflags = cloneFlags
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getuid(),
		Size:        1,
	}}
	attr.GidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getgid(),
		Size:        1,
	}}
	return attr
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func durationFromMs(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func cpuTimeMs(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	usage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}
	utime := time.Duration(usage.Utime.Sec)*time.Second + time.Duration(usage.Utime.Usec)*time.Microsecond
	stime := time.Duration(usage.Stime.Sec)*time.Second + time.Duration(usage.Stime.Usec)*time.Microsecond
	return (utime + stime).Milliseconds()
}

func fileSizeBytes(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func readLimitedFile(path string, maxBytes int64) string {
	if path == "" || maxBytes <= 0 {
		return ""
	}
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return ""
	}
	return string(data)
}

// resolveHostPath maps a container path back onto the host through the
// longest-prefix bind mount so measurements can read files the child wrote.
func resolveHostPath(path string, runSpec RunSpec) string {
	if path == "" {
		return ""
	}
	clean := filepath.Clean(path)
	longest := ""
	source := ""
	for _, mount := range runSpec.BindMounts {
		if mount.Target == "" || mount.Source == "" {
			continue
		}
		target := filepath.Clean(mount.Target)
		if !strings.HasPrefix(clean, target) {
			continue
		}
		if len(target) > len(longest) {
			longest = target
			source = mount.Source
		}
	}
	if source == "" {
		return path
	}
	rel := strings.TrimPrefix(clean, longest)
	rel = strings.TrimPrefix(rel, string(os.PathSeparator))
	return filepath.Join(source, rel)
}
