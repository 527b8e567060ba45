// Package supervisor launches worker processes detached from the panel and
// tracks them through PID files written by the workers themselves.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"

	"github.com/cur1osus/manager-for-userbot/internal/metrics"
	"github.com/cur1osus/manager-for-userbot/types"
)

// NoPID is returned by Start when the worker did not report its PID in time.
const NoPID = -1

var ErrWorkerEntryMissing = errors.New("worker entry point missing")

// CommandFunc builds the command that runs one worker. The worker must write
// its own PID to pidPath.
type CommandFunc func(creds types.Credentials, pidPath string) *exec.Cmd

type Supervisor struct {
	dir       string
	pidWait   time.Duration
	pollEvery time.Duration
	command   CommandFunc
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

type Option func(*Supervisor)

func WithCommand(fn CommandFunc) Option {
	return func(s *Supervisor) { s.command = fn }
}

func WithPIDWait(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.pidWait = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WorkerCommand runs "<binary> start worker-process <phone>" with the
// credentials passed as flags.
func WorkerCommand(binary string) CommandFunc {
	return func(creds types.Credentials, pidPath string) *exec.Cmd {
		return exec.Command(binary,
			"start", "worker-process", creds.Phone,
			"--session", creds.SessionPath,
			"--api-id", strconv.Itoa(creds.APIID),
			"--api-hash", creds.APIHash,
			"--pid-file", pidPath,
		)
	}
}

func New(dir, binary string, log zerolog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		dir:       dir,
		pidWait:   time.Second,
		pollEvery: 100 * time.Millisecond,
		command:   WorkerCommand(binary),
		log:       log.With().Str("component", "supervisor").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizePhone(phone string) string {
	return strings.TrimPrefix(strings.TrimSpace(phone), "+")
}

func (s *Supervisor) PIDPath(phone string) string {
	return filepath.Join(s.dir, normalizePhone(phone)+".pid")
}

func (s *Supervisor) SessionPath(phone string) string {
	return types.SessionPath(s.dir, phone)
}

// Start launches a worker in a new session and waits for it to write its
// PID file. It returns NoPID with a nil error when the file does not appear
// within the wait interval.
func (s *Supervisor) Start(ctx context.Context, creds types.Credentials) (int, error) {
	if err := creds.Validate(); err != nil {
		return NoPID, err
	}
	log := s.log.With().Str("phone", creds.Phone).Logger()

	if pid, ok := s.runningPID(creds.Phone); ok {
		log.Info().Int("pid", pid).Msg("worker already running")
		s.observe("already_running")
		return pid, nil
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return NoPID, fmt.Errorf("create sessions dir: %w", err)
	}
	pidPath := s.PIDPath(creds.Phone)
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return NoPID, fmt.Errorf("remove stale pid file: %w", err)
	}

	cmd := s.command(creds, pidPath)
	if cmd == nil {
		return NoPID, ErrWorkerEntryMissing
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil
	// new session: no controlling terminal, and the group id equals the pid
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		s.observe("spawn_failed")
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return NoPID, fmt.Errorf("%w: %v", ErrWorkerEntryMissing, err)
		}
		return NoPID, fmt.Errorf("spawn worker: %w", err)
	}
	go func() { _ = cmd.Wait() }()

	pid, err := s.waitForPID(ctx, pidPath)
	if err != nil {
		return NoPID, err
	}
	if pid == NoPID {
		log.Warn().Int("child_pid", cmd.Process.Pid).Dur("waited", s.pidWait).Msg("worker did not report its pid")
		s.observe("no_pid")
		return NoPID, nil
	}
	log.Info().Int("pid", pid).Msg("worker started")
	s.observe("started")
	return pid, nil
}

func (s *Supervisor) waitForPID(ctx context.Context, pidPath string) (int, error) {
	deadline := time.NewTimer(s.pidWait)
	defer deadline.Stop()
	tick := time.NewTicker(s.pollEvery)
	defer tick.Stop()

	for {
		if pid, err := readPIDFile(pidPath); err == nil {
			return pid, nil
		}
		select {
		case <-ctx.Done():
			return NoPID, ctx.Err()
		case <-deadline.C:
			if pid, err := readPIDFile(pidPath); err == nil {
				return pid, nil
			}
			return NoPID, nil
		case <-tick.C:
		}
	}
}

// IsRunning reports whether the PID recorded for phone belongs to a live process.
func (s *Supervisor) IsRunning(phone string) bool {
	_, ok := s.runningPID(phone)
	return ok
}

func (s *Supervisor) runningPID(phone string) (int, bool) {
	pid, err := readPIDFile(s.PIDPath(phone))
	if err != nil {
		return 0, false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil {
		s.log.Debug().Err(err).Int("pid", pid).Msg("liveness check failed")
		return 0, false
	}
	return pid, exists
}

// Stop sends SIGTERM to the worker's process group and removes its PID file
// and, when deleteSession is set, its session file. An absent process is not
// an error.
func (s *Supervisor) Stop(phone string, deleteSession bool) error {
	log := s.log.With().Str("phone", phone).Logger()
	var errs []error

	pid, err := readPIDFile(s.PIDPath(phone))
	switch {
	case err == nil:
		if err := terminateGroup(pid); err != nil {
			switch {
			case errors.Is(err, unix.ESRCH):
				log.Info().Int("pid", pid).Msg("worker already gone")
			case errors.Is(err, unix.EPERM):
				log.Warn().Int("pid", pid).Msg("no permission to signal worker")
			default:
				errs = append(errs, fmt.Errorf("signal worker %d: %w", pid, err))
			}
		} else {
			log.Info().Int("pid", pid).Msg("worker signalled")
		}
	case errors.Is(err, os.ErrNotExist):
		log.Debug().Msg("no pid file")
	default:
		log.Warn().Err(err).Msg("unreadable pid file")
	}

	if err := removeIfExists(s.PIDPath(phone)); err != nil {
		errs = append(errs, err)
	}
	if deleteSession {
		if err := removeIfExists(s.SessionPath(phone)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func terminateGroup(pid int) error {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		return err
	}
	return unix.Kill(-pgid, unix.SIGTERM)
}

func readPIDFile(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("corrupt pid file %s: %w", path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("corrupt pid file %s: pid %d", path, pid)
	}
	return pid, nil
}

// WritePIDFile records the current process as the worker for a PID path.
func WritePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

// RemovePIDFile deletes path only while it still names the current process.
func RemovePIDFile(path string) error {
	pid, err := readPIDFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return removeIfExists(path)
	}
	if pid != os.Getpid() {
		return nil
	}
	return removeIfExists(path)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (s *Supervisor) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.SupervisorStarts.WithLabelValues(outcome).Inc()
	}
}
