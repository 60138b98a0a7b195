package infrastructure

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sridip-de/yt-dlp-gui/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultGracePeriod = 5 * time.Second
	defaultTailLines   = 200
	maxLineBytes       = 1024 * 1024
)

// Supervisor spawns the external downloader and supervises its lifetime
type Supervisor struct {
	gracePeriod time.Duration
	tailLines   int
	logger      *zap.Logger

	// Env, when set, is appended to the inherited environment
	Env []string
}

// NewSupervisor creates a new process supervisor
func NewSupervisor(config *domain.SupervisorConfig, logger *zap.Logger) *Supervisor {
	s := &Supervisor{
		gracePeriod: defaultGracePeriod,
		tailLines:   defaultTailLines,
		logger:      logger,
	}
	if config != nil {
		if config.GracePeriod > 0 {
			s.gracePeriod = config.GracePeriod
		}
		if config.TailLines > 0 {
			s.tailLines = config.TailLines
		}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Start spawns argv with stdout and stderr sharing a single pipe, so lines
// arrive in exactly the order the process wrote them. ctx only bounds the
// spawn itself; use Cancel to stop a running process.
func (s *Supervisor) Start(ctx context.Context, argv []string) (domain.ProcessHandle, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", domain.ErrSpawnFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSpawnFailed, err)
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrBinaryNotFound, argv[0], err)
	}

	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create output pipe: %v", domain.ErrSpawnFailed, err)
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Stdin = nil
	cmd.Stdout = writer
	cmd.Stderr = writer
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	setProcessGroup(cmd)

	cmdLine := FormatCommandLine(argv)
	if err := cmd.Start(); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSpawnFailed, cmdLine, err)
	}
	// The child holds its own copy; closing ours lets the reader see EOF
	writer.Close()

	h := &processHandle{
		cmd:         cmd,
		output:      reader,
		lines:       make(chan string, 64),
		drained:     make(chan struct{}),
		tail:        newLineRing(s.tailLines),
		cmdLine:     cmdLine,
		gracePeriod: s.gracePeriod,
		logger:      s.logger.With(zap.Int("pid", cmd.Process.Pid)),
		phase:       domain.PhaseRunning,
	}
	go h.pump()

	s.logger.Debug("Process started",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("command", cmdLine))

	return h, nil
}

// processHandle owns one spawned process and its output pipe
type processHandle struct {
	cmd         *exec.Cmd
	output      *os.File
	lines       chan string
	drained     chan struct{}
	tail        *lineRing
	cmdLine     string
	gracePeriod time.Duration
	logger      *zap.Logger

	mu              sync.Mutex
	phase           domain.Phase
	exitCode        int
	cancelRequested bool
	killTimer       *time.Timer

	waitOnce sync.Once
	waitCode int
	waitErr  error
}

// pump reads the merged output until EOF. It is the only reader of the pipe.
func (h *processHandle) pump() {
	defer close(h.drained)
	defer close(h.lines)
	defer h.output.Close()

	scanner := bufio.NewScanner(h.output)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(scanOutputLines)
	for scanner.Scan() {
		line := scanner.Text()
		h.tail.Add(line)
		h.lines <- line
	}

	if err := scanner.Err(); err != nil {
		h.logger.Warn("Output scanner stopped, discarding remaining output", zap.Error(err))
		// Keep the pipe empty so the child never blocks on a full buffer
		io.Copy(io.Discard, h.output)
	}
}

func (h *processHandle) ReadLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-h.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Cancel sends a termination request to the process group. Only the first
// call is honored; if the process has not been reaped within the grace
// period the group is killed.
func (h *processHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.phase == domain.PhaseExited {
		h.logger.Info("Cancel ignored, process already exited")
		return
	}
	if h.cancelRequested {
		h.logger.Info("Cancel ignored, already cancelling")
		return
	}

	h.cancelRequested = true
	h.phase = domain.PhaseCancelling
	h.logger.Info("Cancelling process", zap.Duration("grace_period", h.gracePeriod))

	if err := terminateProcess(h.cmd); err != nil {
		h.logger.Warn("Failed to send termination signal, killing", zap.Error(err))
		h.kill()
		return
	}

	h.killTimer = time.AfterFunc(h.gracePeriod, func() {
		h.mu.Lock()
		exited := h.phase == domain.PhaseExited
		h.mu.Unlock()
		if exited {
			return
		}
		h.logger.Warn("Process did not exit within grace period, killing")
		h.kill()
	})
}

func (h *processHandle) kill() {
	if err := killProcess(h.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.logger.Warn("Failed to kill process", zap.Error(err))
	}
}

// Wait drains unread output before reaping the process so the child can
// never block on a full pipe. It is safe to call more than once.
func (h *processHandle) Wait() (int, error) {
	h.waitOnce.Do(func() {
		for range h.lines {
		}
		<-h.drained

		err := h.cmd.Wait()
		code := domain.NoExitCode
		if h.cmd.ProcessState != nil {
			code = h.cmd.ProcessState.ExitCode()
		}

		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			h.waitErr = fmt.Errorf("wait for process: %w", err)
		} else if code < 0 {
			// Terminated by a signal
			h.waitErr = fmt.Errorf("process terminated: %w", err)
		}
		h.waitCode = code

		h.mu.Lock()
		h.phase = domain.PhaseExited
		h.exitCode = code
		if h.killTimer != nil {
			h.killTimer.Stop()
		}
		h.mu.Unlock()

		h.logger.Debug("Process exited", zap.Int("exit_code", code))
	})
	return h.waitCode, h.waitErr
}

func (h *processHandle) State() domain.ProcessState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return domain.ProcessState{Phase: h.phase, ExitCode: h.exitCode}
}

func (h *processHandle) CancelRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelRequested
}

func (h *processHandle) Tail() []string {
	return h.tail.Lines()
}

func (h *processHandle) CommandLine() string {
	return h.cmdLine
}

// scanOutputLines splits on \n, \r\n and a bare \r. yt-dlp redraws progress
// with carriage returns when it believes it is writing to a terminal.
func scanOutputLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// \r: need one more byte to tell \r\n from a bare \r
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		return 0, nil, nil
	}
	// Trailing partial line
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// lineRing keeps the last n lines of output
type lineRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newLineRing(n int) *lineRing {
	if n <= 0 {
		n = defaultTailLines
	}
	return &lineRing{lines: make([]string, n)}
}

func (r *lineRing) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// Lines returns the buffered lines, oldest first
func (r *lineRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}
