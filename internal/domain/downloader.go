package domain

import (
	"context"
	"fmt"
)

// Phase is the lifecycle stage of a supervised process
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRunning    Phase = "running"
	PhaseCancelling Phase = "cancelling"
	PhaseExited     Phase = "exited"
)

// ProcessState is a snapshot of a process handle
type ProcessState struct {
	Phase    Phase `json:"phase"`
	ExitCode int   `json:"exit_code"`
}

func (s ProcessState) String() string {
	if s.Phase == PhaseExited {
		return fmt.Sprintf("exited(%d)", s.ExitCode)
	}
	return string(s.Phase)
}

// ProcessRunner spawns the external downloader
type ProcessRunner interface {
	// Start spawns argv (argv[0] is the binary) with stdout and stderr merged
	Start(ctx context.Context, argv []string) (ProcessHandle, error)
}

// ProcessHandle controls one spawned process
type ProcessHandle interface {
	// ReadLine blocks for the next output line; io.EOF once output is drained
	ReadLine(ctx context.Context) (string, error)

	// Cancel requests graceful termination, escalating to a kill after a grace period
	Cancel()

	// Wait drains remaining output and returns the exit code
	Wait() (int, error)

	// State returns the current lifecycle state
	State() ProcessState

	// CancelRequested reports whether Cancel was honored for this handle
	CancelRequested() bool

	// Tail returns the last captured output lines
	Tail() []string

	// CommandLine returns a shell-escaped rendering of the invocation
	CommandLine() string
}

// Notifier delivers user-facing notifications about finished downloads
type Notifier interface {
	NotifyDownloadCompleted(url string)
	NotifyDownloadFailed(url string, err error)
}
