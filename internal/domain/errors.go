package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrBinaryNotFound is returned when the downloader binary is not on PATH
	ErrBinaryNotFound = errors.New("downloader binary not found")
	// ErrSpawnFailed is returned when the process could not be started
	ErrSpawnFailed = errors.New("failed to start process")
	// ErrTimeout is returned when a fetch produced no output in time
	ErrTimeout = errors.New("timed out waiting for output")
	// ErrParseFailure is returned when the format table could not be parsed
	ErrParseFailure = errors.New("failed to parse format listing")
	// ErrSlotBusy is returned when an operation slot already has a live process
	ErrSlotBusy = errors.New("operation slot busy")
	// ErrOperationNotFound is returned for unknown operation IDs
	ErrOperationNotFound = errors.New("operation not found")
)

// ErrorKind is the classified cause of an operation failure
type ErrorKind string

const (
	KindBinaryNotFound ErrorKind = "binary_not_found"
	KindSpawnFailed    ErrorKind = "spawn_failed"
	KindTimeout        ErrorKind = "timeout"
	KindProcessFailure ErrorKind = "process_failure"
	KindParseFailure   ErrorKind = "parse_failure"
	KindNetworkFailure ErrorKind = "network_failure"
	KindUnknown        ErrorKind = "unknown"
)

// NoExitCode marks an OpError raised before the process exited
const NoExitCode = -1

// OpError is a classified operation failure with enough context for the
// consumer to render it without re-deriving anything
type OpError struct {
	Kind        ErrorKind `json:"kind"`
	Slot        Slot      `json:"slot"`
	CommandLine string    `json:"command_line,omitempty"`
	ExitCode    int       `json:"exit_code"`
	Tail        []string  `json:"tail,omitempty"`
	Message     string    `json:"message"`
	Err         error     `json:"-"`
}

func (e *OpError) Error() string {
	if e.ExitCode != NoExitCode {
		return fmt.Sprintf("%s %s (exit code %d): %s", e.Slot, e.Kind, e.ExitCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Slot, e.Kind, e.Message)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
