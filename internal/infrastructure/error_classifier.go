package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sridip-de/yt-dlp-gui/internal/domain"
)

// ErrorMarker starts every fatal diagnostic yt-dlp prints
const ErrorMarker = "ERROR"

// networkMarkers are substrings yt-dlp and its HTTP stack print for
// transport-level failures
var networkMarkers = []string{
	"unable to download webpage",
	"unable to download api page",
	"unable to connect",
	"timed out",
	"connection reset",
	"connection refused",
	"connection aborted",
	"network is unreachable",
	"no route to host",
	"temporary failure in name resolution",
	"name or service not known",
	"getaddrinfo failed",
	"nodename nor servname provided",
	"http error 5",
	"http error 429",
	"ssl: ",
	"remote end closed connection",
}

// Classify maps how an operation ended to an error kind. exitCode is
// domain.NoExitCode when the process never exited; tail is the captured
// output, oldest line first; cause is the error observed by the caller, if
// any. It returns "" when nothing went wrong.
func Classify(op domain.Slot, exitCode int, tail []string, cause error) domain.ErrorKind {
	switch {
	case errors.Is(cause, domain.ErrBinaryNotFound):
		return domain.KindBinaryNotFound
	case errors.Is(cause, domain.ErrSpawnFailed):
		return domain.KindSpawnFailed
	case errors.Is(cause, domain.ErrTimeout), errors.Is(cause, context.DeadlineExceeded):
		return domain.KindTimeout
	case errors.Is(cause, domain.ErrParseFailure):
		return domain.KindParseFailure
	}

	if exitCode != 0 && exitCode != domain.NoExitCode {
		if hasNetworkMarker(tail) {
			return domain.KindNetworkFailure
		}
		return domain.KindProcessFailure
	}

	// A zero exit is not proof of success for a download
	if op == domain.SlotDownload && exitCode == 0 && HasErrorLine(tail) {
		if hasNetworkMarker(tail) {
			return domain.KindNetworkFailure
		}
		return domain.KindProcessFailure
	}

	if cause != nil {
		return domain.KindUnknown
	}
	return ""
}

// IsErrorLine reports whether line begins with the explicit error marker
func IsErrorLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), ErrorMarker)
}

// HasErrorLine reports whether any line begins with the error marker
func HasErrorLine(lines []string) bool {
	for _, line := range lines {
		if IsErrorLine(line) {
			return true
		}
	}
	return false
}

func hasNetworkMarker(lines []string) bool {
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, marker := range networkMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

// NewFailure builds a classified error carrying everything needed to render
// or reproduce the failure
func NewFailure(kind domain.ErrorKind, op domain.Slot, commandLine string, exitCode int, tail []string, cause error) *domain.OpError {
	if kind == "" {
		kind = domain.KindUnknown
	}
	return &domain.OpError{
		Kind:        kind,
		Slot:        op,
		CommandLine: commandLine,
		ExitCode:    exitCode,
		Tail:        append([]string(nil), tail...),
		Message:     failureMessage(kind, exitCode, tail, cause),
		Err:         cause,
	}
}

func failureMessage(kind domain.ErrorKind, exitCode int, tail []string, cause error) string {
	if last := lastErrorLine(tail); last != "" {
		return last
	}
	if cause != nil {
		return cause.Error()
	}
	switch kind {
	case domain.KindProcessFailure, domain.KindNetworkFailure:
		return fmt.Sprintf("yt-dlp exited with code %d", exitCode)
	case domain.KindTimeout:
		return domain.ErrTimeout.Error()
	default:
		return "operation failed"
	}
}

func lastErrorLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if IsErrorLine(lines[i]) {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}
