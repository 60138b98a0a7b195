package domain

import "time"

// Slot is an independent operation context owning at most one process
type Slot string

const (
	SlotFetch    Slot = "fetch"
	SlotDownload Slot = "download"
)

// ValidateSlot checks if a slot name is valid
func ValidateSlot(slot Slot) bool {
	return slot == SlotFetch || slot == SlotDownload
}

// Level is the severity of a LogEvent
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// LogEvent is a human-readable message destined for the event consumer
type LogEvent struct {
	Level    Level             `json:"level"`
	Category string            `json:"category"`
	Message  string            `json:"message"`
	Details  map[string]string `json:"details,omitempty"`
}

// ProgressEvent is derived from one line of downloader output. Fraction is
// nil when the line carried no progress information.
type ProgressEvent struct {
	Fraction    *float64 `json:"fraction,omitempty"`
	RawLine     string   `json:"raw_line"`
	ReplaceLast bool     `json:"replace_last"`
}

// HasFraction reports whether the event carries a completion fraction
func (p ProgressEvent) HasFraction() bool {
	return p.Fraction != nil
}

// Outcome is the terminal state of an operation
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// CatalogResult is the terminal value of a fetch-formats operation
type CatalogResult struct {
	OperationID string             `json:"operation_id"`
	URL         string             `json:"url"`
	Formats     []FormatDescriptor `json:"formats"`
	Outcome     Outcome            `json:"outcome"`
	FromCache   bool               `json:"from_cache,omitempty"`
	Warning     string             `json:"warning,omitempty"`
	Err         *OpError           `json:"error,omitempty"`
}

// DownloadResult is the terminal value of a download operation
type DownloadResult struct {
	OperationID string          `json:"operation_id"`
	Request     DownloadRequest `json:"request"`
	Outcome     Outcome         `json:"outcome"`
	Err         *OpError        `json:"error,omitempty"`
}

// Event is the envelope delivered on the single ordered event channel.
// Exactly one of the payload fields is set.
type Event struct {
	Seq         uint64          `json:"seq"`
	OperationID string          `json:"operation_id,omitempty"`
	Slot        Slot            `json:"slot"`
	Time        time.Time       `json:"time"`
	Log         *LogEvent       `json:"log,omitempty"`
	Progress    *ProgressEvent  `json:"progress,omitempty"`
	Catalog     *CatalogResult  `json:"catalog,omitempty"`
	Download    *DownloadResult `json:"download,omitempty"`
}

// IsTerminal reports whether the event carries an operation result
func (e Event) IsTerminal() bool {
	return e.Catalog != nil || e.Download != nil
}
