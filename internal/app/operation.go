package app

import (
	"context"
	"sync"
	"time"

	"github.com/sridip-de/yt-dlp-gui/internal/domain"
)

// Operation is a running fetch or download whose terminal result can be
// awaited
type Operation[T any] struct {
	ID        string
	Slot      domain.Slot
	StartedAt time.Time

	done   chan struct{}
	once   sync.Once
	result T
}

func newOperation[T any](id string, slot domain.Slot) *Operation[T] {
	return &Operation[T]{
		ID:        id,
		Slot:      slot,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Done is closed once the result is available
func (o *Operation[T]) Done() <-chan struct{} {
	return o.done
}

// Result returns the terminal result and whether the operation has finished
func (o *Operation[T]) Result() (T, bool) {
	select {
	case <-o.done:
		return o.result, true
	default:
		var zero T
		return zero, false
	}
}

// Wait blocks until the operation finishes or ctx is done
func (o *Operation[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-o.done:
		return o.result, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (o *Operation[T]) finish(result T) {
	o.once.Do(func() {
		o.result = result
		close(o.done)
	})
}

// OperationStatus is a snapshot of an operation for status queries
type OperationStatus struct {
	ID         string                 `json:"id"`
	Slot       domain.Slot            `json:"slot"`
	URL        string                 `json:"url"`
	Running    bool                   `json:"running"`
	Outcome    domain.Outcome         `json:"outcome,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
	Catalog    *domain.CatalogResult  `json:"catalog,omitempty"`
	Download   *domain.DownloadResult `json:"download,omitempty"`
}

// SlotStatus describes what an operation slot is doing
type SlotStatus struct {
	Slot        domain.Slot          `json:"slot"`
	Busy        bool                 `json:"busy"`
	OperationID string               `json:"operation_id,omitempty"`
	Process     *domain.ProcessState `json:"process,omitempty"`
}
