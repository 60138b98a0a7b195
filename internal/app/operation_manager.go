package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sridip-de/yt-dlp-gui/internal/domain"
	"github.com/sridip-de/yt-dlp-gui/internal/infrastructure"
	"go.uber.org/zap"
)

// ErrManagerClosed is returned when submitting after Shutdown
var ErrManagerClosed = errors.New("operation manager closed")

const maxRetainedOperations = 100

// slotState tracks the single operation a slot may own
type slotState struct {
	operationID   string
	handle        domain.ProcessHandle
	cancelPending bool
}

// Manager runs fetch and download operations. Each slot owns at most one
// process at a time; all events flow through one EventBus.
type Manager struct {
	runner   domain.ProcessRunner
	builder  *infrastructure.CommandBuilder
	tracker  *infrastructure.ProgressTracker
	cache    domain.CatalogCache
	notifier domain.Notifier
	bus      *EventBus
	config   *domain.Config
	logger   *zap.Logger

	mu       sync.Mutex
	slots    map[domain.Slot]*slotState
	statuses map[string]*OperationStatus
	order    []string
	retain   int
	closed   bool
	wg       sync.WaitGroup
}

// NewManager creates a new operation manager. cache and notifier may be nil.
func NewManager(
	config *domain.Config,
	runner domain.ProcessRunner,
	cache domain.CatalogCache,
	notifier domain.Notifier,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		runner:   runner,
		builder:  infrastructure.NewCommandBuilder(infrastructure.CommandOptionsFromConfig(&config.Downloader)),
		tracker:  infrastructure.NewProgressTracker(),
		cache:    cache,
		notifier: notifier,
		bus:      NewEventBus(config.Events.BufferSize),
		config:   config,
		logger:   logger,
		slots:    make(map[domain.Slot]*slotState),
		statuses: make(map[string]*OperationStatus),
		retain:   maxRetainedOperations,
	}
}

// Events returns the ordered event stream for the consumer
func (m *Manager) Events() <-chan domain.Event {
	return m.bus.Events()
}

// FetchFormats lists the formats url offers. ctx values are kept but its
// cancellation is not; use Cancel(SlotFetch) to stop the operation.
func (m *Manager) FetchFormats(ctx context.Context, url string) (*Operation[domain.CatalogResult], error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	op := newOperation[domain.CatalogResult](uuid.New().String(), domain.SlotFetch)
	if err := m.reserve(op.ID, op.Slot, url, op.StartedAt); err != nil {
		return nil, err
	}

	m.wg.Add(1)
	go m.runFetch(context.WithoutCancel(ctx), op, url)
	return op, nil
}

// Download runs req. An empty output directory is replaced by the
// configured default; the directory itself is never created or checked.
func (m *Manager) Download(ctx context.Context, req domain.DownloadRequest) (*Operation[domain.DownloadResult], error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid download request: %w", err)
	}
	req.URL = strings.TrimSpace(req.URL)
	if strings.TrimSpace(req.OutputDirectory) == "" {
		req.OutputDirectory = m.config.Downloader.DefaultOutputDir
	}

	op := newOperation[domain.DownloadResult](uuid.New().String(), domain.SlotDownload)
	if err := m.reserve(op.ID, op.Slot, req.URL, op.StartedAt); err != nil {
		return nil, err
	}

	m.wg.Add(1)
	go m.runDownload(context.WithoutCancel(ctx), op, req)
	return op, nil
}

// Cancel requests cancellation of whatever slot is running. Cancelling an
// idle slot is not an error; it publishes a single Info event.
func (m *Manager) Cancel(slot domain.Slot) error {
	if !domain.ValidateSlot(slot) {
		return fmt.Errorf("invalid slot: %s", slot)
	}

	m.mu.Lock()
	st := m.slots[slot]
	if st == nil {
		m.mu.Unlock()
		m.logger.Info("Cancel ignored, slot idle", zap.String("slot", string(slot)))
		m.emit(slot, "", domain.LevelInfo, fmt.Sprintf("Nothing to cancel: no %s operation is running", slot), nil)
		return nil
	}
	opID := st.operationID
	handle := st.handle
	if handle == nil {
		st.cancelPending = true
	}
	m.mu.Unlock()

	m.logger.Info("Cancelling operation",
		zap.String("slot", string(slot)),
		zap.String("operation_id", opID))
	m.emit(slot, opID, domain.LevelInfo, fmt.Sprintf("Cancelling %s operation...", slot), nil)
	if handle != nil {
		handle.Cancel()
	}
	return nil
}

// Slots reports the state of both operation slots
func (m *Manager) Slots() []SlotStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SlotStatus, 0, 2)
	for _, slot := range []domain.Slot{domain.SlotFetch, domain.SlotDownload} {
		status := SlotStatus{Slot: slot}
		if st := m.slots[slot]; st != nil {
			status.Busy = true
			status.OperationID = st.operationID
			if st.handle != nil {
				state := st.handle.State()
				status.Process = &state
			}
		}
		out = append(out, status)
	}
	return out
}

// GetOperation returns a snapshot of a recent operation
func (m *Manager) GetOperation(id string) (*OperationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, ok := m.statuses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOperationNotFound, id)
	}
	snapshot := *status
	return &snapshot, nil
}

// Shutdown cancels running operations, waits for their workers and closes
// the event bus
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	var handles []domain.ProcessHandle
	for _, st := range m.slots {
		st.cancelPending = true
		if st.handle != nil {
			handles = append(handles, st.handle)
		}
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var result *multierror.Error
	select {
	case <-done:
	case <-ctx.Done():
		m.mu.Lock()
		for slot, st := range m.slots {
			result = multierror.Append(result,
				fmt.Errorf("%s operation %s still running: %w", slot, st.operationID, ctx.Err()))
		}
		m.mu.Unlock()
		if result == nil {
			result = multierror.Append(result, ctx.Err())
		}
	}

	m.bus.Close()
	return result.ErrorOrNil()
}

// reserve claims slot for an operation or fails with ErrSlotBusy
func (m *Manager) reserve(opID string, slot domain.Slot, url string, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if st := m.slots[slot]; st != nil {
		return fmt.Errorf("%w: %s operation %s is still running", domain.ErrSlotBusy, slot, st.operationID)
	}

	m.slots[slot] = &slotState{operationID: opID}
	m.statuses[opID] = &OperationStatus{
		ID:        opID,
		Slot:      slot,
		URL:       url,
		Running:   true,
		StartedAt: startedAt,
	}
	m.order = append(m.order, opID)
	if cut := len(m.order) - m.retain; cut > 0 {
		// Running operations stay listed so a later trim can evict them
		kept := make([]string, 0, m.retain+len(m.slots))
		for _, old := range m.order[:cut] {
			if s, ok := m.statuses[old]; ok && s.Running {
				kept = append(kept, old)
				continue
			}
			delete(m.statuses, old)
		}
		m.order = append(kept, m.order[cut:]...)
	}
	return nil
}

// start spawns argv for the slot's operation. It returns a nil handle and
// nil error when a cancel arrived before the process could be started.
func (m *Manager) start(ctx context.Context, slot domain.Slot, opID string, argv []string) (domain.ProcessHandle, error) {
	m.mu.Lock()
	if st := m.slots[slot]; st != nil && st.cancelPending {
		m.mu.Unlock()
		return nil, nil
	}
	m.mu.Unlock()

	handle, err := m.runner.Start(ctx, argv)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	st := m.slots[slot]
	pending := false
	if st != nil && st.operationID == opID {
		st.handle = handle
		pending = st.cancelPending
	}
	m.mu.Unlock()

	if pending {
		handle.Cancel()
	}
	return handle, nil
}

// release frees the slot; the handle, if any, has already exited
func (m *Manager) release(slot domain.Slot, opID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st := m.slots[slot]; st != nil && st.operationID == opID {
		delete(m.slots, slot)
	}
}

func (m *Manager) record(opID string, outcome domain.Outcome, catalog *domain.CatalogResult, download *domain.DownloadResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.statuses[opID]
	if !ok {
		return
	}
	now := time.Now()
	status.Running = false
	status.Outcome = outcome
	status.FinishedAt = &now
	status.Catalog = catalog
	status.Download = download
}

func (m *Manager) runFetch(ctx context.Context, op *Operation[domain.CatalogResult], url string) {
	defer m.wg.Done()

	log := m.logger.With(zap.String("operation_id", op.ID), zap.String("url", url))
	result := m.fetch(ctx, op, url, log)

	m.release(op.Slot, op.ID)
	m.record(op.ID, result.Outcome, &result, nil)
	m.bus.Publish(domain.Event{OperationID: op.ID, Slot: op.Slot, Catalog: &result})
	op.finish(result)
}

func (m *Manager) fetch(ctx context.Context, op *Operation[domain.CatalogResult], url string, log *zap.Logger) domain.CatalogResult {
	result := domain.CatalogResult{OperationID: op.ID, URL: url, Formats: []domain.FormatDescriptor{}}
	m.emit(op.Slot, op.ID, domain.LevelInfo, "Fetching available formats...", map[string]string{"url": url})

	if m.cache != nil {
		formats, ok, err := m.cache.Get(url, m.config.Cache.TTL)
		if err != nil {
			log.Warn("Catalog cache read failed", zap.Error(err))
			m.emit(op.Slot, op.ID, domain.LevelWarn, fmt.Sprintf("Catalog cache unavailable: %v", err), nil)
		} else if ok {
			log.Info("Catalog served from cache", zap.Int("formats", len(formats)))
			m.emit(op.Slot, op.ID, domain.LevelInfo, fmt.Sprintf("Found %d formats (cached)", len(formats)), nil)
			result.Formats = formats
			result.FromCache = true
			result.Outcome = domain.OutcomeSucceeded
			return result
		}
	}

	argv := m.builder.Argv(m.builder.BuildListFormats(url))
	cmdLine := infrastructure.FormatCommandLine(argv)
	m.emit(op.Slot, op.ID, domain.LevelDebug, "$ "+cmdLine, nil)

	handle, err := m.start(ctx, op.Slot, op.ID, argv)
	if err != nil {
		return m.failCatalog(result, infrastructure.Classify(op.Slot, domain.NoExitCode, nil, err), cmdLine, domain.NoExitCode, nil, err, log)
	}
	if handle == nil {
		return m.cancelCatalog(result)
	}

	var output strings.Builder
	var timeoutErr error
	idle := m.config.Fetch.IdleTimeout
	for {
		lineCtx, cancel := context.WithTimeout(ctx, idle)
		line, err := handle.ReadLine(lineCtx)
		cancel()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				timeoutErr = fmt.Errorf("%w: no output for %s", domain.ErrTimeout, idle)
				log.Warn("Format listing timed out", zap.Duration("idle_timeout", idle))
			} else {
				timeoutErr = err
			}
			handle.Cancel()
			break
		}
		output.WriteString(line)
		output.WriteByte('\n')
		m.emit(op.Slot, op.ID, domain.LevelDebug, line, nil)
	}

	code, waitErr := handle.Wait()
	tail := handle.Tail()

	if timeoutErr != nil {
		kind := infrastructure.Classify(op.Slot, code, tail, timeoutErr)
		return m.failCatalog(result, kind, handle.CommandLine(), code, tail, timeoutErr, log)
	}
	if handle.CancelRequested() {
		return m.cancelCatalog(result)
	}
	if kind := infrastructure.Classify(op.Slot, code, tail, waitErr); kind != "" {
		return m.failCatalog(result, kind, handle.CommandLine(), code, tail, waitErr, log)
	}

	formats, err := infrastructure.ParseFormats(output.String())
	if err != nil {
		// Degrade to an empty catalog rather than failing the operation
		log.Warn("Format listing could not be parsed", zap.Error(err))
		result.Warning = err.Error()
		m.emit(op.Slot, op.ID, domain.LevelWarn, fmt.Sprintf("Could not parse format listing: %v", err), nil)
		result.Outcome = domain.OutcomeSucceeded
		return result
	}

	result.Formats = formats
	result.Outcome = domain.OutcomeSucceeded
	log.Info("Formats fetched", zap.Int("formats", len(formats)))
	m.emit(op.Slot, op.ID, domain.LevelInfo, fmt.Sprintf("Found %d formats", len(formats)), nil)

	if m.cache != nil {
		if err := m.cache.Put(url, formats); err != nil {
			log.Warn("Catalog cache write failed", zap.Error(err))
		}
	}
	return result
}

func (m *Manager) failCatalog(result domain.CatalogResult, kind domain.ErrorKind, cmdLine string, code int, tail []string, cause error, log *zap.Logger) domain.CatalogResult {
	opErr := infrastructure.NewFailure(kind, domain.SlotFetch, cmdLine, code, tail, cause)
	log.Error("Format listing failed",
		zap.String("kind", string(kind)),
		zap.Int("exit_code", code),
		zap.Error(opErr))
	m.emit(domain.SlotFetch, result.OperationID, domain.LevelError, "[FAILED] "+opErr.Message, failureDetails(opErr))

	result.Outcome = domain.OutcomeFailed
	result.Err = opErr
	return result
}

func (m *Manager) cancelCatalog(result domain.CatalogResult) domain.CatalogResult {
	m.emit(domain.SlotFetch, result.OperationID, domain.LevelInfo, "[CANCELLED] Format listing cancelled", nil)
	result.Outcome = domain.OutcomeCancelled
	return result
}

func (m *Manager) runDownload(ctx context.Context, op *Operation[domain.DownloadResult], req domain.DownloadRequest) {
	defer m.wg.Done()

	log := m.logger.With(zap.String("operation_id", op.ID), zap.String("url", req.URL))
	result := m.download(ctx, op, req, log)

	m.release(op.Slot, op.ID)
	m.record(op.ID, result.Outcome, nil, &result)
	m.bus.Publish(domain.Event{OperationID: op.ID, Slot: op.Slot, Download: &result})
	op.finish(result)

	// The slot is already free, so a slow notifier only delays Shutdown
	if m.notifier != nil {
		switch result.Outcome {
		case domain.OutcomeSucceeded:
			m.notifier.NotifyDownloadCompleted(req.URL)
		case domain.OutcomeFailed:
			m.notifier.NotifyDownloadFailed(req.URL, result.Err)
		}
	}
}

func (m *Manager) download(ctx context.Context, op *Operation[domain.DownloadResult], req domain.DownloadRequest, log *zap.Logger) domain.DownloadResult {
	result := domain.DownloadResult{OperationID: op.ID, Request: req}

	argv := m.builder.Argv(m.builder.BuildDownload(req))
	cmdLine := infrastructure.FormatCommandLine(argv)
	log.Info("Starting download", zap.String("command", cmdLine))
	m.emit(op.Slot, op.ID, domain.LevelInfo, "Starting download...", map[string]string{
		"url":    req.URL,
		"mode":   string(req.EffectiveMode()),
		"output": req.OutputDirectory,
	})
	m.emit(op.Slot, op.ID, domain.LevelInfo, "$ "+cmdLine, nil)

	handle, err := m.start(ctx, op.Slot, op.ID, argv)
	if err != nil {
		return m.failDownload(result, infrastructure.Classify(op.Slot, domain.NoExitCode, nil, err), cmdLine, domain.NoExitCode, nil, err, log)
	}
	if handle == nil {
		return m.cancelDownload(result)
	}

	sawErrorLine := false
	for {
		line, err := handle.ReadLine(ctx)
		if err != nil {
			if err != io.EOF {
				log.Warn("Output stream interrupted", zap.Error(err))
			}
			break
		}
		if infrastructure.IsErrorLine(line) {
			sawErrorLine = true
		}
		progress := m.tracker.OnLine(line)
		m.bus.Publish(domain.Event{OperationID: op.ID, Slot: op.Slot, Progress: &progress})
	}

	code, waitErr := handle.Wait()
	tail := handle.Tail()

	if handle.CancelRequested() {
		return m.cancelDownload(result)
	}
	kind := infrastructure.Classify(op.Slot, code, tail, waitErr)
	if kind == "" && sawErrorLine {
		// The error line has scrolled out of the tail; a zero exit still does not count
		kind = domain.KindProcessFailure
	}
	if kind != "" {
		return m.failDownload(result, kind, handle.CommandLine(), code, tail, waitErr, log)
	}

	done := 1.0
	m.bus.Publish(domain.Event{OperationID: op.ID, Slot: op.Slot, Progress: &domain.ProgressEvent{Fraction: &done, ReplaceLast: true}})
	m.emit(op.Slot, op.ID, domain.LevelInfo, "[SUCCESS] Download completed", nil)
	log.Info("Download completed")

	result.Outcome = domain.OutcomeSucceeded
	return result
}

func (m *Manager) failDownload(result domain.DownloadResult, kind domain.ErrorKind, cmdLine string, code int, tail []string, cause error, log *zap.Logger) domain.DownloadResult {
	opErr := infrastructure.NewFailure(kind, domain.SlotDownload, cmdLine, code, tail, cause)
	log.Error("Download failed",
		zap.String("kind", string(kind)),
		zap.Int("exit_code", code),
		zap.Error(opErr))
	m.emit(domain.SlotDownload, result.OperationID, domain.LevelError, "[FAILED] "+opErr.Message, failureDetails(opErr))

	result.Outcome = domain.OutcomeFailed
	result.Err = opErr
	return result
}

func (m *Manager) cancelDownload(result domain.DownloadResult) domain.DownloadResult {
	m.emit(domain.SlotDownload, result.OperationID, domain.LevelInfo, "[CANCELLED] Download cancelled", nil)
	result.Outcome = domain.OutcomeCancelled
	return result
}

// emit publishes a LogEvent in the slot's category
func (m *Manager) emit(slot domain.Slot, opID string, level domain.Level, msg string, details map[string]string) {
	m.bus.Publish(domain.Event{
		OperationID: opID,
		Slot:        slot,
		Log: &domain.LogEvent{
			Level:    level,
			Category: string(slot),
			Message:  msg,
			Details:  details,
		},
	})
}

func failureDetails(err *domain.OpError) map[string]string {
	details := map[string]string{
		"kind":    string(err.Kind),
		"command": err.CommandLine,
	}
	if err.ExitCode != domain.NoExitCode {
		details["exit_code"] = strconv.Itoa(err.ExitCode)
	}
	return details
}
