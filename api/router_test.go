package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sridip-de/yt-dlp-gui/api/handlers"
	"github.com/sridip-de/yt-dlp-gui/internal/app"
	"github.com/sridip-de/yt-dlp-gui/internal/domain"
	"github.com/sridip-de/yt-dlp-gui/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedHandle prints its lines and exits, or with block set waits for Cancel
type scriptedHandle struct {
	mu        sync.Mutex
	lines     chan string
	once      sync.Once
	exitCode  int
	cancelled bool
	exited    bool
}

func newScriptedHandle(lines []string, exitCode int, block bool) *scriptedHandle {
	h := &scriptedHandle{lines: make(chan string, len(lines)), exitCode: exitCode}
	for _, line := range lines {
		h.lines <- line
	}
	if !block {
		h.once.Do(func() { close(h.lines) })
	}
	return h
}

func (h *scriptedHandle) ReadLine(ctx context.Context) (string, error) {
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

func (h *scriptedHandle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
	h.once.Do(func() { close(h.lines) })
}

func (h *scriptedHandle) Wait() (int, error) {
	for range h.lines {
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exited = true
	if h.cancelled {
		return -1, errors.New("signal: terminated")
	}
	return h.exitCode, nil
}

func (h *scriptedHandle) State() domain.ProcessState {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return domain.ProcessState{Phase: domain.PhaseExited, ExitCode: h.exitCode}
	}
	return domain.ProcessState{Phase: domain.PhaseRunning}
}

func (h *scriptedHandle) CancelRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

func (h *scriptedHandle) Tail() []string      { return nil }
func (h *scriptedHandle) CommandLine() string { return "yt-dlp scripted" }

type scriptedRunner struct {
	mu      sync.Mutex
	handles []*scriptedHandle
}

func (r *scriptedRunner) Start(ctx context.Context, argv []string) (domain.ProcessHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.handles) == 0 {
		return nil, domain.ErrSpawnFailed
	}
	h := r.handles[0]
	r.handles = r.handles[1:]
	return h, nil
}

var formatListing = []string{
	"[info] Available formats for abc:",
	"ID  EXT  RESOLUTION | VCODEC      ACODEC",
	"140 m4a  audio only | audio only  mp4a.40.2",
	"22  mp4  1280x720   | avc1.64001F mp4a.40.2",
}

type testEnv struct {
	router  *gin.Engine
	manager *app.Manager
	hub     *handlers.EventHub
}

func setupTestRouter(t *testing.T, logsDir string, handles ...*scriptedHandle) *testEnv {
	t.Helper()
	config := domain.DefaultConfig()
	config.Downloader.DefaultOutputDir = "/downloads"

	manager := app.NewManager(config, &scriptedRunner{handles: handles}, nil, nil, zap.NewNop())
	hub := handlers.NewEventHub(zap.NewNop())

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range manager.Events() {
			hub.Broadcast(ev)
		}
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
		<-drained
		hub.Close()
	})

	router := SetupRouter(manager, hub, RouterConfig{Binary: "yt-dlp-missing-for-tests", LogsDir: logsDir}, zap.NewNop())
	return &testEnv{router: router, manager: manager, hub: hub}
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestAPI_FetchFormatsWait(t *testing.T) {
	env := setupTestRouter(t, "", newScriptedHandle(formatListing, 0, false))

	w := env.do(http.MethodPost, "/api/v1/formats", map[string]interface{}{"url": "https://example.com/v", "wait": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result domain.CatalogResult
	decode(t, w, &result)
	assert.Equal(t, domain.OutcomeSucceeded, result.Outcome)
	require.Len(t, result.Formats, 2)
	assert.Equal(t, "140", result.Formats[0].ID)
	assert.Equal(t, domain.MediaAudio, result.Formats[0].MediaKind)
}

func TestAPI_FetchFormatsAsync(t *testing.T) {
	env := setupTestRouter(t, "", newScriptedHandle(formatListing, 0, false))

	w := env.do(http.MethodPost, "/api/v1/formats", map[string]string{"url": "https://example.com/v"})
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted handlers.AcceptedResponse
	decode(t, w, &accepted)
	assert.Equal(t, domain.SlotFetch, accepted.Slot)

	require.Eventually(t, func() bool {
		w := env.do(http.MethodGet, "/api/v1/operations/"+accepted.OperationID, nil)
		var status app.OperationStatus
		return w.Code == http.StatusOK &&
			json.Unmarshal(w.Body.Bytes(), &status) == nil &&
			status.Outcome == domain.OutcomeSucceeded
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAPI_BadRequests(t *testing.T) {
	env := setupTestRouter(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"formats without url", http.MethodPost, "/api/v1/formats", map[string]string{}, http.StatusBadRequest},
		{"download without url", http.MethodPost, "/api/v1/downloads", map[string]string{"mode": "audio"}, http.StatusBadRequest},
		{"download bad mode", http.MethodPost, "/api/v1/downloads", map[string]string{"url": "https://example.com/v", "mode": "gif"}, http.StatusBadRequest},
		{"cancel unknown slot", http.MethodPost, "/api/v1/slots/upload/cancel", nil, http.StatusBadRequest},
		{"unknown operation", http.MethodGet, "/api/v1/operations/nope", nil, http.StatusNotFound},
		{"unknown route", http.MethodGet, "/api/v1/nothing", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestAPI_DownloadBusyAndCancel(t *testing.T) {
	env := setupTestRouter(t, "", newScriptedHandle([]string{"[download]   5.0% ETA 01:00"}, 0, true))

	w := env.do(http.MethodPost, "/api/v1/downloads", map[string]string{"url": "https://example.com/v", "mode": "audio"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var accepted handlers.AcceptedResponse
	decode(t, w, &accepted)
	assert.Equal(t, domain.SlotDownload, accepted.Slot)

	w = env.do(http.MethodPost, "/api/v1/downloads", map[string]string{"url": "https://example.com/other"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodGet, "/api/v1/slots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var slots struct {
		Slots []app.SlotStatus `json:"slots"`
	}
	decode(t, w, &slots)
	require.Len(t, slots.Slots, 2)
	assert.False(t, slots.Slots[0].Busy)
	assert.True(t, slots.Slots[1].Busy)
	assert.Equal(t, accepted.OperationID, slots.Slots[1].OperationID)

	w = env.do(http.MethodPost, "/api/v1/slots/download/cancel", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		status, err := env.manager.GetOperation(accepted.OperationID)
		return err == nil && status.Outcome == domain.OutcomeCancelled
	}, 2*time.Second, 10*time.Millisecond)

	// Cancelling an idle slot is fine
	w = env.do(http.MethodPost, "/api/v1/slots/fetch/cancel", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestAPI_Health(t *testing.T) {
	env := setupTestRouter(t, "")

	w := env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health handlers.HealthResponse
	decode(t, w, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Len(t, health.Slots, 2)

	w = env.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "yt-dlp-missing-for-tests")
}

func TestAPI_Logs(t *testing.T) {
	dir := t.TempDir()
	ml, err := logger.NewMultiLogger(logger.MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)
	ml.Log(logger.CategoryFetch, zapcore.InfoLevel, "Found 2 formats")
	ml.Log(logger.CategoryFetch, zapcore.InfoLevel, "Fetching available formats...")
	require.NoError(t, ml.Close())

	env := setupTestRouter(t, dir)

	w := env.do(http.MethodGet, "/api/v1/logs/fetch", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		Count   int               `json:"count"`
		Entries []logger.LogEntry `json:"entries"`
	}
	decode(t, w, &logs)
	assert.Equal(t, 2, logs.Count)

	w = env.do(http.MethodGet, "/api/v1/logs/fetch/search?q=found", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &logs)
	assert.Equal(t, 1, logs.Count)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/logs/queue", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/logs/fetch?date=yesterday", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/logs/fetch/search", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/v1/logs/download/export?date=2001-01-01", nil).Code)

	w = env.do(http.MethodGet, "/api/v1/logs/fetch/export", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	w = env.do(http.MethodGet, "/api/v1/logs/categories", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "download")
}

func TestAPI_LogsDisabled(t *testing.T) {
	env := setupTestRouter(t, "")
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/v1/logs/fetch", nil).Code)
}

func TestAPI_EventStream(t *testing.T) {
	env := setupTestRouter(t, "")
	server := httptest.NewServer(env.router)
	defer server.Close()

	// Published before the client connects: delivered from the backlog
	env.hub.Broadcast(domain.Event{Seq: 1, Slot: domain.SlotFetch})
	env.hub.Broadcast(domain.Event{Seq: 2, Slot: domain.SlotDownload})

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/events?slot=download"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEvent := func() domain.Event {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev domain.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	}

	assert.Equal(t, uint64(2), readEvent().Seq)

	require.Eventually(t, func() bool { return env.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	env.hub.Broadcast(domain.Event{Seq: 3, Slot: domain.SlotFetch})
	env.hub.Broadcast(domain.Event{Seq: 4, Slot: domain.SlotDownload})
	assert.Equal(t, uint64(4), readEvent().Seq)

	env.hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived), "got %v", err)
}

func TestAPI_EventStreamRejectsBadSlot(t *testing.T) {
	env := setupTestRouter(t, "")
	w := env.do(http.MethodGet, "/api/v1/events?slot=upload", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
