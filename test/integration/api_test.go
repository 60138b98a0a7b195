//go:build integration && !windows
// +build integration,!windows

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sridip-de/yt-dlp-gui/api"
	"github.com/sridip-de/yt-dlp-gui/api/handlers"
	"github.com/sridip-de/yt-dlp-gui/internal/app"
	"github.com/sridip-de/yt-dlp-gui/internal/domain"
	"github.com/sridip-de/yt-dlp-gui/internal/infrastructure"
)

// fakeYtDlp stands in for yt-dlp: -F prints a listing, a URL containing
// "private" fails, "slow" hangs until terminated, anything else downloads
const fakeYtDlp = `#!/bin/sh
for last; do :; done
case "$*" in
*" -F "*)
	echo "[info] Available formats for abc:"
	echo "ID  EXT  RESOLUTION | VCODEC      ACODEC"
	echo "140 m4a  audio only | audio only  mp4a.40.2"
	echo "137 mp4  1920x1080  | avc1.640028 video only"
	echo "22  mp4  1280x720   | avc1.64001F mp4a.40.2"
	exit 0
	;;
esac
case "$last" in
*private*)
	echo "ERROR: [youtube] abc: Private video" >&2
	exit 1
	;;
*slow*)
	echo "[download]   1.0% of 10.00MiB at 1.00KiB/s ETA 99:00"
	sleep 30
	;;
*)
	echo "[download]  50.0% of 1.00MiB at 1.00MiB/s ETA 00:01"
	echo "[download] 100% of 1.00MiB at 1.00MiB/s ETA 00:00"
	;;
esac
`

type testServer struct {
	server  *httptest.Server
	manager *app.Manager
	cache   *infrastructure.SQLiteCatalogCache
	events  chan domain.Event
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	binary := filepath.Join(dir, "yt-dlp")
	require.NoError(t, os.WriteFile(binary, []byte(fakeYtDlp), 0755))

	config := domain.DefaultConfig()
	config.Downloader.Binary = binary
	config.Downloader.DefaultOutputDir = filepath.Join(dir, "out")
	config.Supervisor.GracePeriod = time.Second
	config.Fetch.IdleTimeout = 5 * time.Second

	cache, err := infrastructure.NewSQLiteCatalogCache(filepath.Join(dir, "catalog.db"), zap.NewNop())
	require.NoError(t, err)

	log := zap.NewNop()
	supervisor := infrastructure.NewSupervisor(&config.Supervisor, log)
	manager := app.NewManager(config, supervisor, cache, nil, log)
	hub := handlers.NewEventHub(log)

	ts := &testServer{manager: manager, cache: cache, events: make(chan domain.Event, 1024)}
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for ev := range manager.Events() {
			hub.Broadcast(ev)
			ts.events <- ev
		}
	}()

	router := api.SetupRouter(manager, hub, api.RouterConfig{Binary: binary}, log)
	ts.server = httptest.NewServer(router)

	t.Cleanup(func() {
		ts.server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, manager.Shutdown(ctx))
		<-pumpDone
		hub.Close()
		cache.Close()
	})
	return ts
}

func (ts *testServer) post(t *testing.T, path string, payload interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(ts.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// waitTerminal returns the terminal event of operation id
func (ts *testServer) waitTerminal(t *testing.T, id string) domain.Event {
	t.Helper()
	timeout := time.After(15 * time.Second)
	for {
		select {
		case ev := <-ts.events:
			if ev.OperationID == id && ev.IsTerminal() {
				return ev
			}
		case <-timeout:
			t.Fatalf("no terminal event for %s", id)
		}
	}
}

func TestAPI_Ready(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Get(ts.server.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_FetchFormatsThroughSupervisor(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.post(t, "/api/v1/formats", map[string]interface{}{"url": "https://example.com/watch?v=abc", "wait": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result domain.CatalogResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, domain.OutcomeSucceeded, result.Outcome)
	assert.False(t, result.FromCache)
	require.Len(t, result.Formats, 3)
	assert.Equal(t, domain.MediaAudio, result.Formats[0].MediaKind)
	assert.Equal(t, domain.MediaVideoOnly, result.Formats[1].MediaKind)
	assert.Equal(t, domain.MediaVideo, result.Formats[2].MediaKind)

	// The second fetch is answered from the catalog cache
	resp = ts.post(t, "/api/v1/formats", map[string]interface{}{"url": "https://example.com/watch?v=abc", "wait": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cached domain.CatalogResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cached))
	assert.True(t, cached.FromCache)
	assert.Equal(t, result.Formats, cached.Formats)
}

func TestAPI_DownloadLifecycle(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.post(t, "/api/v1/downloads", map[string]string{"url": "https://example.com/ok"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var accepted handlers.AcceptedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))

	ev := ts.waitTerminal(t, accepted.OperationID)
	require.NotNil(t, ev.Download)
	assert.Equal(t, domain.OutcomeSucceeded, ev.Download.Outcome)

	resp = ts.post(t, "/api/v1/downloads", map[string]string{"url": "https://example.com/private"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))

	ev = ts.waitTerminal(t, accepted.OperationID)
	require.NotNil(t, ev.Download)
	assert.Equal(t, domain.OutcomeFailed, ev.Download.Outcome)
	require.NotNil(t, ev.Download.Err)
	assert.Equal(t, domain.KindProcessFailure, ev.Download.Err.Kind)
	assert.Equal(t, 1, ev.Download.Err.ExitCode)
	assert.Contains(t, ev.Download.Err.Message, "Private video")
}

func TestAPI_CancelRunningDownload(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.post(t, "/api/v1/downloads", map[string]string{"url": "https://example.com/slow"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var accepted handlers.AcceptedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))

	resp = ts.post(t, "/api/v1/downloads", map[string]string{"url": "https://example.com/ok"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Wait for the process to print before cancelling
	require.Eventually(t, func() bool {
		for _, s := range ts.manager.Slots() {
			if s.Slot == domain.SlotDownload && s.Process != nil {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	started := time.Now()
	resp = ts.post(t, "/api/v1/slots/download/cancel", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	ev := ts.waitTerminal(t, accepted.OperationID)
	require.NotNil(t, ev.Download)
	assert.Equal(t, domain.OutcomeCancelled, ev.Download.Outcome)
	assert.Less(t, time.Since(started), 10*time.Second)
}
