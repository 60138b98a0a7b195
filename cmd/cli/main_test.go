package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sridip-de/yt-dlp-gui/internal/app"
	"github.com/sridip-de/yt-dlp-gui/internal/domain"
)

func logEvent(level domain.Level, msg string) domain.Event {
	return domain.Event{Log: &domain.LogEvent{Level: level, Message: msg}}
}

func progressEvent(fraction float64, raw string) domain.Event {
	return domain.Event{Progress: &domain.ProgressEvent{Fraction: &fraction, RawLine: raw, ReplaceLast: true}}
}

func TestRenderer_Logs(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out, false)

	r.handle(logEvent(domain.LevelInfo, "Starting download..."))
	r.handle(logEvent(domain.LevelDebug, "$ yt-dlp --no-warnings"))
	r.handle(logEvent(domain.LevelWarn, "Could not parse format listing"))
	r.handle(logEvent(domain.LevelError, "[FAILED] ERROR: Private video"))
	r.handle(domain.Event{Progress: &domain.ProgressEvent{RawLine: "[youtube] abc: Downloading webpage"}})

	text := out.String()
	assert.Contains(t, text, "Starting download...\n")
	assert.NotContains(t, text, "$ yt-dlp")
	assert.Contains(t, text, "warning: Could not parse format listing\n")
	assert.Contains(t, text, "error: [FAILED] ERROR: Private video\n")
	assert.NotContains(t, text, "Downloading webpage")
}

func TestRenderer_VerboseShowsRawOutput(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out, true)

	r.handle(logEvent(domain.LevelDebug, "$ yt-dlp --no-warnings"))
	r.handle(domain.Event{Progress: &domain.ProgressEvent{RawLine: "[youtube] abc: Downloading webpage"}})

	assert.Contains(t, out.String(), "$ yt-dlp --no-warnings")
	assert.Contains(t, out.String(), "Downloading webpage")
}

func TestRenderer_ProgressBar(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out, false)

	r.handle(progressEvent(0.25, "[download]  25.0% of 1MiB ETA 00:03"))
	require.NotNil(t, r.bar)
	assert.Equal(t, 250, r.last)
	assert.False(t, r.full)

	r.handle(progressEvent(1.0, "[download] 100% of 1MiB ETA 00:00"))
	assert.True(t, r.full)
	first := r.bar

	// A second stream starts a fresh bar
	r.handle(progressEvent(0.1, "[download]  10.0% of 3MiB ETA 00:09"))
	assert.NotSame(t, first, r.bar)
	assert.False(t, r.full)
	assert.Equal(t, 100, r.last)

	assert.Contains(t, out.String(), "downloading")
}

func TestPrintFormats(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printFormats(&out, []domain.FormatDescriptor{
		{ID: "140", Extension: "m4a", DescriptionTail: "audio only | mp4a.40.2", MediaKind: domain.MediaAudio},
		{ID: "137", Extension: "mp4", DescriptionTail: "1920x1080 | avc1 video only", MediaKind: domain.MediaVideoOnly},
	}))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "ID")
	assert.Contains(t, string(lines[1]), "140")
	assert.Contains(t, string(lines[2]), "video only")

	out.Reset()
	require.NoError(t, printFormats(&out, nil))
	assert.Equal(t, "No formats found\n", out.String())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"cancelled", errCancelled, 130},
		{"binary missing", &domain.OpError{Kind: domain.KindBinaryNotFound, ExitCode: domain.NoExitCode}, 127},
		{"wrapped binary missing", fmt.Errorf("run: %w", &domain.OpError{Kind: domain.KindBinaryNotFound}), 127},
		{"process failure", &domain.OpError{Kind: domain.KindProcessFailure, ExitCode: 1}, 1},
		{"other", fmt.Errorf("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(append([]string{"config", "init"}, args...))
		err := rootCmd.Execute()
		return out.String(), err
	}
	defer func() {
		rootCmd.SetArgs(nil)
		forceConfig = false
	}()

	out, err := run(path)
	require.NoError(t, err)
	assert.Equal(t, "Wrote "+path+"\n", out)

	loaded, err := app.LoadConfig(path)
	require.NoError(t, err)
	defaults := domain.DefaultConfig()
	assert.Equal(t, defaults.Downloader.Binary, loaded.Downloader.Binary)
	assert.Equal(t, defaults.Supervisor.GracePeriod, loaded.Supervisor.GracePeriod)
	assert.Equal(t, defaults.Fetch.IdleTimeout, loaded.Fetch.IdleTimeout)

	// An existing file is kept unless forced
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0644))
	_, err = run(path)
	assert.ErrorContains(t, err, "already exists")
	loaded, err = app.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, loaded.Server.Port)

	_, err = run("--force", path)
	require.NoError(t, err)
	loaded, err = app.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, defaults.Server.Port, loaded.Server.Port)
}

func TestConfigPath(t *testing.T) {
	defer func() { configFile = "" }()

	got, err := configPath([]string{"/tmp/explicit.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/explicit.yaml", got)

	configFile = "/etc/ytdlw/config.yaml"
	got, err = configPath(nil)
	require.NoError(t, err)
	assert.Equal(t, "/etc/ytdlw/config.yaml", got)

	configFile = ""
	t.Setenv("HOME", "/home/tester")
	got, err = configPath(nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/tester", ".ytdlw", "config.yaml"), got)
}
