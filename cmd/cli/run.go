package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sridip-de/yt-dlp-gui/internal/app"
	"github.com/sridip-de/yt-dlp-gui/internal/domain"
	"github.com/sridip-de/yt-dlp-gui/internal/infrastructure"
	"github.com/sridip-de/yt-dlp-gui/pkg/logger"
)

// errCancelled reports an operation stopped by the user
var errCancelled = errors.New("cancelled")

var (
	noCache     bool
	sortFormats bool
	request     domain.DownloadRequest
	audioOnly   bool
)

var formatsCmd = &cobra.Command{
	Use:   "formats [url]",
	Short: "List the formats a URL offers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *app.Manager) error {
			op, err := m.FetchFormats(context.Background(), args[0])
			if err != nil {
				return err
			}
			result, err := follow(m, op, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			switch result.Outcome {
			case domain.OutcomeCancelled:
				return errCancelled
			case domain.OutcomeFailed:
				return result.Err
			}

			formats := result.Formats
			if sortFormats {
				formats = infrastructure.SortFormats(formats)
			}
			return printFormats(cmd.OutOrStdout(), formats)
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download [url]",
	Short: "Download a URL with yt-dlp",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := request
		req.URL = args[0]
		if audioOnly {
			req.Mode = domain.ModeAudio
		}

		return withManager(func(m *app.Manager) error {
			op, err := m.Download(context.Background(), req)
			if err != nil {
				return err
			}
			result, err := follow(m, op, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			switch result.Outcome {
			case domain.OutcomeCancelled:
				return errCancelled
			case domain.OutcomeFailed:
				return result.Err
			}
			return nil
		})
	},
}

func init() {
	formatsCmd.Flags().BoolVar(&noCache, "no-cache", false, "Always ask yt-dlp, ignoring the catalog cache")
	formatsCmd.Flags().BoolVar(&sortFormats, "sort", false, "Group formats by kind: video, video only, audio")

	f := downloadCmd.Flags()
	f.StringVarP(&request.OutputDirectory, "output", "o", "", "Output directory (default from config)")
	f.StringVarP(&request.SelectedFormatID, "format", "f", "", "Format ID from 'formats' (default: best)")
	f.BoolVarP(&audioOnly, "audio", "x", false, "Extract audio only")
	f.BoolVar(&request.Playlist, "playlist", false, "Download the whole playlist")
	f.BoolVar(&request.WriteSubtitles, "write-subs", false, "Write subtitle files")
	f.BoolVar(&request.EmbedSubtitles, "embed-subs", false, "Embed subtitles (video only)")
	f.StringVar(&request.SubtitleLanguage, "sub-lang", "", "Subtitle language (default from config)")
	f.BoolVar(&request.EmbedThumbnail, "embed-thumbnail", false, "Embed the thumbnail (audio only)")
	f.StringVar(&request.AudioFormat, "audio-format", "", "Audio format: mp3, m4a, opus... (default: best)")
	f.StringVar(&request.AudioQuality, "audio-quality", "", "Audio quality 0-10 or bitrate (default: best)")
	f.IntVar(&request.MaxHeight, "max-height", 0, "Maximum video height, e.g. 1080 (default: best)")
	f.StringVar(&request.Container, "container", "", "Merge container: mp4, mkv, webm")
}

// withManager builds the operation core from config, runs fn and shuts the
// core down again
func withManager(fn func(m *app.Manager) error) error {
	config, err := app.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Format: "console", OutputPath: "stderr"})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	var cache domain.CatalogCache
	if config.Cache.Enabled && !noCache {
		sqliteCache, err := infrastructure.NewSQLiteCatalogCache(config.Cache.DatabasePath, log)
		if err != nil {
			log.Warn("Catalog cache unavailable", zap.Error(err))
		} else {
			defer sqliteCache.Close()
			cache = sqliteCache
		}
	}

	notifier := infrastructure.NewNotificationService(&config.Notification, log)
	supervisor := infrastructure.NewSupervisor(&config.Supervisor, log)
	manager := app.NewManager(config, supervisor, cache, notifier, log)

	runErr := fn(manager)

	ctx, cancel := context.WithTimeout(context.Background(), config.Supervisor.GracePeriod+5*time.Second)
	defer cancel()
	if err := manager.Shutdown(ctx); err != nil {
		log.Warn("Shutdown incomplete", zap.Error(err))
	}
	return runErr
}

// follow renders the manager's events until op finishes. An interrupt
// cancels the operation instead of killing the CLI.
func follow[T any](m *app.Manager, op *app.Operation[T], out io.Writer) (T, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := newRenderer(terminalWriter(out), verbose)
	for {
		select {
		case ev := <-m.Events():
			r.handle(ev)
			if ev.IsTerminal() && ev.OperationID == op.ID {
				return op.Wait(context.Background())
			}
		case <-ctx.Done():
			stop()
			ctx = context.Background()
			if err := m.Cancel(op.Slot); err != nil {
				var zero T
				return zero, err
			}
		}
	}
}

func printFormats(out io.Writer, formats []domain.FormatDescriptor) error {
	if len(formats) == 0 {
		fmt.Fprintln(out, "No formats found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEXT\tKIND\tDETAILS")
	for _, f := range formats {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.ID, f.Extension, kindLabel(f.MediaKind), truncate(f.DescriptionTail, 70))
	}
	return w.Flush()
}

func kindLabel(kind domain.MediaKind) string {
	return strings.ReplaceAll(string(kind), "_", " ")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// exitCode maps a command error to the process exit status
func exitCode(err error) int {
	var opErr *domain.OpError
	switch {
	case errors.Is(err, errCancelled):
		return 130
	case errors.As(err, &opErr) && opErr.Kind == domain.KindBinaryNotFound:
		return 127
	default:
		return 1
	}
}
