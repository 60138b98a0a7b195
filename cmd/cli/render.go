package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/schollz/progressbar/v3"

	"github.com/sridip-de/yt-dlp-gui/internal/domain"
)

const barMax = 1000

// renderer prints events for a terminal. Progress lines drive a single
// bar; everything else is printed above it.
type renderer struct {
	out     io.Writer
	verbose bool
	bar     *progressbar.ProgressBar
	full    bool // bar reached 100% and printed its final newline
	last    int
}

func newRenderer(out io.Writer, verbose bool) *renderer {
	return &renderer{out: out, verbose: verbose}
}

func (r *renderer) handle(ev domain.Event) {
	switch {
	case ev.Log != nil:
		if ev.Log.Level == domain.LevelDebug && !r.verbose {
			return
		}
		r.println(formatLog(ev.Log))

	case ev.Progress != nil:
		if ev.Progress.HasFraction() {
			r.setProgress(*ev.Progress.Fraction)
			return
		}
		if r.verbose && ev.Progress.RawLine != "" {
			r.println(ev.Progress.RawLine)
		}
	}
}

func (r *renderer) setProgress(fraction float64) {
	value := int(math.Round(fraction * barMax))

	// yt-dlp restarts from zero for each stream of a merged format
	if r.bar != nil && value < r.last {
		if !r.full {
			fmt.Fprintln(r.out)
		}
		r.bar, r.full = nil, false
	}
	r.last = value

	if r.bar == nil {
		r.bar = progressbar.NewOptions(barMax,
			progressbar.OptionSetWriter(r.out),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetDescription("[cyan]downloading[reset]"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(r.out) }),
		)
	}
	if r.full {
		return
	}
	_ = r.bar.Set(value)
	r.full = value >= barMax
}

// println writes line without tearing the progress bar
func (r *renderer) println(line string) {
	live := r.bar != nil && !r.full
	if live {
		_ = r.bar.Clear()
	}
	fmt.Fprintln(r.out, line)
	if live {
		_ = r.bar.RenderBlank()
	}
}

// terminalWriter returns a writer that understands ANSI colors on every
// platform when w is the process's stderr
func terminalWriter(w io.Writer) io.Writer {
	if w == os.Stderr {
		return colorable.NewColorableStderr()
	}
	return w
}

func formatLog(ev *domain.LogEvent) string {
	switch ev.Level {
	case domain.LevelWarn:
		return "warning: " + ev.Message
	case domain.LevelError:
		return "error: " + ev.Message
	default:
		return ev.Message
	}
}
