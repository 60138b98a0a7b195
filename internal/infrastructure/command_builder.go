package infrastructure

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sridip-de/yt-dlp-gui/internal/domain"
)

const (
	// OutputTemplate uses yt-dlp's own templating; it is never resolved here
	OutputTemplate = "%(title)s.%(ext)s"

	// FallbackFormat picks the best video and best audio streams, or the best
	// single file when they cannot be merged
	FallbackFormat = "bv*+ba/b"

	// DefaultSubtitleLanguage is used when subtitles are requested without a language
	DefaultSubtitleLanguage = "en"
)

// CommandOptions holds the fixed reliability flags prepended to every invocation
type CommandOptions struct {
	Binary           string
	Retries          int
	SocketTimeout    time.Duration
	ExtractorArgs    string
	UserAgent        string
	SubtitleLanguage string
}

// CommandOptionsFromConfig maps downloader configuration to builder options
func CommandOptionsFromConfig(config *domain.DownloaderConfig) CommandOptions {
	return CommandOptions{
		Binary:           config.Binary,
		Retries:          config.Retries,
		SocketTimeout:    config.SocketTimeout,
		ExtractorArgs:    config.ExtractorArgs,
		UserAgent:        config.UserAgent,
		SubtitleLanguage: config.SubtitleLanguage,
	}
}

// CommandBuilder maps requests to yt-dlp argument vectors. It is pure: it
// never touches the filesystem and the same input always yields the same
// vector.
type CommandBuilder struct {
	opts CommandOptions
}

// NewCommandBuilder creates a new command builder
func NewCommandBuilder(opts CommandOptions) *CommandBuilder {
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.SubtitleLanguage == "" {
		opts.SubtitleLanguage = DefaultSubtitleLanguage
	}
	return &CommandBuilder{opts: opts}
}

// Binary returns the downloader binary name
func (b *CommandBuilder) Binary() string {
	return b.opts.Binary
}

// Argv prefixes args with the binary, ready for the supervisor
func (b *CommandBuilder) Argv(args []string) []string {
	return append([]string{b.opts.Binary}, args...)
}

// BuildListFormats returns the arguments for listing the formats of url
func (b *CommandBuilder) BuildListFormats(url string) []string {
	args := b.reliabilityFlags()
	args = append(args, "--no-playlist", "-F")
	return append(args, "--", url)
}

// BuildDownload returns the arguments for downloading req
func (b *CommandBuilder) BuildDownload(req domain.DownloadRequest) []string {
	args := b.reliabilityFlags()
	mode := req.EffectiveMode()

	if req.Playlist {
		args = append(args, "--yes-playlist")
	} else {
		args = append(args, "--no-playlist")
	}

	switch mode {
	case domain.ModeAudio:
		if id := strings.TrimSpace(req.SelectedFormatID); id != "" {
			args = append(args, "-f", id)
		}
		args = append(args, "-x")
		if !domain.IsAuto(req.AudioFormat) {
			args = append(args, "--audio-format", strings.TrimSpace(req.AudioFormat))
		}
		if !domain.IsAuto(req.AudioQuality) {
			args = append(args, "--audio-quality", strings.TrimSpace(req.AudioQuality))
		}
		if req.EmbedThumbnail {
			args = append(args, "--embed-thumbnail")
		}
	default:
		args = append(args, "-f", videoFormatSelector(req))
		if !domain.IsAuto(req.Container) {
			args = append(args, "--merge-output-format", strings.TrimSpace(req.Container))
		}
	}

	// Embedding needs the subtitle files, so embed implies write
	if req.WriteSubtitles || req.EmbedSubtitles {
		lang := strings.TrimSpace(req.SubtitleLanguage)
		if lang == "" {
			lang = b.opts.SubtitleLanguage
		}
		args = append(args, "--write-subs", "--sub-langs", lang)
		if req.EmbedSubtitles && mode == domain.ModeVideo {
			args = append(args, "--embed-subs")
		}
	}

	args = append(args, "-o", OutputPath(req.OutputDirectory))
	return append(args, "--", req.URL)
}

// OutputPath joins the output directory with the title/extension template
func OutputPath(dir string) string {
	if dir == "" {
		return OutputTemplate
	}
	return filepath.Join(dir, OutputTemplate)
}

func (b *CommandBuilder) reliabilityFlags() []string {
	args := []string{"--no-warnings", "--newline"}
	if b.opts.Retries > 0 {
		args = append(args, "-R", strconv.Itoa(b.opts.Retries))
	}
	if b.opts.SocketTimeout > 0 {
		secs := int(b.opts.SocketTimeout.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		args = append(args, "--socket-timeout", strconv.Itoa(secs))
	}
	if b.opts.ExtractorArgs != "" {
		args = append(args, "--extractor-args", b.opts.ExtractorArgs)
	}
	if b.opts.UserAgent != "" {
		args = append(args, "--http-header", "User-Agent="+b.opts.UserAgent)
	}
	return args
}

func videoFormatSelector(req domain.DownloadRequest) string {
	if id := strings.TrimSpace(req.SelectedFormatID); id != "" {
		return id
	}
	if req.MaxHeight > 0 {
		return "bv*[height<=" + strconv.Itoa(req.MaxHeight) + "]+ba/b"
	}
	return FallbackFormat
}
