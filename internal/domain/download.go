package domain

import (
	"fmt"
	"strings"
)

// Mode selects what a download produces
type Mode string

const (
	ModeVideo Mode = "video"
	ModeAudio Mode = "audio"
)

// AutoChoice is the sentinel meaning "let the tool decide" for format and
// quality choices
const AutoChoice = "best"

// DownloadRequest describes a single download. It is a value: the worker
// gets its own copy and nothing changes it after submission.
type DownloadRequest struct {
	URL              string `json:"url" binding:"required"`
	OutputDirectory  string `json:"output_directory,omitempty"`
	SelectedFormatID string `json:"selected_format_id,omitempty"` // empty = auto
	Mode             Mode   `json:"mode,omitempty"`
	Playlist         bool   `json:"playlist,omitempty"`
	WriteSubtitles   bool   `json:"write_subtitles,omitempty"`
	EmbedSubtitles   bool   `json:"embed_subtitles,omitempty"`
	SubtitleLanguage string `json:"subtitle_language,omitempty"`
	EmbedThumbnail   bool   `json:"embed_thumbnail,omitempty"`

	AudioFormat  string `json:"audio_format,omitempty"`  // mp3, m4a, opus... empty or "best" = auto
	AudioQuality string `json:"audio_quality,omitempty"` // 0-10 or bitrate, empty or "best" = auto
	MaxHeight    int    `json:"max_height,omitempty"`    // 0 = best available
	Container    string `json:"container,omitempty"`     // merge output format, empty = tool default
}

// IsAuto reports whether a free-form choice means "let the tool decide"
func IsAuto(choice string) bool {
	choice = strings.TrimSpace(choice)
	return choice == "" || strings.EqualFold(choice, AutoChoice)
}

// EffectiveMode returns the request mode, defaulting to video
func (r DownloadRequest) EffectiveMode() Mode {
	if r.Mode == "" {
		return ModeVideo
	}
	return r.Mode
}

// Validate checks the request fields the core relies on
func (r DownloadRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("url is required")
	}
	if !ValidateMode(r.EffectiveMode()) {
		return fmt.Errorf("invalid mode: %s", r.Mode)
	}
	if r.MaxHeight < 0 {
		return fmt.Errorf("max height cannot be negative")
	}
	return nil
}

// ValidateMode checks if a download mode is valid
func ValidateMode(mode Mode) bool {
	return mode == ModeVideo || mode == ModeAudio
}
