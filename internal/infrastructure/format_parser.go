package infrastructure

import (
	"bufio"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sridip-de/yt-dlp-gui/internal/domain"
)

// ErrHeaderNotFound is returned when the listing has no recognizable header row
var ErrHeaderNotFound = fmt.Errorf("%w: header row not found", domain.ErrParseFailure)

// headerPhrases mark the line that introduces the format table
var headerPhrases = []string{
	"available formats",
	"format code",
}

var (
	audioCodecs = map[string]bool{
		"opus": true, "aac": true, "mp4a": true, "mp3": true, "vorbis": true,
	}
	videoCodecs = map[string]bool{
		"avc1": true, "h264": true, "hevc": true, "h265": true,
		"vp8": true, "vp9": true, "vp09": true, "av01": true,
	}

	resolutionPattern = regexp.MustCompile(`^\d{2,5}x\d{2,5}$`)
	heightPattern     = regexp.MustCompile(`^\d{3,4}p\d*$`)
)

// ParseFormats parses the output of `yt-dlp -F` into a catalog in table order.
//
// A listing with a header but no rows yields an empty catalog and a nil
// error. A listing with no header at all yields ErrHeaderNotFound.
func ParseFormats(text string) (formats []domain.FormatDescriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			formats = nil
			err = fmt.Errorf("%w: %v", domain.ErrParseFailure, r)
		}
	}()

	formats = []domain.FormatDescriptor{}
	seen := make(map[string]bool)
	headerFound := false

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if isHeaderRow(line) {
			headerFound = true
			continue
		}
		if !headerFound {
			continue
		}

		id, ext, tail := splitRow(line)
		if !isPlausibleID(id) {
			continue
		}

		formats = append(formats, domain.FormatDescriptor{
			ID:              uniqueID(id, seen),
			Extension:       ext,
			DescriptionTail: tail,
			MediaKind:       classifyMediaKind(line),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParseFailure, err)
	}

	if !headerFound {
		return nil, ErrHeaderNotFound
	}
	return formats, nil
}

func isHeaderRow(line string) bool {
	lower := strings.ToLower(line)
	for _, phrase := range headerPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}

	hasID, hasExt := false, false
	for _, field := range strings.Fields(lower) {
		switch field {
		case "id":
			hasID = true
		case "ext", "extension":
			hasExt = true
		}
	}
	return hasID && hasExt
}

// splitRow returns the first two whitespace-separated tokens and the
// untouched remainder of the line
func splitRow(line string) (id, ext, tail string) {
	rest := strings.TrimSpace(line)
	id, rest = nextToken(rest)
	ext, rest = nextToken(rest)
	return id, ext, strings.TrimSpace(rest)
}

func nextToken(s string) (token, rest string) {
	s = strings.TrimLeft(s, " \t")
	end := strings.IndexAny(s, " \t")
	if end < 0 {
		return s, ""
	}
	return s[:end], s[end:]
}

func isPlausibleID(id string) bool {
	if id == "" {
		return false
	}
	hasAlnum := false
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			hasAlnum = true
		case c == '_', c == '-', c == '+', c == '/':
		default:
			return false
		}
	}
	return hasAlnum
}

func uniqueID(id string, seen map[string]bool) string {
	candidate := id
	for n := 1; seen[candidate]; n++ {
		candidate = id + "_" + strconv.Itoa(n)
	}
	seen[candidate] = true
	return candidate
}

// classifyMediaKind applies the rules in priority order: video only, audio,
// video, unknown
func classifyMediaKind(line string) domain.MediaKind {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "video only") {
		return domain.MediaVideoOnly
	}

	var hasAudioCodec, hasVideoCodec, hasResolution bool
	for _, field := range strings.Fields(lower) {
		field = strings.Trim(field, ",|")
		codec, _, _ := strings.Cut(field, ".")
		if audioCodecs[codec] {
			hasAudioCodec = true
		}
		if videoCodecs[codec] {
			hasVideoCodec = true
		}
		if resolutionPattern.MatchString(field) || heightPattern.MatchString(field) {
			hasResolution = true
		}
	}

	if strings.Contains(lower, "audio only") || (hasAudioCodec && !hasVideoCodec) {
		return domain.MediaAudio
	}
	if hasResolution || hasVideoCodec {
		return domain.MediaVideo
	}
	return domain.MediaUnknown
}

var mediaKindOrder = map[domain.MediaKind]int{
	domain.MediaVideo:     0,
	domain.MediaVideoOnly: 1,
	domain.MediaAudio:     2,
	domain.MediaUnknown:   3,
}

// SortFormats returns a copy of formats grouped by media kind. Table order is
// kept within each group; the input slice is not modified.
func SortFormats(formats []domain.FormatDescriptor) []domain.FormatDescriptor {
	sorted := make([]domain.FormatDescriptor, len(formats))
	copy(sorted, formats)
	sort.SliceStable(sorted, func(i, j int) bool {
		return mediaKindOrder[sorted[i].MediaKind] < mediaKindOrder[sorted[j].MediaKind]
	})
	return sorted
}
