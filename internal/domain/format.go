package domain

// MediaKind classifies what a format carries
type MediaKind string

const (
	MediaVideo     MediaKind = "video"
	MediaAudio     MediaKind = "audio"
	MediaVideoOnly MediaKind = "video_only"
	MediaUnknown   MediaKind = "unknown"
)

// FormatDescriptor is one row of a source's format catalog. IDs are unique
// within a catalog; repeated codes are suffixed _1, _2, ...
type FormatDescriptor struct {
	ID              string    `json:"id"`
	Extension       string    `json:"extension"`
	DescriptionTail string    `json:"description"`
	MediaKind       MediaKind `json:"media_kind"`
}
