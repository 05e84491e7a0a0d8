// Package consultation maps the consultation modes a patient can pick to the
// subtype strings the hospital API expects.
package consultation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Modality is how a consultation is held.
type Modality string

const (
	Video Modality = "video"
	Audio Modality = "audio"
)

// Wire values accepted by the hospital API as consultation_subtype.
const (
	WireVideo = "by video call"
	WireAudio = "by voicecall"
)

// ErrUnknownModality is returned by strict parsers for values outside the wire table.
var ErrUnknownModality = errors.New("consultation: unknown modality")

var wireByModality = map[Modality]string{
	Video: WireVideo,
	Audio: WireAudio,
}

var modalityByWire = map[string]Modality{
	WireVideo: Video,
	WireAudio: Audio,
}

// Valid reports whether m is one of the known modalities.
func (m Modality) Valid() bool {
	_, ok := wireByModality[m]
	return ok
}

// Wire returns the API subtype for m. Unknown values map to the video subtype.
func (m Modality) Wire() string {
	if w, ok := wireByModality[m]; ok {
		return w
	}
	return WireVideo
}

func (m Modality) String() string { return string(m) }

// UnmarshalJSON accepts both the short form and any wire or display variant.
func (m *Modality) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("consultation: modality must be a string: %w", err)
	}
	*m = Normalize(raw)
	return nil
}

// Normalize maps free-form input ("Voice", "phone call", "by video call", ...)
// onto a modality. Anything unrecognised becomes Video.
func Normalize(s string) Modality {
	v := strings.ToLower(strings.TrimSpace(s))
	if m, ok := modalityByWire[v]; ok {
		return m
	}
	switch {
	case strings.Contains(v, "voice"),
		strings.Contains(v, "audio"),
		strings.Contains(v, "phone"):
		return Audio
	default:
		return Video
	}
}

// ParseWire converts an API subtype back into a modality.
func ParseWire(s string) (Modality, error) {
	if m, ok := modalityByWire[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModality, s)
}

// MapSubtype returns the API subtype for s. Values that already are wire
// strings pass through unchanged, so MapSubtype(MapSubtype(x)) == MapSubtype(x).
func MapSubtype(s string) string {
	if _, err := ParseWire(s); err == nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return Normalize(s).Wire()
}

// SubtypeFor picks the subtype for a multi-select. Video wins when both are
// chosen; an empty selection yields the video subtype.
func SubtypeFor(selected []Modality) string {
	hasAudio := false
	for _, m := range selected {
		if m == Video {
			return WireVideo
		}
		if m == Audio {
			hasAudio = true
		}
	}
	if hasAudio {
		return WireAudio
	}
	return WireVideo
}

// Dedupe drops unknown and repeated modalities while keeping order.
func Dedupe(selected []Modality) []Modality {
	seen := make(map[Modality]bool, len(selected))
	out := make([]Modality, 0, len(selected))
	for _, m := range selected {
		if !m.Valid() || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
