package consultation

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMapSubtype(t *testing.T) {
	cases := map[string]string{
		"video":         WireVideo,
		"Video Call":    WireVideo,
		"audio":         WireAudio,
		"Voice":         WireAudio,
		"phone call":    WireAudio,
		"by voicecall":  WireAudio,
		"by video call": WireVideo,
		"":              WireVideo,
		"hologram":      WireVideo,
	}
	for in, want := range cases {
		if got := MapSubtype(in); got != want {
			t.Errorf("MapSubtype(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMapSubtypeIsIdempotent(t *testing.T) {
	for _, in := range []string{"video", "voice", "by voicecall", "By Video Call", "unknown"} {
		once := MapSubtype(in)
		if twice := MapSubtype(once); twice != once {
			t.Errorf("MapSubtype not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestParseWireIsStrict(t *testing.T) {
	m, err := ParseWire("by voicecall")
	if err != nil || m != Audio {
		t.Fatalf("expected audio, got %q err=%v", m, err)
	}
	if _, err := ParseWire("voice"); !errors.Is(err, ErrUnknownModality) {
		t.Fatalf("expected ErrUnknownModality, got %v", err)
	}
}

func TestSubtypeFor(t *testing.T) {
	if got := SubtypeFor([]Modality{Audio, Video}); got != WireVideo {
		t.Fatalf("video should win, got %q", got)
	}
	if got := SubtypeFor([]Modality{Audio}); got != WireAudio {
		t.Fatalf("expected audio subtype, got %q", got)
	}
	if got := SubtypeFor(nil); got != WireVideo {
		t.Fatalf("expected video fallback, got %q", got)
	}
}

func TestModalityUnmarshalNormalizes(t *testing.T) {
	var got []Modality
	if err := json.Unmarshal([]byte(`["Voice","by video call","weird"]`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []Modality{Audio, Video, Video}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %q want %q", i, got[i], want[i])
		}
	}
	if d := Dedupe(got); len(d) != 2 {
		t.Fatalf("expected 2 after dedupe, got %v", d)
	}
}
