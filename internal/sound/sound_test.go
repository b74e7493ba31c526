package sound

import (
	"errors"
	"io"
	"testing"
)

func TestSegmentPathAndURI(t *testing.T) {
	seg := Segment{Name: "rain_1", BasePath: "rain"}

	tests := []struct {
		bitrate  Bitrate
		wantPath string
	}{
		{Bitrate128, "rain/128k/rain_1.mp3"},
		{Bitrate320, "rain/320k/rain_1.mp3"},
	}

	for _, tt := range tests {
		t.Run(string(tt.bitrate), func(t *testing.T) {
			if got := seg.Path(tt.bitrate); got != tt.wantPath {
				t.Errorf("Path(%s) = %q, want %q", tt.bitrate, got, tt.wantPath)
			}
			if got, want := seg.URI(tt.bitrate), "soundmix://cdn/library/"+tt.wantPath; got != want {
				t.Errorf("URI(%s) = %q, want %q", tt.bitrate, got, want)
			}
		})
	}
}

func TestParseBitrate(t *testing.T) {
	tests := []struct {
		input   string
		want    Bitrate
		wantErr bool
	}{
		{"128k", Bitrate128, false},
		{"192K", Bitrate192, false},
		{" 256k ", Bitrate256, false},
		{"320k", Bitrate320, false},
		{"64k", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBitrate(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownBitrate) {
					t.Errorf("ParseBitrate(%q) error = %v, want ErrUnknownBitrate", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBitrate(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseBitrate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFindSegmentSkipsBridges(t *testing.T) {
	s := Sound{
		Segments: []Segment{
			{Name: "a_b", IsBridge: true, From: "a", To: "b"},
			{Name: "a"},
			{Name: "b"},
		},
	}

	if got := s.FindSegment("a"); got == nil || got.IsBridge {
		t.Errorf("FindSegment(a) = %+v, want non-bridge segment", got)
	}
	if got := s.FindSegment("a_b"); got != nil {
		t.Errorf("FindSegment(a_b) = %+v, want nil for bridge names", got)
	}
	if got := s.FindSegment("missing"); got != nil {
		t.Errorf("FindSegment(missing) = %+v, want nil", got)
	}
}

func TestHasPremiumSegments(t *testing.T) {
	free := Sound{Segments: []Segment{{Name: "a", IsFree: true}}}
	if free.HasPremiumSegments() {
		t.Error("all-free sound reported premium segments")
	}

	mixed := Sound{Segments: []Segment{{Name: "a", IsFree: true}, {Name: "b"}}}
	if !mixed.HasPremiumSegments() {
		t.Error("mixed sound did not report premium segments")
	}
}

func TestLoadErrorUnwrap(t *testing.T) {
	err := error(&LoadError{SoundID: "rain", Err: io.ErrUnexpectedEOF})

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("LoadError should unwrap to its cause")
	}

	var loadErr *LoadError
	if !errors.As(err, &loadErr) || loadErr.SoundID != "rain" {
		t.Errorf("errors.As failed or wrong id: %+v", loadErr)
	}
}
