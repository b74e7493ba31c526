// Package sound defines the data structures for library sounds and their segments.
package sound

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// URIScheme prefixes every segment URI handed to a media player.
	URIScheme = "soundmix"
	// LibraryURIPrefix is the logical root all segment paths are resolved against.
	LibraryURIPrefix = URIScheme + "://cdn/library/"
	// MinSilence is the lower bound of the gap between plays of a non-contiguous sound.
	MinSilence = 30
)

// Bitrate is one of the fixed audio quality tiers the library is encoded in.
type Bitrate string

const (
	Bitrate128 Bitrate = "128k"
	Bitrate192 Bitrate = "192k"
	Bitrate256 Bitrate = "256k"
	Bitrate320 Bitrate = "320k"

	DefaultBitrate = Bitrate128
)

// Bitrates lists the supported tiers from lowest to highest.
var Bitrates = []Bitrate{Bitrate128, Bitrate192, Bitrate256, Bitrate320}

var ErrUnknownBitrate = errors.New("unknown bitrate")

// ParseBitrate accepts "128k" style values, case-insensitively.
func ParseBitrate(s string) (Bitrate, error) {
	b := Bitrate(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Bitrates {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBitrate, s)
}

// Segment is a single playable clip of a sound. Bridge segments link the
// segment named From to the segment named To.
type Segment struct {
	Name     string `json:"name"`
	BasePath string `json:"basePath"`
	IsFree   bool   `json:"isFree"`
	IsBridge bool   `json:"isBridge"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
}

// Path returns the library-relative media path for the given bitrate.
func (s *Segment) Path(bitrate Bitrate) string {
	return fmt.Sprintf("%s/%s/%s.mp3", s.BasePath, bitrate, s.Name)
}

// URI returns the logical media URI handed to the media player.
func (s *Segment) URI(bitrate Bitrate) string {
	return LibraryURIPrefix + s.Path(bitrate)
}

// Sound is the immutable metadata of one playable sound id.
type Sound struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Group        string    `json:"group"`
	Segments     []Segment `json:"segments"`
	IsContiguous bool      `json:"isContiguous"`
	MaxSilence   int       `json:"maxSilence"` // seconds
}

// HasPremiumSegments reports whether any segment requires a premium entitlement.
func (s *Sound) HasPremiumSegments() bool {
	for _, seg := range s.Segments {
		if !seg.IsFree {
			return true
		}
	}
	return false
}

// FindSegment returns the non-bridge segment with the given name, or nil.
func (s *Sound) FindSegment(name string) *Segment {
	for i := range s.Segments {
		if !s.Segments[i].IsBridge && s.Segments[i].Name == name {
			return &s.Segments[i]
		}
	}
	return nil
}

// Info is the short library listing entry for a sound.
type Info struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

// LoadError is returned by metadata sources when a sound cannot be loaded.
type LoadError struct {
	SoundID string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load sound %q: %v", e.SoundID, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
