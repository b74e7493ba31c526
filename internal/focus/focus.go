// Package focus negotiates exclusive ownership of the audio output ("audio
// focus") between the mixer and other audio producers on the host.
package focus

import (
	"fmt"
	"strings"
)

// Usage describes what the audio is used for. Hosts may arbitrate differently per usage.
type Usage string

const (
	UsageMedia Usage = "media"
	UsageGame  Usage = "game"
	UsageAlarm Usage = "alarm"
)

// ContentType describes the kind of audio being produced.
type ContentType string

const (
	ContentMusic        ContentType = "music"
	ContentSonification ContentType = "sonification"
)

// Attributes is the descriptor passed to focus negotiation and the output engine.
type Attributes struct {
	Usage       Usage
	ContentType ContentType
}

// DefaultAttributes describes long-running ambient media playback.
var DefaultAttributes = Attributes{Usage: UsageMedia, ContentType: ContentMusic}

// ParseUsage maps a config value to a Usage and derives a matching content type.
func ParseUsage(s string) (Attributes, error) {
	switch Usage(strings.ToLower(strings.TrimSpace(s))) {
	case "", UsageMedia:
		return DefaultAttributes, nil
	case UsageGame:
		return Attributes{Usage: UsageGame, ContentType: ContentSonification}, nil
	case UsageAlarm:
		return Attributes{Usage: UsageAlarm, ContentType: ContentSonification}, nil
	default:
		return DefaultAttributes, fmt.Errorf("unknown audio usage %q", s)
	}
}

// Listener receives focus transitions.
type Listener interface {
	OnFocusGained()
	OnFocusLost(transient bool)
}

// Manager is the contract the mixer uses to own the audio output.
// RequestFocus reports its outcome through the Listener; AbandonFocus is
// silent and no callbacks follow it. Changing attributes while focus is held
// only affects future requests, so callers abandon and re-request.
type Manager interface {
	HasFocus() bool
	RequestFocus()
	AbandonFocus()
	SetAttributes(attrs Attributes)
}
