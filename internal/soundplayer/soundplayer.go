// Package soundplayer drives the playback of a single library sound: it
// resolves the sound's segments, decides which one plays next and when, and
// orchestrates fades on top of a media player.
package soundplayer

import (
	"context"
	"errors"
	"time"

	"github.com/glebovdev/soundmix/internal/focus"
	"github.com/glebovdev/soundmix/internal/player"
	"github.com/glebovdev/soundmix/internal/sound"
)

var (
	ErrStopped       = errors.New("sound player is stopped")
	ErrInvalidVolume = errors.New("volume must be within [0, 1]")
	ErrNoSegments    = errors.New("sound has no playable segments")
)

type State int

const (
	StateBuffering State = iota
	StatePlaying
	StatePausing
	StatePaused
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateBuffering:
		return "BUFFERING"
	case StatePlaying:
		return "PLAYING"
	case StatePausing:
		return "PAUSING"
	case StatePaused:
		return "PAUSED"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Source loads sound metadata. Failures are retried by the player.
type Source interface {
	Load(ctx context.Context, soundID string) (*sound.Sound, error)
}

// Listener is told that a player's state changed; it reads the new value
// through State. Notifications for one player arrive in order and STOPPED
// is always the last one.
type Listener interface {
	OnSoundPlayerStateChange(p SoundPlayer)
}

// SoundPlayer controls one sound for its whole lifetime. A stopped player
// is never revived.
type SoundPlayer interface {
	SoundID() string
	State() State
	SetFadeInDuration(d time.Duration)
	SetFadeOutDuration(d time.Duration)
	SetPremiumSegmentsEnabled(enabled bool)
	SetAudioBitrate(bitrate sound.Bitrate)
	SetAudioAttributes(attrs focus.Attributes)
	SetVolume(v float64) error
	Play() error
	Pause(immediate bool)
	Stop(immediate bool)
}

// Factory builds sound players. The mixer swaps factories at runtime.
type Factory interface {
	New(soundID string, listener Listener) SoundPlayer
}

// MediaPlayer is the part of player.MediaPlayer a sound player drives.
type MediaPlayer interface {
	SetListener(l player.Listener)
	SetAudioAttributes(attrs focus.Attributes)
	State() player.State
	Play() error
	Pause()
	Stop()
	AddToPlaylist(uri string) error
	ClearPlaylist()
	RemainingItemCount() int
	SetVolume(v float64) error
	FadeTo(target float64, d time.Duration, callback func()) error
}
