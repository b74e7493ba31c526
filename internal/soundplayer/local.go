package soundplayer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/glebovdev/soundmix/internal/backoff"
	"github.com/glebovdev/soundmix/internal/focus"
	"github.com/glebovdev/soundmix/internal/player"
	"github.com/glebovdev/soundmix/internal/sound"
	"github.com/rs/zerolog/log"
)

// LocalFactory builds LocalSoundPlayers sharing one metadata source. Every
// player gets its own random source seeded from the factory's.
type LocalFactory struct {
	source   Source
	newMedia func() MediaPlayer

	mu  sync.Mutex
	rng *rand.Rand
}

func NewLocalFactory(source Source, newMedia func() MediaPlayer, seed uint64) *LocalFactory {
	return &LocalFactory{
		source:   source,
		newMedia: newMedia,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (f *LocalFactory) New(soundID string, listener Listener) SoundPlayer {
	f.mu.Lock()
	rng := rand.New(rand.NewPCG(f.rng.Uint64(), f.rng.Uint64()))
	f.mu.Unlock()

	return NewLocalSoundPlayer(soundID, f.source, f.newMedia(), rng, listener)
}

// LocalSoundPlayer loads a sound's manifest in the background and keeps its
// media player fed with randomly chosen segments.
type LocalSoundPlayer struct {
	id       string
	source   Source
	media    MediaPlayer
	listener Listener

	ctx    context.Context
	cancel context.CancelFunc

	// queueMu serializes segment selection and owns rng.
	queueMu sync.Mutex
	rng     *rand.Rand

	publishMu sync.Mutex
	published State

	mu            sync.Mutex
	sound         *sound.Sound
	playRequested bool
	paused        bool
	pausing       bool
	stopping      bool
	stopped       bool
	fadeToken     uint64
	fadeInPending bool
	fadeIn        time.Duration
	fadeOut       time.Duration
	premium       bool
	bitrate       sound.Bitrate
	volume        float64
	prev          *sound.Segment
	gapActive     bool
	skipGap       bool
}

func NewLocalSoundPlayer(soundID string, source Source, media MediaPlayer, rng *rand.Rand, listener Listener) *LocalSoundPlayer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &LocalSoundPlayer{
		id:        soundID,
		source:    source,
		media:     media,
		listener:  listener,
		ctx:       ctx,
		cancel:    cancel,
		rng:       rng,
		published: StateBuffering,
		bitrate:   sound.DefaultBitrate,
		volume:    1,
	}
	media.SetListener(p)

	go p.load()
	return p
}

func (p *LocalSoundPlayer) SoundID() string {
	return p.id
}

func (p *LocalSoundPlayer) load() {
	var retry backoff.Backoff
	for {
		s, err := p.source.Load(p.ctx, p.id)
		if err == nil {
			p.onLoaded(s)
			return
		}
		if p.ctx.Err() != nil {
			return
		}

		delay := retry.Next()
		log.Warn().Err(err).Str("sound", p.id).Dur("retry_in", delay).Msg("Failed to load sound, retrying")
		if backoff.Sleep(p.ctx, delay) != nil {
			return
		}
	}
}

func (p *LocalSoundPlayer) onLoaded(s *sound.Sound) {
	p.mu.Lock()
	if p.stopped || p.stopping {
		p.mu.Unlock()
		return
	}
	p.sound = s
	start := p.playRequested && !p.paused
	p.mu.Unlock()

	log.Debug().Msgf("Sound %s loaded: %d segments, contiguous=%v", s.ID, len(s.Segments), s.IsContiguous)
	if start {
		if err := p.startPlayback(); err != nil {
			log.Error().Err(err).Str("sound", p.id).Msg("Failed to start playback")
		}
	}
	p.publish()
}

func (p *LocalSoundPlayer) State() State {
	mediaState := p.media.State()

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.stopped:
		return StateStopped
	case p.stopping:
		return StateStopping
	case p.pausing:
		return StatePausing
	case p.paused:
		return StatePaused
	case p.sound == nil:
		return StateBuffering
	}

	switch mediaState {
	case player.StatePlaying:
		return StatePlaying
	case player.StatePaused:
		return StatePaused
	case player.StateStopped:
		return StateStopped
	case player.StateIdle:
		if !p.playRequested {
			return StatePaused
		}
	}
	return StateBuffering
}

func (p *LocalSoundPlayer) SetFadeInDuration(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fadeIn = d
}

func (p *LocalSoundPlayer) SetFadeOutDuration(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fadeOut = d
}

func (p *LocalSoundPlayer) SetPremiumSegmentsEnabled(enabled bool) {
	p.mu.Lock()
	if p.premium == enabled {
		p.mu.Unlock()
		return
	}
	p.premium = enabled
	p.mu.Unlock()

	p.invalidatePlaylist()
}

func (p *LocalSoundPlayer) SetAudioBitrate(bitrate sound.Bitrate) {
	p.mu.Lock()
	if p.bitrate == bitrate {
		p.mu.Unlock()
		return
	}
	p.bitrate = bitrate
	p.mu.Unlock()

	p.invalidatePlaylist()
}

// SetAudioAttributes hands the attributes to the media pipeline.
func (p *LocalSoundPlayer) SetAudioAttributes(attrs focus.Attributes) {
	p.media.SetAudioAttributes(attrs)
}

// invalidatePlaylist drops queued segments so the next ones are resolved
// with the current premium and bitrate settings.
func (p *LocalSoundPlayer) invalidatePlaylist() {
	p.mu.Lock()
	if p.sound == nil || p.stopped || p.stopping {
		p.mu.Unlock()
		return
	}
	p.skipGap = true
	requeue := p.playRequested && !p.paused
	p.mu.Unlock()

	p.media.ClearPlaylist()
	if requeue {
		p.ensureQueued()
	}
}

func (p *LocalSoundPlayer) SetVolume(v float64) error {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, v)
	}

	p.mu.Lock()
	p.volume = v
	apply := !p.stopped && !p.stopping && !p.pausing && !p.paused && !p.fadeInPending
	p.mu.Unlock()

	if !apply {
		return nil
	}
	if err := p.media.FadeTo(v, 0, nil); err != nil && !errors.Is(err, player.ErrStopped) {
		return err
	}
	return nil
}

func (p *LocalSoundPlayer) Play() error {
	p.mu.Lock()
	if p.stopped || p.stopping {
		p.mu.Unlock()
		return ErrStopped
	}
	if p.playRequested && !p.paused && !p.pausing {
		p.mu.Unlock()
		return nil
	}
	p.playRequested = true
	p.paused = false
	p.pausing = false
	p.fadeToken++
	loaded := p.sound != nil
	p.mu.Unlock()

	if loaded {
		if err := p.startPlayback(); err != nil {
			return err
		}
	}
	p.publish()
	return nil
}

func (p *LocalSoundPlayer) startPlayback() error {
	mediaPlaying := p.media.State() == player.StatePlaying

	p.mu.Lock()
	p.fadeToken++
	token := p.fadeToken
	target := p.volume
	p.fadeInPending = p.fadeIn > 0
	fadeIn := p.fadeInPending
	p.mu.Unlock()

	switch {
	case !fadeIn:
		_ = p.media.FadeTo(target, 0, nil)
	case !mediaPlaying:
		_ = p.media.FadeTo(0, 0, nil)
	}

	p.ensureQueued()
	if err := p.media.Play(); err != nil {
		return fmt.Errorf("failed to play sound %s: %w", p.id, err)
	}
	if p.media.State() == player.StatePlaying {
		p.beginFadeIn(token)
	}
	return nil
}

func (p *LocalSoundPlayer) beginFadeIn(token uint64) {
	p.mu.Lock()
	if token != p.fadeToken || !p.fadeInPending {
		p.mu.Unlock()
		return
	}
	p.fadeInPending = false
	target := p.volume
	d := p.fadeIn
	p.mu.Unlock()

	_ = p.media.FadeTo(target, d, nil)
}

func (p *LocalSoundPlayer) Pause(immediate bool) {
	mediaPlaying := p.media.State() == player.StatePlaying

	p.mu.Lock()
	if p.stopped || p.stopping || (p.paused && !p.pausing) || (p.pausing && !immediate) {
		p.mu.Unlock()
		return
	}
	p.playRequested = false
	p.paused = true
	p.fadeInPending = false
	p.fadeToken++
	token := p.fadeToken

	if !immediate && mediaPlaying && p.fadeOut > 0 {
		p.pausing = true
		d := p.fadeOut
		p.mu.Unlock()

		log.Debug().Msgf("Sound %s pausing over %s", p.id, d)
		p.publish()
		_ = p.media.FadeTo(0, d, func() { p.finishPause(token) })
		return
	}
	p.pausing = false
	p.mu.Unlock()

	p.media.Pause()
	p.publish()
}

func (p *LocalSoundPlayer) finishPause(token uint64) {
	p.mu.Lock()
	if token != p.fadeToken || !p.pausing {
		p.mu.Unlock()
		return
	}
	p.pausing = false
	p.mu.Unlock()

	p.media.Pause()
	p.publish()
}

func (p *LocalSoundPlayer) Stop(immediate bool) {
	mediaPlaying := p.media.State() == player.StatePlaying

	p.mu.Lock()
	if p.stopped || (p.stopping && !immediate) {
		p.mu.Unlock()
		return
	}
	p.playRequested = false
	p.fadeInPending = false
	p.fadeToken++
	token := p.fadeToken

	if !immediate && mediaPlaying && p.fadeOut > 0 && (!p.paused || p.pausing) {
		p.stopping = true
		p.pausing = false
		d := p.fadeOut
		p.mu.Unlock()

		log.Debug().Msgf("Sound %s stopping over %s", p.id, d)
		p.cancel()
		p.publish()
		_ = p.media.FadeTo(0, d, func() { p.finishStop(token) })
		return
	}
	p.mu.Unlock()

	p.finishStop(token)
}

func (p *LocalSoundPlayer) finishStop(token uint64) {
	p.mu.Lock()
	if token != p.fadeToken || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.stopping = false
	p.pausing = false
	p.mu.Unlock()

	p.cancel()
	p.media.Stop()
	log.Debug().Msgf("Sound %s stopped", p.id)
	p.publish()
}

// ensureQueued tops up the media playlist. Contiguous sounds keep one
// segment ahead of the playing one; others queue only once the playlist has
// run dry, after a silence gap.
func (p *LocalSoundPlayer) ensureQueued() {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()

	p.mu.Lock()
	if p.sound == nil || p.stopped || p.stopping || p.gapActive {
		p.mu.Unlock()
		return
	}
	s := p.sound
	first := p.prev == nil
	p.mu.Unlock()

	remaining := p.media.RemainingItemCount()
	if s.IsContiguous {
		for ; remaining < 2; remaining++ {
			if err := p.queueNext(); err != nil {
				log.Error().Err(err).Str("sound", p.id).Msg("Failed to queue segment")
				return
			}
		}
		return
	}

	if remaining > 0 {
		return
	}

	p.mu.Lock()
	skip := p.skipGap
	p.skipGap = false
	p.mu.Unlock()

	gap := time.Duration(0)
	if !first && !skip {
		gap = SilenceGap(s.MaxSilence, p.rng)
	}
	if gap <= 0 {
		if err := p.queueNext(); err != nil {
			log.Error().Err(err).Str("sound", p.id).Msg("Failed to queue segment")
		}
		return
	}

	p.mu.Lock()
	p.gapActive = true
	p.mu.Unlock()

	log.Debug().Msgf("Sound %s silent for %s", p.id, gap)
	go p.waitGap(gap)
}

func (p *LocalSoundPlayer) waitGap(gap time.Duration) {
	err := backoff.Sleep(p.ctx, gap)

	p.mu.Lock()
	p.gapActive = false
	p.skipGap = err == nil
	p.mu.Unlock()

	if err == nil {
		p.ensureQueued()
	}
}

// queueNext must be called with queueMu held.
func (p *LocalSoundPlayer) queueNext() error {
	p.mu.Lock()
	s := p.sound
	prev := p.prev
	premium := p.premium
	bitrate := p.bitrate
	p.mu.Unlock()

	seg, err := NextSegment(s, prev, premium, p.rng)
	if err != nil {
		return fmt.Errorf("sound %s: %w", p.id, err)
	}
	if err := p.media.AddToPlaylist(seg.URI(bitrate)); err != nil {
		return err
	}

	p.mu.Lock()
	p.prev = seg
	p.mu.Unlock()
	return nil
}

func (p *LocalSoundPlayer) OnMediaPlayerStateChange(state player.State) {
	if state == player.StatePlaying {
		p.mu.Lock()
		pending := p.fadeInPending
		token := p.fadeToken
		p.mu.Unlock()
		if pending {
			p.beginFadeIn(token)
		}
	}
	p.publish()
}

func (p *LocalSoundPlayer) OnMediaPlayerItemTransition() {
	p.ensureQueued()
}

func (p *LocalSoundPlayer) publish() {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	if p.published == StateStopped {
		return
	}
	state := p.State()
	if state == p.published {
		return
	}
	log.Debug().Msgf("Sound %s state: %s -> %s", p.id, p.published, state)
	p.published = state
	if p.listener != nil {
		p.listener.OnSoundPlayerStateChange(p)
	}
}
