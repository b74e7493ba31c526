// Package player implements the media player: one continuous decode/output
// pipeline with a gapless playlist, perceptual volume, linear fades and
// automatic retry of failed items.
package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/glebovdev/soundmix/internal/backoff"
	"github.com/glebovdev/soundmix/internal/focus"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/rs/zerolog/log"
)

const (
	FadeTickInterval  = 50 * time.Millisecond
	MinVolumeExponent = -10.0
)

var (
	ErrStopped       = errors.New("media player is stopped")
	ErrInvalidVolume = errors.New("volume must be within [0, 1]")
)

type State int

const (
	StateIdle State = iota
	StateBuffering
	StatePlaying
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateBuffering:
		return "BUFFERING"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Listener is notified without any player lock held.
type Listener interface {
	OnMediaPlayerStateChange(state State)
	// OnMediaPlayerItemTransition fires whenever the playlist head changes,
	// including when the first item starts and when the last one finishes.
	OnMediaPlayerItemTransition()
}

// MediaPlayer wraps a single beep pipeline: ctrl -> volume -> queue.
type MediaPlayer struct {
	output   Output
	opener   Opener
	ctx      context.Context
	cancel   context.CancelFunc
	wake     chan struct{}
	listener Listener

	mu         sync.Mutex
	state      State
	attached   bool
	pending    []string
	loadGen    uint64
	loadCancel context.CancelFunc
	retry      backoff.Backoff
	retryDelay time.Duration
	volume     float64
	attrs      focus.Attributes
	fadeSeq    uint64
	fadeCancel context.CancelFunc

	// guarded by the output lock
	q          *queue
	volumeNode *effects.Volume
	ctrl       *beep.Ctrl
}

func NewMediaPlayer(output Output, opener Opener) *MediaPlayer {
	ctx, cancel := context.WithCancel(context.Background())
	wake := make(chan struct{}, 1)

	q := &queue{wake: wake}
	volumeNode := &effects.Volume{Streamer: q, Base: 2}
	p := &MediaPlayer{
		output:     output,
		opener:     opener,
		ctx:        ctx,
		cancel:     cancel,
		wake:       wake,
		state:      StateIdle,
		attrs:      focus.DefaultAttributes,
		q:          q,
		volumeNode: volumeNode,
		ctrl:       &beep.Ctrl{Streamer: volumeNode, Paused: true},
	}
	p.applyVolumeLocked(1)

	go p.run()
	return p
}

// SetListener must be called before the player is used.
func (p *MediaPlayer) SetListener(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = l
}

func (p *MediaPlayer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *MediaPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetAudioAttributes sets the attributes the pipeline reports when it
// attaches to the output. The speaker has no per-stream attributes, so a
// change takes effect on the next attach.
func (p *MediaPlayer) SetAudioAttributes(attrs focus.Attributes) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attrs = attrs
}

func (p *MediaPlayer) Attributes() focus.Attributes {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attrs
}

func (p *MediaPlayer) Play() error {
	p.mu.Lock()
	switch p.state {
	case StateStopped:
		p.mu.Unlock()
		return ErrStopped
	case StatePlaying, StateBuffering:
		p.mu.Unlock()
		return nil
	}

	if !p.attached {
		if err := p.output.Play(p.ctrl); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("failed to attach media pipeline: %w", err)
		}
		p.attached = true
		log.Debug().Str("usage", string(p.attrs.Usage)).Str("content", string(p.attrs.ContentType)).Msg("Media pipeline attached")
	}

	p.output.Lock()
	p.ctrl.Paused = false
	p.output.Unlock()

	p.state = StateBuffering
	p.reconcileLocked()
	state := p.state
	p.mu.Unlock()

	log.Debug().Msgf("Media player started: %s", state)
	p.signal()
	p.emitState(true, state)
	return nil
}

func (p *MediaPlayer) Pause() {
	p.mu.Lock()
	if p.state == StateStopped || p.state == StatePaused {
		p.mu.Unlock()
		return
	}

	p.output.Lock()
	p.ctrl.Paused = true
	p.output.Unlock()

	p.state = StatePaused
	p.mu.Unlock()

	log.Debug().Msg("Media player paused")
	p.emitState(true, StatePaused)
}

// Stop releases the pipeline. Fades and retries in flight are cancelled first.
func (p *MediaPlayer) Stop() {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return
	}

	p.cancelFadeLocked()
	p.cancel()
	p.pending = nil
	p.loadGen++

	// a nil streamer makes the ctrl report drained so the output drops it
	p.output.Lock()
	p.ctrl.Streamer = nil
	p.q.clear()
	p.q.closed = true
	p.output.Unlock()

	p.state = StateStopped
	p.mu.Unlock()

	log.Debug().Msg("Media player stopped")
	p.emitState(true, StateStopped)
}

func (p *MediaPlayer) AddToPlaylist(uri string) error {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return ErrStopped
	}
	p.pending = append(p.pending, uri)
	changed := p.reconcileLocked()
	state := p.state
	p.mu.Unlock()

	log.Debug().Str("uri", uri).Msg("Queued media item")
	p.signal()
	p.emitState(changed, state)
	return nil
}

// ClearPlaylist drops every queued item, including the one playing.
func (p *MediaPlayer) ClearPlaylist() {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return
	}

	p.pending = nil
	p.loadGen++
	if p.loadCancel != nil {
		p.loadCancel()
		p.loadCancel = nil
	}
	p.retry.Reset()
	p.retryDelay = 0

	p.output.Lock()
	p.q.clear()
	p.output.Unlock()

	changed := p.reconcileLocked()
	state := p.state
	p.mu.Unlock()

	p.emitState(changed, state)
}

// RemainingItemCount counts items not yet finished, the current one included.
func (p *MediaPlayer) RemainingItemCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.output.Lock()
	n := p.q.count()
	p.output.Unlock()
	return n + len(p.pending)
}

func (p *MediaPlayer) SetVolume(v float64) error {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, v)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyVolumeLocked(v)
	return nil
}

// FadeTo linearly moves the volume to target over d. The callback runs
// exactly once when the target is reached, synchronously when d is zero or
// the player is not playing. A cancelled fade never runs its callback.
func (p *MediaPlayer) FadeTo(target float64, d time.Duration, callback func()) error {
	if target < 0 || target > 1 || math.IsNaN(target) {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, target)
	}

	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return ErrStopped
	}

	p.cancelFadeLocked()

	if d <= 0 || p.state != StatePlaying {
		p.applyVolumeLocked(target)
		p.mu.Unlock()
		if callback != nil {
			callback()
		}
		return nil
	}

	ctx, cancel := context.WithCancel(p.ctx)
	p.fadeCancel = cancel
	seq := p.fadeSeq
	from := p.volume
	p.mu.Unlock()

	go p.runFade(ctx, seq, from, target, d, callback)
	return nil
}

func (p *MediaPlayer) runFade(ctx context.Context, seq uint64, from, target float64, d time.Duration, callback func()) {
	ticker := time.NewTicker(FadeTickInterval)
	defer ticker.Stop()

	steps := int(math.Ceil(float64(d) / float64(FadeTickInterval)))
	if steps < 1 {
		steps = 1
	}
	delta := (target - from) / float64(steps)

	for i := 1; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if p.fadeSeq != seq || ctx.Err() != nil {
			p.mu.Unlock()
			return
		}

		v := from + delta*float64(i)
		done := i >= steps || delta == 0 ||
			(delta > 0 && v >= target) ||
			(delta < 0 && v <= target)
		if done {
			v = target
			p.fadeSeq++
			p.fadeCancel = nil
		}
		p.applyVolumeLocked(clamp01(v))
		p.mu.Unlock()

		if done {
			if callback != nil {
				callback()
			}
			return
		}
	}
}

func (p *MediaPlayer) cancelFadeLocked() {
	p.fadeSeq++
	if p.fadeCancel != nil {
		p.fadeCancel()
		p.fadeCancel = nil
	}
}

func (p *MediaPlayer) applyVolumeLocked(v float64) {
	p.volume = v
	exponent, silent := volumeToExponent(v)

	p.output.Lock()
	p.volumeNode.Volume = exponent
	p.volumeNode.Silent = silent
	p.output.Unlock()
}

// PerceptualGain maps a linear volume in [0, 1] to the amplitude gain fed
// to the output.
func PerceptualGain(v float64) float64 {
	v = clamp01(v)
	return v * v
}

// volumeToExponent converts a volume to a base-2 exponent for effects.Volume.
func volumeToExponent(v float64) (exponent float64, silent bool) {
	gain := PerceptualGain(v)
	if gain <= 0 {
		return MinVolumeExponent, true
	}
	return math.Log2(gain), false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// reconcileLocked derives BUFFERING/PLAYING while playback is wanted.
func (p *MediaPlayer) reconcileLocked() bool {
	if p.state != StatePlaying && p.state != StateBuffering {
		return false
	}

	p.output.Lock()
	hasCurrent := p.q.current != nil
	p.output.Unlock()

	next := StatePlaying
	if !hasCurrent && len(p.pending) > 0 {
		next = StateBuffering
	}

	if next == p.state {
		return false
	}
	log.Debug().Msgf("Media player state: %s -> %s", p.state, next)
	p.state = next
	return true
}

func (p *MediaPlayer) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *MediaPlayer) emitState(changed bool, state State) {
	if !changed {
		return
	}
	p.mu.Lock()
	l := p.listener
	p.mu.Unlock()
	if l != nil {
		l.OnMediaPlayerStateChange(state)
	}
}

func (p *MediaPlayer) emitItemTransition() {
	p.mu.Lock()
	l := p.listener
	p.mu.Unlock()
	if l != nil {
		l.OnMediaPlayerItemTransition()
	}
}

// run owns opening items. It wakes on playlist changes and queue events.
func (p *MediaPlayer) run() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
		}

		p.drainQueueEvents()
		p.fill()
	}
}

func (p *MediaPlayer) drainQueueEvents() {
	p.mu.Lock()
	p.output.Lock()
	finished := p.q.finished
	failed := p.q.failed
	failErr := p.q.failErr
	p.q.finished = 0
	p.q.failed = nil
	p.q.failErr = nil
	p.output.Unlock()

	if failed != nil {
		p.pending = append([]string{failed.uri}, p.pending...)
		p.retryDelay = p.retry.Next()
		log.Warn().Err(failErr).Str("uri", failed.uri).Dur("retry_in", p.retryDelay).Msg("Playback error, retrying")
	}
	changed := p.reconcileLocked()
	state := p.state
	p.mu.Unlock()

	p.emitState(changed, state)
	if finished > 0 || failed != nil {
		p.emitItemTransition()
	}
}

// fill opens pending items until both queue slots are taken, retrying
// failures with exponential backoff.
func (p *MediaPlayer) fill() {
	for {
		p.mu.Lock()
		if p.state == StateStopped || len(p.pending) == 0 {
			p.mu.Unlock()
			return
		}

		// a failed head is requeued by drainQueueEvents before anything else opens
		p.output.Lock()
		slotFree := p.q.failed == nil && (p.q.current == nil || p.q.next == nil)
		p.output.Unlock()
		if !slotFree {
			p.mu.Unlock()
			return
		}

		uri := p.pending[0]
		gen := p.loadGen
		wait := p.retryDelay
		loadCtx, cancel := context.WithCancel(p.ctx)
		p.loadCancel = cancel
		p.mu.Unlock()

		var (
			source beep.StreamSeekCloser
			format beep.Format
			err    error
		)
		if wait > 0 {
			err = backoff.Sleep(loadCtx, wait)
		}
		if err == nil {
			source, format, err = p.opener.Open(loadCtx, uri)
		}
		cancel()

		p.mu.Lock()
		if gen != p.loadGen || p.state == StateStopped {
			p.mu.Unlock()
			if source != nil {
				source.Close()
			}
			if p.ctx.Err() != nil {
				return
			}
			continue
		}

		if err != nil {
			if errors.Is(err, context.Canceled) && p.ctx.Err() != nil {
				p.mu.Unlock()
				return
			}
			p.retryDelay = p.retry.Next()
			delay := p.retryDelay
			changed := p.reconcileLocked()
			state := p.state
			p.mu.Unlock()

			log.Warn().Err(err).Str("uri", uri).Dur("retry_in", delay).Msg("Failed to open media item, retrying")
			p.emitState(changed, state)
			continue
		}

		p.output.Lock()
		if p.q.failed != nil {
			p.output.Unlock()
			p.mu.Unlock()
			source.Close()
			return
		}
		p.output.Unlock()

		p.retry.Reset()
		p.retryDelay = 0
		p.pending = p.pending[1:]

		it := &item{uri: uri, source: source, streamer: p.resample(source, format)}
		p.output.Lock()
		becameCurrent := p.q.current == nil
		if becameCurrent {
			p.q.current = it
		} else {
			p.q.next = it
		}
		p.output.Unlock()

		changed := p.reconcileLocked()
		state := p.state
		p.mu.Unlock()

		log.Debug().Str("uri", uri).Bool("current", becameCurrent).Msg("Opened media item")
		p.emitState(changed, state)
		if becameCurrent {
			p.emitItemTransition()
		}
	}
}

func (p *MediaPlayer) resample(s beep.StreamSeekCloser, format beep.Format) beep.Streamer {
	target := p.output.SampleRate()
	if format.SampleRate == target {
		return s
	}
	return beep.Resample(ResampleQuality, format.SampleRate, target, s)
}
