// Package mixer coordinates every sound playing at once: it owns one sound
// player per sound id, scales their volumes, applies presets, cooperates with
// audio focus and folds the individual player states into one mixer state.
package mixer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/glebovdev/soundmix/internal/focus"
	"github.com/glebovdev/soundmix/internal/sound"
	"github.com/glebovdev/soundmix/internal/soundplayer"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidVolume = errors.New("volume must be within [0, 1]")
	ErrReleased      = errors.New("mixer is released")
)

type State int

const (
	StatePlaying State = iota
	StatePausing
	StatePaused
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
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

// Compute folds player states into the mixer state. STOPPING members are
// tolerated in a pausing mix because a single sound may be stopping while
// the rest is merely paused.
func Compute(states []soundplayer.State) State {
	if len(states) == 0 {
		return StateStopped
	}

	allStopping, allPaused, allPausing := true, true, true
	for _, s := range states {
		if s != soundplayer.StateStopping {
			allStopping = false
		}
		if s != soundplayer.StatePaused {
			allPaused = false
		}
		if s != soundplayer.StatePausing && s != soundplayer.StatePaused && s != soundplayer.StateStopping {
			allPausing = false
		}
	}

	switch {
	case allStopping:
		return StateStopping
	case allPaused:
		return StatePaused
	case allPausing:
		return StatePausing
	default:
		return StatePlaying
	}
}

// Manager is the mixer. It is safe for concurrent use.
type Manager struct {
	host   focus.Host
	events *dispatcher

	mu                sync.Mutex
	factory           soundplayer.Factory
	players           map[string]soundplayer.SoundPlayer
	soundStates       map[string]soundplayer.State
	volumes           map[string]float64
	volume            float64
	state             State
	publishedState    State
	publishedVolume   float64
	batch             int
	focus             focus.Manager
	focusGen          uint64
	focusEnabled      bool
	attrs             focus.Attributes
	fadeIn            time.Duration
	fadeOut           time.Duration
	premium           bool
	bitrate           sound.Bitrate
	resumeOnFocusGain bool
	autoStopAfter     time.Duration
	autoStopTimer     *time.Timer
	released          bool
}

// New creates a mixer building players with factory. Cooperative focus
// handling is enabled when host is not nil.
func New(factory soundplayer.Factory, host focus.Host, listener Listener) *Manager {
	m := &Manager{
		host:            host,
		events:          newDispatcher(listener),
		factory:         factory,
		players:         make(map[string]soundplayer.SoundPlayer),
		soundStates:     make(map[string]soundplayer.State),
		volumes:         make(map[string]float64),
		volume:          1,
		state:           StateStopped,
		publishedState:  StateStopped,
		publishedVolume: 1,
		focusEnabled:    host != nil,
		attrs:           focus.DefaultAttributes,
		bitrate:         sound.DefaultBitrate,
	}
	m.focus = m.buildFocusLocked()
	return m
}

type focusListener struct {
	m   *Manager
	gen uint64
}

func (l *focusListener) current() bool {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return l.m.focusGen == l.gen && !l.m.released
}

func (l *focusListener) OnFocusGained() {
	if l.current() {
		l.m.onFocusGained()
	}
}

func (l *focusListener) OnFocusLost(transient bool) {
	if l.current() {
		l.m.onFocusLost(transient)
	}
}

func (m *Manager) buildFocusLocked() focus.Manager {
	m.focusGen++
	l := &focusListener{m: m, gen: m.focusGen}

	var fm focus.Manager
	if m.focusEnabled && m.host != nil {
		fm = focus.NewPlatform(m.host, l)
	} else {
		fm = focus.NewNoOp(l)
	}
	fm.SetAttributes(m.attrs)
	return fm
}

func (m *Manager) focusManager() focus.Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.focus
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SoundState returns the last known state of a sound, STOPPED when inactive.
func (m *Manager) SoundState(soundID string) soundplayer.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.soundStates[soundID]; ok {
		return s
	}
	return soundplayer.StateStopped
}

func (m *Manager) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

func (m *Manager) SoundVolume(soundID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.soundVolumeLocked(soundID)
}

func (m *Manager) soundVolumeLocked(soundID string) float64 {
	if v, ok := m.volumes[soundID]; ok {
		return v
	}
	return 1
}

// effectiveVolumeLocked is what a player is told: global times per-sound.
func (m *Manager) effectiveVolumeLocked(soundID string) float64 {
	return clamp01(m.volume * m.soundVolumeLocked(soundID))
}

func (m *Manager) snapshotPlayers() map[string]soundplayer.SoundPlayer {
	m.mu.Lock()
	defer m.mu.Unlock()
	players := make(map[string]soundplayer.SoundPlayer, len(m.players))
	for id, p := range m.players {
		players[id] = p
	}
	return players
}

// PlaySound starts a sound or resumes it. Without audio focus the sound is
// prepared and starts once focus is granted.
func (m *Manager) PlaySound(soundID string) error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return ErrReleased
	}
	p := m.players[soundID]
	m.mu.Unlock()

	if p != nil {
		switch p.State() {
		case soundplayer.StateStopping:
			next := m.newPlayer(soundID, p)
			p.Stop(true)
			p = next
		case soundplayer.StateStopped:
			p = m.newPlayer(soundID, p)
		}
	} else {
		p = m.newPlayer(soundID, nil)
	}
	if p == nil {
		return ErrReleased
	}

	fm := m.focusManager()
	if !fm.HasFocus() {
		m.mu.Lock()
		m.resumeOnFocusGain = true
		m.mu.Unlock()

		log.Debug().Msgf("Sound %s waits for audio focus", soundID)
		fm.RequestFocus()
		return nil
	}

	if err := p.Play(); err != nil && !errors.Is(err, soundplayer.ErrStopped) {
		return fmt.Errorf("failed to play sound %s: %w", soundID, err)
	}
	return nil
}

// newPlayer builds and registers a player for soundID, replacing old. If
// another caller replaced old first, that player is returned instead.
func (m *Manager) newPlayer(soundID string, old soundplayer.SoundPlayer) soundplayer.SoundPlayer {
	m.mu.Lock()
	factory := m.factory
	fadeIn, fadeOut := m.fadeIn, m.fadeOut
	premium, bitrate, attrs := m.premium, m.bitrate, m.attrs
	volume := m.effectiveVolumeLocked(soundID)
	m.mu.Unlock()

	p := factory.New(soundID, m)
	p.SetFadeInDuration(fadeIn)
	p.SetFadeOutDuration(fadeOut)
	p.SetPremiumSegmentsEnabled(premium)
	p.SetAudioBitrate(bitrate)
	p.SetAudioAttributes(attrs)
	_ = p.SetVolume(volume)

	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		p.Stop(true)
		return nil
	}
	if current := m.players[soundID]; current != old && current != nil {
		m.mu.Unlock()
		p.Stop(true)
		return current
	}
	m.players[soundID] = p
	m.mu.Unlock()

	log.Debug().Msgf("Created player for sound %s", soundID)
	m.OnSoundPlayerStateChange(p)
	return p
}

// OnSoundPlayerStateChange records a player's new state, evicts it once
// stopped and reconciles the mixer state. The state is read under m.mu so
// concurrent notifications for one player never record a stale value last.
func (m *Manager) OnSoundPlayerStateChange(p soundplayer.SoundPlayer) {
	id := p.SoundID()

	m.mu.Lock()
	if m.players[id] != p {
		m.mu.Unlock()
		return
	}
	state := p.State()

	if prev, ok := m.soundStates[id]; !ok || prev != state {
		m.soundStates[id] = state
		m.events.push(Event{Kind: EventSoundState, SoundID: id, SoundState: state})
	}
	if state == soundplayer.StateStopped {
		delete(m.players, id)
		delete(m.soundStates, id)
	}
	abandon := m.reconcileLocked()
	fm := m.focus
	m.mu.Unlock()

	if abandon {
		fm.AbandonFocus()
	}
}

// reconcileLocked recomputes the mixer state from the recorded player
// states. It reports whether focus should be given up.
func (m *Manager) reconcileLocked() bool {
	states := make([]soundplayer.State, 0, len(m.soundStates))
	for _, s := range m.soundStates {
		states = append(states, s)
	}
	next := Compute(states)

	m.scheduleAutoStopLocked(next)
	if next == m.state {
		return false
	}

	log.Debug().Msgf("Mixer state: %s -> %s", m.state, next)
	m.state = next
	m.publishLocked()

	if next == StateStopped {
		m.resumeOnFocusGain = false
		return true
	}
	return false
}

// publishLocked emits mixer-level changes unless a batch is in progress.
func (m *Manager) publishLocked() {
	if m.batch > 0 {
		return
	}
	if m.state != m.publishedState {
		m.publishedState = m.state
		m.events.push(Event{Kind: EventManagerState, State: m.state})
	}
	if m.volume != m.publishedVolume {
		m.publishedVolume = m.volume
		m.events.push(Event{Kind: EventManagerVolume, Volume: m.volume})
	}
}

func (m *Manager) scheduleAutoStopLocked(state State) {
	if state != StatePaused || m.autoStopAfter <= 0 {
		if m.autoStopTimer != nil {
			m.autoStopTimer.Stop()
			m.autoStopTimer = nil
		}
		return
	}
	if m.autoStopTimer == nil {
		m.autoStopTimer = time.AfterFunc(m.autoStopAfter, m.autoStop)
	}
}

func (m *Manager) autoStop() {
	m.mu.Lock()
	m.autoStopTimer = nil
	paused := m.state == StatePaused
	m.mu.Unlock()

	if paused {
		log.Info().Msg("Mixer paused for too long, stopping")
		m.Stop(true)
	}
}

// SetAutoStopAfterPause stops everything once the mixer stays paused for d.
// Zero disables it.
func (m *Manager) SetAutoStopAfterPause(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoStopAfter = d
	if m.autoStopTimer != nil {
		m.autoStopTimer.Stop()
		m.autoStopTimer = nil
	}
	m.scheduleAutoStopLocked(m.state)
}

// StopSound fades a sound out. Unknown sounds are ignored.
func (m *Manager) StopSound(soundID string) {
	m.mu.Lock()
	p := m.players[soundID]
	m.mu.Unlock()

	if p != nil {
		p.Stop(false)
	}
}

func (m *Manager) SetVolume(v float64) error {
	if err := validateVolume(v); err != nil {
		return err
	}

	m.mu.Lock()
	m.volume = v
	targets := make(map[soundplayer.SoundPlayer]float64, len(m.players))
	for id, p := range m.players {
		targets[p] = m.effectiveVolumeLocked(id)
	}
	m.publishLocked()
	m.mu.Unlock()

	for p, volume := range targets {
		_ = p.SetVolume(volume)
	}
	return nil
}

func (m *Manager) SetSoundVolume(soundID string, v float64) error {
	if err := validateVolume(v); err != nil {
		return err
	}

	m.mu.Lock()
	if prev, ok := m.volumes[soundID]; !ok || prev != v {
		m.volumes[soundID] = v
		m.events.push(Event{Kind: EventSoundVolume, SoundID: soundID, Volume: v})
	}
	p := m.players[soundID]
	volume := m.effectiveVolumeLocked(soundID)
	m.mu.Unlock()

	if p != nil {
		_ = p.SetVolume(volume)
	}
	return nil
}

// Pause pauses every sound. Sounds already stopping are left to finish, or
// cut off when immediate is set.
func (m *Manager) Pause(immediate bool) {
	m.mu.Lock()
	m.resumeOnFocusGain = false
	m.mu.Unlock()

	m.pauseAll(immediate)
}

func (m *Manager) pauseAll(immediate bool) {
	for _, p := range m.snapshotPlayers() {
		if p.State() == soundplayer.StateStopping {
			if immediate {
				p.Stop(true)
			}
			continue
		}
		p.Pause(immediate)
	}
}

// Resume plays every paused sound, asking for focus first when needed.
func (m *Manager) Resume() {
	players := m.snapshotPlayers()
	if len(players) == 0 {
		return
	}

	fm := m.focusManager()
	if !fm.HasFocus() {
		m.mu.Lock()
		m.resumeOnFocusGain = true
		m.mu.Unlock()
		fm.RequestFocus()
		return
	}
	m.playAll(players)
}

func (m *Manager) playAll(players map[string]soundplayer.SoundPlayer) {
	for id, p := range players {
		switch p.State() {
		case soundplayer.StateStopping, soundplayer.StateStopped:
			continue
		}
		if err := p.Play(); err != nil && !errors.Is(err, soundplayer.ErrStopped) {
			log.Error().Err(err).Str("sound", id).Msg("Failed to resume sound")
		}
	}
}

// Stop stops every sound.
func (m *Manager) Stop(immediate bool) {
	m.mu.Lock()
	m.resumeOnFocusGain = false
	m.mu.Unlock()

	for _, p := range m.snapshotPlayers() {
		p.Stop(immediate)
	}
}

func (m *Manager) onFocusGained() {
	m.mu.Lock()
	resume := m.resumeOnFocusGain
	m.resumeOnFocusGain = false
	m.mu.Unlock()

	log.Debug().Msgf("Audio focus gained, resume=%v", resume)
	if resume {
		m.playAll(m.snapshotPlayers())
	}
}

func (m *Manager) onFocusLost(transient bool) {
	log.Debug().Msgf("Audio focus lost, transient=%v", transient)

	// permanent loss cuts the sound off and never resumes on its own
	m.pauseAll(!transient)

	m.mu.Lock()
	m.resumeOnFocusGain = transient
	m.mu.Unlock()
}

func (m *Manager) SetFadeInDuration(d time.Duration) {
	m.mu.Lock()
	m.fadeIn = d
	m.mu.Unlock()

	for _, p := range m.snapshotPlayers() {
		p.SetFadeInDuration(d)
	}
}

func (m *Manager) SetFadeOutDuration(d time.Duration) {
	m.mu.Lock()
	m.fadeOut = d
	m.mu.Unlock()

	for _, p := range m.snapshotPlayers() {
		p.SetFadeOutDuration(d)
	}
}

func (m *Manager) SetPremiumSegmentsEnabled(enabled bool) {
	m.mu.Lock()
	m.premium = enabled
	m.mu.Unlock()

	for _, p := range m.snapshotPlayers() {
		p.SetPremiumSegmentsEnabled(enabled)
	}
}

func (m *Manager) SetAudioBitrate(bitrate sound.Bitrate) {
	m.mu.Lock()
	m.bitrate = bitrate
	m.mu.Unlock()

	for _, p := range m.snapshotPlayers() {
		p.SetAudioBitrate(bitrate)
	}
}

// SetAudioAttributes swaps the attributes used for focus and playback. A
// playing mix is paused while focus is renegotiated.
func (m *Manager) SetAudioAttributes(attrs focus.Attributes) {
	m.mu.Lock()
	if m.attrs == attrs {
		m.mu.Unlock()
		return
	}
	m.attrs = attrs
	fm := m.focus
	playing := m.state == StatePlaying
	m.mu.Unlock()

	if playing {
		m.pauseAll(true)
	}
	fm.AbandonFocus()
	fm.SetAttributes(attrs)
	for _, p := range m.snapshotPlayers() {
		p.SetAudioAttributes(attrs)
	}
	if playing {
		m.Resume()
	}
}

// SetAudioFocusManagementEnabled switches between host-negotiated focus
// and always-granted focus.
func (m *Manager) SetAudioFocusManagementEnabled(enabled bool) {
	m.mu.Lock()
	if m.focusEnabled == enabled {
		m.mu.Unlock()
		return
	}
	m.focusEnabled = enabled
	old := m.focus
	m.focus = m.buildFocusLocked()
	playing := m.state == StatePlaying
	m.mu.Unlock()

	log.Debug().Msgf("Audio focus management enabled=%v", enabled)
	if playing {
		m.pauseAll(true)
	}
	old.AbandonFocus()
	if playing {
		m.Resume()
	}
}

// SetSoundPlayerFactory replaces the player implementation. Stopping
// players are dropped, paused ones are rebuilt paused and the rest restart.
func (m *Manager) SetSoundPlayerFactory(factory soundplayer.Factory) {
	m.mu.Lock()
	m.factory = factory
	m.mu.Unlock()

	for id, old := range m.snapshotPlayers() {
		switch old.State() {
		case soundplayer.StateStopping, soundplayer.StateStopped:
			old.Stop(true)
		case soundplayer.StatePausing, soundplayer.StatePaused:
			next := m.newPlayer(id, old)
			old.Stop(true)
			if next != nil {
				next.Pause(true)
			}
		default:
			m.newPlayer(id, old)
			old.Stop(true)
			if err := m.PlaySound(id); err != nil {
				log.Error().Err(err).Str("sound", id).Msg("Failed to restart sound")
			}
		}
	}
}

// Release stops everything immediately, gives up focus and delivers the
// remaining notifications. The mixer cannot be used afterwards.
func (m *Manager) Release() {
	m.Stop(true)

	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return
	}
	m.released = true
	fm := m.focus
	if m.autoStopTimer != nil {
		m.autoStopTimer.Stop()
		m.autoStopTimer = nil
	}
	m.mu.Unlock()

	fm.AbandonFocus()
	m.events.close()
}

// Preset maps sound ids to their volumes.
type Preset map[string]float64

// PlayPreset makes the preset the active mix: sounds outside it stop, the
// others get their volume and start unless already playing. Mixer-level
// notifications are held back until the whole preset is applied.
func (m *Manager) PlayPreset(preset Preset) error {
	for id, v := range preset {
		if err := validateVolume(v); err != nil {
			return fmt.Errorf("sound %s: %w", id, err)
		}
	}

	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return ErrReleased
	}
	m.batch++
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.batch--
		m.publishLocked()
		m.mu.Unlock()
	}()

	for id, p := range m.snapshotPlayers() {
		if _, ok := preset[id]; !ok {
			p.Stop(false)
		}
	}

	ids := make([]string, 0, len(preset))
	for id := range preset {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		if err := m.SetSoundVolume(id, preset[id]); err != nil {
			errs = append(errs, err)
			continue
		}
		if m.SoundState(id) == soundplayer.StatePlaying {
			continue
		}
		if err := m.PlaySound(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CurrentPreset snapshots the active sounds and their volumes. While the
// whole mixer is stopping every sound still counts, so a fading mix can be
// saved.
func (m *Manager) CurrentPreset() Preset {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.state == StateStopping
	preset := make(Preset, len(m.soundStates))
	for id, s := range m.soundStates {
		if all || (s != soundplayer.StateStopping && s != soundplayer.StateStopped) {
			preset[id] = m.soundVolumeLocked(id)
		}
	}
	return preset
}

func validateVolume(v float64) error {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, v)
	}
	return nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
