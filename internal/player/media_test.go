package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/glebovdev/soundmix/internal/focus"
	"github.com/gopxl/beep/v2"
)

type fakeOutput struct {
	mu       sync.Mutex
	streamer beep.Streamer
	playErr  error
}

func (o *fakeOutput) SampleRate() beep.SampleRate { return DefaultSampleRate }

func (o *fakeOutput) Play(s beep.Streamer) error {
	if o.playErr != nil {
		return o.playErr
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.streamer = s
	return nil
}

func (o *fakeOutput) Lock()   { o.mu.Lock() }
func (o *fakeOutput) Unlock() { o.mu.Unlock() }

// pull simulates the audio thread asking for n samples.
func (o *fakeOutput) pull(n int) (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.streamer == nil {
		return 0, false
	}
	return o.streamer.Stream(make([][2]float64, n))
}

type fakeSource struct {
	remaining int
	err       error
	closed    bool
}

func (s *fakeSource) Stream(samples [][2]float64) (int, bool) {
	if s.remaining <= 0 {
		return 0, false
	}
	n := len(samples)
	if n > s.remaining {
		n = s.remaining
	}
	for i := 0; i < n; i++ {
		samples[i] = [2]float64{0.5, 0.5}
	}
	s.remaining -= n
	return n, true
}

func (s *fakeSource) Err() error     { return s.err }
func (s *fakeSource) Len() int       { return s.remaining }
func (s *fakeSource) Position() int  { return 0 }
func (s *fakeSource) Seek(int) error { return nil }
func (s *fakeSource) Close() error   { s.closed = true; return nil }

type fakeOpener struct {
	mu       sync.Mutex
	length   int
	failures map[string]int
	opens    map[string]int
}

func newFakeOpener(length int) *fakeOpener {
	return &fakeOpener{length: length, failures: map[string]int{}, opens: map[string]int{}}
}

func (o *fakeOpener) Open(ctx context.Context, uri string) (beep.StreamSeekCloser, beep.Format, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens[uri]++
	if o.failures[uri] > 0 {
		o.failures[uri]--
		return nil, beep.Format{}, errors.New("decode failed")
	}
	return &fakeSource{remaining: o.length}, beep.Format{SampleRate: DefaultSampleRate, NumChannels: 2, Precision: 2}, nil
}

func (o *fakeOpener) openCount(uri string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[uri]
}

type recordingListener struct {
	mu          sync.Mutex
	states      []State
	transitions int
}

func (l *recordingListener) OnMediaPlayerStateChange(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *recordingListener) OnMediaPlayerItemTransition() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions++
}

func (l *recordingListener) transitionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitions
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestPlayer(length int) (*MediaPlayer, *fakeOutput, *fakeOpener, *recordingListener) {
	out := &fakeOutput{}
	opener := newFakeOpener(length)
	l := &recordingListener{}
	p := NewMediaPlayer(out, opener)
	p.SetListener(l)
	return p, out, opener, l
}

func startPlaying(t *testing.T, p *MediaPlayer) {
	t.Helper()
	if err := p.AddToPlaylist("soundmix://cdn/library/rain/128k/a.mp3"); err != nil {
		t.Fatalf("AddToPlaylist() error = %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	waitFor(t, time.Second, "PLAYING", func() bool { return p.State() == StatePlaying })
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "IDLE"},
		{StateBuffering, "BUFFERING"},
		{StatePlaying, "PLAYING"},
		{StatePaused, "PAUSED"},
		{StateStopped, "STOPPED"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.expected)
			}
		})
	}
}

func TestVolumeToExponent(t *testing.T) {
	tests := []struct {
		volume       float64
		wantExponent float64
		wantSilent   bool
	}{
		{0, MinVolumeExponent, true},
		{1, 0, false},
		{0.5, -2, false},
		{0.25, -4, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("volume_%v", tt.volume), func(t *testing.T) {
			exponent, silent := volumeToExponent(tt.volume)
			if math.Abs(exponent-tt.wantExponent) > 1e-9 || silent != tt.wantSilent {
				t.Errorf("volumeToExponent(%v) = (%v, %v), want (%v, %v)",
					tt.volume, exponent, silent, tt.wantExponent, tt.wantSilent)
			}
		})
	}
}

func TestPerceptualGainIsQuadratic(t *testing.T) {
	for _, v := range []float64{0, 0.1, 0.5, 0.8, 1} {
		if got := PerceptualGain(v); math.Abs(got-v*v) > 1e-12 {
			t.Errorf("PerceptualGain(%v) = %v, want %v", v, got, v*v)
		}
	}
	if PerceptualGain(1.5) != 1 || PerceptualGain(-1) != 0 {
		t.Error("PerceptualGain should clamp its input to [0, 1]")
	}
}

func TestSetVolumeRejectsOutOfRange(t *testing.T) {
	p, _, _, _ := newTestPlayer(100)
	defer p.Stop()

	for _, v := range []float64{-0.1, 1.1, math.NaN()} {
		if err := p.SetVolume(v); !errors.Is(err, ErrInvalidVolume) {
			t.Errorf("SetVolume(%v) error = %v, want ErrInvalidVolume", v, err)
		}
	}

	if err := p.SetVolume(0.4); err != nil {
		t.Fatalf("SetVolume(0.4) error = %v", err)
	}
	if p.Volume() != 0.4 {
		t.Errorf("Volume() = %v, want 0.4", p.Volume())
	}
}

func TestFadeToZeroDurationIsSynchronous(t *testing.T) {
	p, _, _, _ := newTestPlayer(100)
	defer p.Stop()
	startPlaying(t, p)

	called := 0
	if err := p.FadeTo(0, 0, func() { called++ }); err != nil {
		t.Fatalf("FadeTo() error = %v", err)
	}

	if called != 1 {
		t.Errorf("callback called %d times, want 1 (synchronously)", called)
	}
	if p.Volume() != 0 {
		t.Errorf("Volume() = %v, want exactly 0", p.Volume())
	}
}

func TestFadeToWhileNotPlayingIsImmediate(t *testing.T) {
	p, _, _, _ := newTestPlayer(100)
	defer p.Stop()

	called := 0
	if err := p.FadeTo(0.3, time.Second, func() { called++ }); err != nil {
		t.Fatalf("FadeTo() error = %v", err)
	}
	if called != 1 || p.Volume() != 0.3 {
		t.Errorf("called = %d, volume = %v; want 1 and 0.3", called, p.Volume())
	}
}

func TestFadeToReachesExactTarget(t *testing.T) {
	p, _, _, _ := newTestPlayer(1 << 20)
	defer p.Stop()
	startPlaying(t, p)

	if err := p.SetVolume(0); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	calls := 0
	if err := p.FadeTo(0.7, 200*time.Millisecond, func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}); err != nil {
		t.Fatalf("FadeTo() error = %v", err)
	}

	waitFor(t, 2*time.Second, "fade callback", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	})

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("callback called %d times, want 1", calls)
	}
	if p.Volume() != 0.7 {
		t.Errorf("Volume() = %v, want exactly 0.7", p.Volume())
	}
}

func TestNewFadeCancelsInFlightFade(t *testing.T) {
	p, _, _, _ := newTestPlayer(1 << 20)
	defer p.Stop()
	startPlaying(t, p)

	var mu sync.Mutex
	first, second := 0, 0
	_ = p.FadeTo(0, time.Second, func() {
		mu.Lock()
		first++
		mu.Unlock()
	})
	time.Sleep(120 * time.Millisecond)
	_ = p.FadeTo(0.9, 0, func() {
		mu.Lock()
		second++
		mu.Unlock()
	})

	time.Sleep(1200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if first != 0 {
		t.Errorf("cancelled fade callback ran %d times, want 0", first)
	}
	if second != 1 {
		t.Errorf("replacing fade callback ran %d times, want 1", second)
	}
	if p.Volume() != 0.9 {
		t.Errorf("Volume() = %v, want 0.9", p.Volume())
	}
}

func TestStopCancelsFade(t *testing.T) {
	p, out, _, _ := newTestPlayer(1 << 20)
	startPlaying(t, p)

	var mu sync.Mutex
	calls := 0
	_ = p.FadeTo(0, 300*time.Millisecond, func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	p.Stop()

	time.Sleep(500 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("fade callback ran %d times after Stop, want 0", calls)
	}
	if p.State() != StateStopped {
		t.Errorf("State() = %s, want STOPPED", p.State())
	}
	if _, ok := out.pull(16); ok {
		t.Error("stopped pipeline should report drained to the output")
	}
}

func TestStoppedPlayerRejectsUse(t *testing.T) {
	p, _, _, _ := newTestPlayer(100)
	p.Stop()

	if err := p.Play(); !errors.Is(err, ErrStopped) {
		t.Errorf("Play() after Stop error = %v, want ErrStopped", err)
	}
	if err := p.AddToPlaylist("soundmix://cdn/library/x/128k/y.mp3"); !errors.Is(err, ErrStopped) {
		t.Errorf("AddToPlaylist() after Stop error = %v, want ErrStopped", err)
	}
	if err := p.FadeTo(0, 0, nil); !errors.Is(err, ErrStopped) {
		t.Errorf("FadeTo() after Stop error = %v, want ErrStopped", err)
	}
}

func TestPauseAndResume(t *testing.T) {
	p, out, _, _ := newTestPlayer(1 << 20)
	defer p.Stop()
	startPlaying(t, p)

	p.Pause()
	if p.State() != StatePaused {
		t.Fatalf("State() = %s, want PAUSED", p.State())
	}
	if _, ok := out.pull(16); !ok {
		t.Error("paused pipeline should stay attached to the output")
	}

	if err := p.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if p.State() != StatePlaying {
		t.Errorf("State() after resume = %s, want PLAYING", p.State())
	}
}

func TestItemTransitions(t *testing.T) {
	p, out, _, l := newTestPlayer(100)
	defer p.Stop()

	if err := p.AddToPlaylist("soundmix://cdn/library/rain/128k/a.mp3"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "first item transition", func() bool { return l.transitionCount() >= 1 })

	if got := p.RemainingItemCount(); got != 1 {
		t.Errorf("RemainingItemCount() = %d, want 1", got)
	}

	if err := p.Play(); err != nil {
		t.Fatal(err)
	}
	out.pull(150)

	waitFor(t, time.Second, "end-of-item transition", func() bool { return l.transitionCount() >= 2 })
	if got := p.RemainingItemCount(); got != 0 {
		t.Errorf("RemainingItemCount() after drain = %d, want 0", got)
	}
	if p.State() != StatePlaying {
		t.Errorf("State() with exhausted playlist = %s, want PLAYING", p.State())
	}
}

func TestGaplessAdvance(t *testing.T) {
	p, out, _, _ := newTestPlayer(100)
	defer p.Stop()

	_ = p.AddToPlaylist("soundmix://cdn/library/rain/128k/a.mp3")
	_ = p.AddToPlaylist("soundmix://cdn/library/rain/128k/b.mp3")
	waitFor(t, time.Second, "both items opened", func() bool {
		out.Lock()
		defer out.Unlock()
		return p.q.current != nil && p.q.next != nil
	})
	_ = p.Play()

	out.pull(150)

	out.Lock()
	cur := p.q.current
	out.Unlock()
	if cur == nil || cur.uri != "soundmix://cdn/library/rain/128k/b.mp3" {
		t.Errorf("current item after advance = %+v, want b.mp3", cur)
	}
}

func TestClearPlaylist(t *testing.T) {
	p, _, _, _ := newTestPlayer(1 << 20)
	defer p.Stop()
	startPlaying(t, p)
	_ = p.AddToPlaylist("soundmix://cdn/library/rain/128k/b.mp3")

	p.ClearPlaylist()
	if got := p.RemainingItemCount(); got != 0 {
		t.Errorf("RemainingItemCount() after clear = %d, want 0", got)
	}
}

func TestRetryAfterOpenFailure(t *testing.T) {
	p, _, opener, _ := newTestPlayer(1 << 20)
	defer p.Stop()

	uri := "soundmix://cdn/library/rain/128k/a.mp3"
	opener.mu.Lock()
	opener.failures[uri] = 1
	opener.mu.Unlock()

	_ = p.AddToPlaylist(uri)
	_ = p.Play()

	waitFor(t, time.Second, "first failed open", func() bool { return opener.openCount(uri) >= 1 })
	if p.State() != StateBuffering {
		t.Errorf("State() while retrying = %s, want BUFFERING", p.State())
	}

	waitFor(t, 3*time.Second, "retry success", func() bool { return p.State() == StatePlaying })
	if got := opener.openCount(uri); got != 2 {
		t.Errorf("open attempts = %d, want 2", got)
	}
}

func TestMidStreamFailureRetriesBeforeNextItem(t *testing.T) {
	p, out, opener, l := newTestPlayer(100)
	defer p.Stop()

	a := "soundmix://cdn/library/rain/128k/a.mp3"
	b := "soundmix://cdn/library/rain/128k/b.mp3"
	_ = p.AddToPlaylist(a)
	_ = p.AddToPlaylist(b)
	waitFor(t, time.Second, "both items opened", func() bool {
		out.Lock()
		defer out.Unlock()
		return p.q.current != nil && p.q.next != nil
	})
	_ = p.Play()

	out.Lock()
	src := p.q.current.source.(*fakeSource)
	src.remaining = 0
	src.err = errors.New("corrupt frame")
	out.Unlock()

	out.pull(10)

	out.Lock()
	cur, next := p.q.current, p.q.next
	out.Unlock()
	if cur != nil {
		t.Fatalf("current item after failure = %s, want none until the retry opens", cur.uri)
	}
	if next == nil || next.uri != b {
		t.Fatalf("next item after failure = %+v, want b.mp3 kept in place", next)
	}
	waitFor(t, time.Second, "failed item requeued", func() bool { return p.RemainingItemCount() == 2 })

	waitFor(t, 3*time.Second, "failed item reopened", func() bool {
		out.Lock()
		defer out.Unlock()
		return p.q.current != nil
	})

	out.Lock()
	cur, next = p.q.current, p.q.next
	out.Unlock()
	if cur.uri != a {
		t.Errorf("current item after retry = %s, want a.mp3", cur.uri)
	}
	if next == nil || next.uri != b {
		t.Errorf("next item after retry = %+v, want b.mp3", next)
	}
	if got := opener.openCount(a); got != 2 {
		t.Errorf("open attempts for a.mp3 = %d, want 2", got)
	}
	if got := opener.openCount(b); got != 1 {
		t.Errorf("open attempts for b.mp3 = %d, want 1", got)
	}
	if l.transitionCount() < 2 {
		t.Errorf("item transitions = %d, want at least 2", l.transitionCount())
	}
}

func TestAudioAttributes(t *testing.T) {
	p, _, _, _ := newTestPlayer(100)
	defer p.Stop()

	if got := p.Attributes(); got != focus.DefaultAttributes {
		t.Errorf("Attributes() = %+v, want defaults", got)
	}

	attrs := focus.Attributes{Usage: focus.UsageGame, ContentType: focus.ContentSonification}
	p.SetAudioAttributes(attrs)
	if got := p.Attributes(); got != attrs {
		t.Errorf("Attributes() = %+v, want %+v", got, attrs)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
}

func TestPlayFailsWhenOutputUnavailable(t *testing.T) {
	out := &fakeOutput{playErr: errors.New("no device")}
	p := NewMediaPlayer(out, newFakeOpener(10))
	defer p.Stop()

	if err := p.Play(); err == nil {
		t.Error("Play() should fail when the output cannot be attached")
	}
}
