package mixer

import (
	"sync"

	"github.com/glebovdev/soundmix/internal/soundplayer"
)

// Listener receives mixer notifications, one at a time and in the order the
// underlying changes happened. Callbacks run on the mixer's event goroutine
// and must not call Release.
type Listener interface {
	OnManagerStateChange(state State)
	OnManagerVolumeChange(volume float64)
	OnSoundStateChange(soundID string, state soundplayer.State)
	OnSoundVolumeChange(soundID string, volume float64)
}

type EventKind int

const (
	EventManagerState EventKind = iota
	EventManagerVolume
	EventSoundState
	EventSoundVolume
)

// Event is one queued notification. Only the fields matching Kind are set.
type Event struct {
	Kind       EventKind
	SoundID    string
	State      State
	SoundState soundplayer.State
	Volume     float64
}

func (e Event) deliver(l Listener) {
	switch e.Kind {
	case EventManagerState:
		l.OnManagerStateChange(e.State)
	case EventManagerVolume:
		l.OnManagerVolumeChange(e.Volume)
	case EventSoundState:
		l.OnSoundStateChange(e.SoundID, e.SoundState)
	case EventSoundVolume:
		l.OnSoundVolumeChange(e.SoundID, e.Volume)
	}
}

// dispatcher delivers events on a single goroutine so listeners observe them
// in push order without the mixer holding any lock while they run.
type dispatcher struct {
	listener Listener

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	busy   bool
	closed bool
	done   chan struct{}
}

func newDispatcher(listener Listener) *dispatcher {
	d := &dispatcher{listener: listener, done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) push(e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, e)
	d.cond.Broadcast()
}

func (d *dispatcher) run() {
	defer close(d.done)

	d.mu.Lock()
	for {
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}

		e := d.queue[0]
		d.queue = d.queue[1:]
		d.busy = true
		d.mu.Unlock()

		if d.listener != nil {
			e.deliver(d.listener)
		}

		d.mu.Lock()
		d.busy = false
		d.cond.Broadcast()
	}
}

// flush blocks until every event pushed so far has been delivered.
func (d *dispatcher) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for (len(d.queue) > 0 || d.busy) && !d.closed {
		d.cond.Wait()
	}
}

// close delivers what is queued, then stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}
