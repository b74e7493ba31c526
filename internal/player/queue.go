package player

import (
	"github.com/gopxl/beep/v2"
)

type item struct {
	uri      string
	streamer beep.Streamer
	source   beep.StreamSeekCloser
}

func (it *item) close() {
	if it != nil && it.source != nil {
		it.source.Close()
	}
}

// queue is the gapless playlist head fed to the output. All fields are
// guarded by the output lock. It streams silence while empty so the output
// keeps pulling it, and only reports drained once closed.
type queue struct {
	current *item
	next    *item

	finished int
	failed   *item
	failErr  error
	closed   bool

	wake chan struct{}
}

func (q *queue) Stream(samples [][2]float64) (n int, ok bool) {
	if q.closed {
		return 0, false
	}

	filled := 0
	for filled < len(samples) && q.current != nil {
		sn, sok := q.current.streamer.Stream(samples[filled:])
		filled += sn
		if !sok {
			q.advance()
			continue
		}
		if sn == 0 {
			break
		}
	}

	for i := filled; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (q *queue) Err() error {
	return nil
}

// advance retires the current item. A finished item makes way for the
// pre-opened next one. A failed item leaves the head empty, with next kept
// behind it, until its retry is reopened into current.
func (q *queue) advance() {
	cur := q.current
	err := cur.streamer.Err()
	cur.close()

	if err != nil && q.failed == nil {
		q.failed = cur
		q.failErr = err
		q.current = nil
	} else {
		q.finished++
		q.current, q.next = q.next, nil
	}
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue) clear() {
	q.current.close()
	q.next.close()
	q.current, q.next = nil, nil
	q.failed = nil
	q.failErr = nil
}

func (q *queue) count() int {
	n := 0
	if q.current != nil {
		n++
	}
	if q.next != nil {
		n++
	}
	return n
}
