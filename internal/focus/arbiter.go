package focus

import "sync"

// Arbiter is an in-process Host keeping a focus stack. The newest granted
// request holds focus; abandoning it hands focus back to the one below.
// While locked (a call, an alarm) requests are delayed or refused.
type Arbiter struct {
	mu      sync.Mutex
	stack   []*Request
	delayed []*Request
	locked  bool
}

func NewArbiter() *Arbiter {
	return &Arbiter{}
}

func (a *Arbiter) Request(r *Request) Result {
	a.mu.Lock()
	if a.locked {
		if !r.AcceptsDelayedGain {
			a.mu.Unlock()
			return ResultFailed
		}
		a.delayed = append(remove(a.delayed, r), r)
		a.mu.Unlock()
		return ResultDelayed
	}

	prev := a.grantLocked(r)
	a.mu.Unlock()

	notifyLoss(prev, r)
	return ResultGranted
}

func (a *Arbiter) Abandon(r *Request) {
	a.mu.Lock()
	wasTop := a.topLocked() == r
	a.stack = remove(a.stack, r)
	a.delayed = remove(a.delayed, r)
	next := a.topLocked()
	locked := a.locked
	a.mu.Unlock()

	if wasTop && next != nil && !locked {
		notify(next, ChangeGain)
	}
}

// Holder returns the request currently holding focus, if any.
func (a *Arbiter) Holder() *Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.locked {
		return nil
	}
	return a.topLocked()
}

// Lock takes focus away from everyone transiently.
func (a *Arbiter) Lock() {
	a.mu.Lock()
	if a.locked {
		a.mu.Unlock()
		return
	}
	a.locked = true
	top := a.topLocked()
	a.mu.Unlock()

	if top != nil {
		notify(top, ChangeLossTransient)
	}
}

// Unlock grants delayed requests in arrival order, or hands focus back to
// the holder interrupted by Lock.
func (a *Arbiter) Unlock() {
	a.mu.Lock()
	if !a.locked {
		a.mu.Unlock()
		return
	}
	a.locked = false
	pending := a.delayed
	a.delayed = nil
	top := a.topLocked()
	a.mu.Unlock()

	if len(pending) == 0 {
		if top != nil {
			notify(top, ChangeGain)
		}
		return
	}

	for _, r := range pending {
		a.mu.Lock()
		prev := a.grantLocked(r)
		a.mu.Unlock()

		notifyLoss(prev, r)
		notify(r, ChangeGain)
	}
}

func (a *Arbiter) grantLocked(r *Request) *Request {
	prev := a.topLocked()
	a.stack = append(remove(a.stack, r), r)
	if prev == r {
		return nil
	}
	return prev
}

func (a *Arbiter) topLocked() *Request {
	if len(a.stack) == 0 {
		return nil
	}
	return a.stack[len(a.stack)-1]
}

func notifyLoss(prev, next *Request) {
	if prev == nil {
		return
	}
	if next.Transient {
		notify(prev, ChangeLossTransient)
	} else {
		notify(prev, ChangeLoss)
	}
}

func notify(r *Request, c Change) {
	if r.OnChange != nil {
		r.OnChange(c)
	}
}

func remove(list []*Request, r *Request) []*Request {
	out := list[:0]
	for _, item := range list {
		if item != r {
			out = append(out, item)
		}
	}
	return out
}
