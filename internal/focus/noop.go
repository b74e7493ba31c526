package focus

import "sync"

// NoOp grants focus immediately on every request. It is used when
// cooperative focus handling is disabled.
type NoOp struct {
	listener Listener

	mu       sync.Mutex
	hasFocus bool
}

func NewNoOp(listener Listener) *NoOp {
	return &NoOp{listener: listener}
}

func (n *NoOp) HasFocus() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hasFocus
}

func (n *NoOp) RequestFocus() {
	n.mu.Lock()
	n.hasFocus = true
	n.mu.Unlock()
	n.listener.OnFocusGained()
}

func (n *NoOp) AbandonFocus() {
	n.mu.Lock()
	n.hasFocus = false
	n.mu.Unlock()
}

func (n *NoOp) SetAttributes(Attributes) {}
