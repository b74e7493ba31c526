package focus

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Result is the host's immediate answer to a focus request.
type Result int

const (
	ResultFailed Result = iota
	ResultGranted
	ResultDelayed
)

func (r Result) String() string {
	switch r {
	case ResultFailed:
		return "FAILED"
	case ResultGranted:
		return "GRANTED"
	case ResultDelayed:
		return "DELAYED"
	default:
		return "UNKNOWN"
	}
}

// Change is a focus change pushed by the host after a request was answered.
type Change int

const (
	ChangeGain Change = iota
	ChangeLoss
	ChangeLossTransient
	ChangeLossTransientCanDuck
)

func (c Change) String() string {
	switch c {
	case ChangeGain:
		return "GAIN"
	case ChangeLoss:
		return "LOSS"
	case ChangeLossTransient:
		return "LOSS_TRANSIENT"
	case ChangeLossTransientCanDuck:
		return "LOSS_TRANSIENT_CAN_DUCK"
	default:
		return "UNKNOWN"
	}
}

// Request is one focus request registered with a Host.
type Request struct {
	Attributes         Attributes
	Transient          bool
	AcceptsDelayedGain bool
	OnChange           func(Change)
}

// Host is the platform arbitrating audio focus between producers.
type Host interface {
	Request(r *Request) Result
	Abandon(r *Request)
}

// Platform is a Manager backed by a Host. It converts granted, delayed,
// ducked and transient-loss answers into Listener callbacks.
type Platform struct {
	host     Host
	listener Listener

	mu       sync.Mutex
	attrs    Attributes
	request  *Request
	hasFocus bool
	delayed  bool
}

func NewPlatform(host Host, listener Listener) *Platform {
	return &Platform{
		host:     host,
		listener: listener,
		attrs:    DefaultAttributes,
	}
}

func (p *Platform) HasFocus() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasFocus
}

func (p *Platform) SetAttributes(attrs Attributes) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attrs = attrs
}

func (p *Platform) RequestFocus() {
	p.mu.Lock()
	if p.hasFocus || p.delayed {
		p.mu.Unlock()
		return
	}

	req := &Request{Attributes: p.attrs, AcceptsDelayedGain: true}
	req.OnChange = func(c Change) { p.onChange(req, c) }
	p.request = req
	p.mu.Unlock()

	result := p.host.Request(req)
	log.Debug().Msgf("Audio focus request: %s", result)

	p.mu.Lock()
	if p.request != req {
		// abandoned while the host was answering
		p.mu.Unlock()
		return
	}
	switch result {
	case ResultGranted:
		p.hasFocus = true
	case ResultDelayed:
		if p.hasFocus {
			// the delayed grant already arrived through onChange
			p.mu.Unlock()
			return
		}
		p.delayed = true
	default:
		p.request = nil
	}
	p.mu.Unlock()

	switch result {
	case ResultGranted:
		p.listener.OnFocusGained()
	case ResultDelayed:
		p.listener.OnFocusLost(true)
	default:
		p.listener.OnFocusLost(false)
	}
}

func (p *Platform) AbandonFocus() {
	p.mu.Lock()
	req := p.request
	p.request = nil
	p.hasFocus = false
	p.delayed = false
	p.mu.Unlock()

	if req != nil {
		p.host.Abandon(req)
		log.Debug().Msg("Audio focus abandoned")
	}
}

func (p *Platform) onChange(req *Request, c Change) {
	p.mu.Lock()
	if p.request != req {
		p.mu.Unlock()
		return
	}

	log.Debug().Msgf("Audio focus change: %s", c)

	var abandon bool
	switch c {
	case ChangeGain:
		p.hasFocus = true
		p.delayed = false
	case ChangeLoss:
		p.hasFocus = false
		p.delayed = false
		p.request = nil
		abandon = true
	default:
		p.hasFocus = false
	}
	p.mu.Unlock()

	if abandon {
		p.host.Abandon(req)
	}

	switch c {
	case ChangeGain:
		p.listener.OnFocusGained()
	case ChangeLoss:
		p.listener.OnFocusLost(false)
	default:
		p.listener.OnFocusLost(true)
	}
}
