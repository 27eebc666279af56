package domain

import (
	"sync"
)

// Controls is the button state of one reward on the page.
type Controls struct {
	mu    sync.Mutex
	state UIState
}

// NewControls creates controls with the given initial visibility.
func NewControls(initial UIState) *Controls {
	return &Controls{state: initial}
}

// State returns a snapshot of the current visibility flags.
func (c *Controls) State() UIState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controls) set(fn func(*UIState)) {
	c.mu.Lock()
	fn(&c.state)
	c.mu.Unlock()
}

func (c *Controls) ShowMakeClaim()   { c.set(func(s *UIState) { s.MakeClaim = true }) }
func (c *Controls) HideMakeClaim()   { c.set(func(s *UIState) { s.MakeClaim = false }) }
func (c *Controls) ShowLoader()      { c.set(func(s *UIState) { s.Loader = true }) }
func (c *Controls) HideLoader()      { c.set(func(s *UIState) { s.Loader = false }) }
func (c *Controls) ShowViewClaim()   { c.set(func(s *UIState) { s.ViewClaim = true }) }
func (c *Controls) HideViewClaim()   { c.set(func(s *UIState) { s.ViewClaim = false }) }
func (c *Controls) ShowInvalidator() { c.set(func(s *UIState) { s.Invalidator = true }) }
func (c *Controls) HideInvalidator() { c.set(func(s *UIState) { s.Invalidator = false }) }

// Session is the page state of one reward: its controls, the toasts raised so
// far and the claim flow position. After a completed claim the session is
// detached and further claim attempts do nothing.
type Session struct {
	Permit Permit

	controls *Controls
	onToast  func(Toast)

	mu       sync.Mutex
	toasts   []Toast
	state    ClaimState
	txHash   string
	detached bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithToastHook forwards every toast to fn as it is raised.
func WithToastHook(fn func(Toast)) SessionOption {
	return func(s *Session) {
		s.onToast = fn
	}
}

// WithControls starts the session from an existing UI state.
func WithControls(state UIState) SessionOption {
	return func(s *Session) {
		s.controls = NewControls(state)
	}
}

// NewSession creates an idle session for p.
func NewSession(p Permit, opts ...SessionOption) *Session {
	s := &Session{
		Permit:   p,
		controls: NewControls(UIState{}),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Controls returns the session's button state.
func (s *Session) Controls() *Controls {
	return s.controls
}

// Notify raises a toast.
func (s *Session) Notify(level ToastLevel, message string) {
	t := Toast{Level: level, Message: message}
	s.mu.Lock()
	s.toasts = append(s.toasts, t)
	hook := s.onToast
	s.mu.Unlock()
	if hook != nil {
		hook(t)
	}
}

// Toasts returns the toasts raised so far.
func (s *Session) Toasts() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Toast, len(s.toasts))
	copy(out, s.toasts)
	return out
}

// State returns the claim flow position.
func (s *Session) State() ClaimState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TxHash returns the claim transaction hash once one was mined.
func (s *Session) TxHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txHash
}

// Detached reports whether the claim flow has completed for this session.
func (s *Session) Detached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}

func (s *Session) transition(state ClaimState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) setTxHash(hash string) {
	s.mu.Lock()
	s.txHash = hash
	s.mu.Unlock()
}

func (s *Session) detach() {
	s.mu.Lock()
	s.detached = true
	s.mu.Unlock()
}
