package workflow

import "sync"

// Flags holds process-scoped switches shared by every controller in the
// process. The push stream starts enabled (if configured so) and can only be
// turned off by DisableStream; Reset restores the initial value and exists
// for tests and explicit operator action.
type Flags struct {
	mu            sync.Mutex
	initial       bool
	streamEnabled bool
}

func NewFlags(streamEnabled bool) *Flags {
	return &Flags{initial: streamEnabled, streamEnabled: streamEnabled}
}

func (f *Flags) StreamEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamEnabled
}

// DisableStream turns the push stream off for the rest of the process. It
// reports whether this call changed the flag.
func (f *Flags) DisableStream() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := f.streamEnabled
	f.streamEnabled = false
	return changed
}

func (f *Flags) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamEnabled = f.initial
}
