package gecko

import "sync"

// A single process-wide slot kept for call sites that cannot be handed a
// *Session explicitly. New code should pass the Session it uses.
var (
	defaultMu      sync.RWMutex
	defaultSession *Session
)

// SetDefault installs s as the process-wide session; nil clears the slot.
func SetDefault(s *Session) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultSession = s
}

// Default returns the session installed by SetDefault, or nil.
func Default() *Session {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultSession
}
