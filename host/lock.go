package host

// unlocked runs fn with h.mu released and reacquires it before returning.
// Callers must hold h.mu, and either h.busMu for the bus state they rely on
// or revalidate any state read before the call.
func (h *Host) unlocked(fn func() error) error {
	h.mu.Unlock()
	defer h.mu.Lock()
	return fn()
}
