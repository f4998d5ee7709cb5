package ui

import "sync"

// OverlayState is a snapshot of the loading overlay.
type OverlayState struct {
	Visible bool
	Title   string
	Detail  string
	Percent float64
}

// Overlay is the loading overlay shared by the systems that report progress to the player. It is safe for concurrent
// use.
type Overlay struct {
	mu    sync.RWMutex
	state OverlayState
}

// Show makes the overlay visible with the given title and resets its progress.
func (o *Overlay) Show(title string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.state = OverlayState{Visible: true, Title: title}
}

// SetProgress updates the progress bar. percent is clamped to [0, 1].
func (o *Overlay) SetProgress(percent float64, detail string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.state.Percent = clamp(percent)
	o.state.Detail = detail
}

// Hide hides the overlay.
func (o *Overlay) Hide() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.state.Visible = false
}

// State returns a snapshot of the overlay.
func (o *Overlay) State() OverlayState {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.state
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
