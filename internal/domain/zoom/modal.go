package zoom

import "sync"

// EscapeKey is the key name that closes the modal.
const EscapeKey = "Escape"

// Modal is the single fullscreen overlay shared by every diagram.
// It is either closed or open with one diagram's markup.
type Modal struct {
	mu sync.Mutex

	newOverlay func() Overlay
	body       Body

	overlay       Overlay
	created       int
	open          bool
	content       string
	savedOverflow string
}

// NewModal creates a modal. newOverlay is called at most once, on first open.
func NewModal(newOverlay func() Overlay, body Body) *Modal {
	return &Modal{newOverlay: newOverlay, body: body}
}

// Open shows markup. If the modal is already open its content is replaced.
func (m *Modal) Open(markup string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.overlay == nil {
		m.overlay = m.newOverlay()
		m.created++
	}
	m.overlay.SetContent(markup)
	m.content = markup

	if m.open {
		return
	}
	if m.body != nil {
		m.savedOverflow = m.body.Overflow()
		m.body.SetOverflow("hidden")
	}
	m.overlay.Show()
	m.open = true
}

// Close hides the modal and restores body scrolling. Closing a closed modal is a no-op.
func (m *Modal) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return
	}
	m.overlay.Hide()
	m.overlay.SetContent("")
	if m.body != nil {
		m.body.SetOverflow(m.savedOverflow)
	}
	m.open = false
	m.content = ""
}

// HandleKey closes the modal on Escape.
func (m *Modal) HandleKey(key string) {
	if key == EscapeKey {
		m.Close()
	}
}

// HandleBackdropClick closes the modal.
func (m *Modal) HandleBackdropClick() {
	m.Close()
}

// IsOpen reports whether the modal is open.
func (m *Modal) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Content returns the markup currently shown, empty when closed.
func (m *Modal) Content() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.content
}

// OverlaysCreated returns how many overlays were created (0 or 1).
func (m *Modal) OverlaysCreated() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}
