package zoom

import "sync"

// Viewer holds the interaction state of one diagram.
type Viewer struct {
	mu sync.Mutex

	el    Element
	modal *Modal

	t        Transform
	dragging bool
	moved    bool
	// origin is the pointer position minus the translation at pointer-down.
	originX, originY float64
}

func newViewer(el Element, modal *Modal) *Viewer {
	return &Viewer{el: el, modal: modal, t: Identity}
}

// Transform returns the current transform.
func (v *Viewer) Transform() Transform {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.t
}

// Handle dispatches an input event.
func (v *Viewer) Handle(evt Event) {
	switch evt.Kind {
	case EventWheel:
		v.Wheel(evt.DeltaY)
	case EventPointerDown:
		v.PointerDown(evt.X, evt.Y)
	case EventPointerMove:
		v.PointerMove(evt.X, evt.Y)
	case EventPointerUp:
		v.PointerUp()
	case EventDoubleClick:
		v.Reset()
	case EventClick:
		v.Click()
	}
}

// Wheel zooms in or out by one step.
func (v *Viewer) Wheel(deltaY float64) {
	v.update(func(t Transform) Transform { return t.Wheel(deltaY) })
}

// PointerDown starts a drag at (x, y).
func (v *Viewer) PointerDown(x, y float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dragging = true
	v.moved = false
	v.originX = x - v.t.X
	v.originY = y - v.t.Y
}

// PointerMove pans while a drag is active.
func (v *Viewer) PointerMove(x, y float64) {
	v.mu.Lock()
	if !v.dragging {
		v.mu.Unlock()
		return
	}
	nx, ny := x-v.originX, y-v.originY
	if nx != v.t.X || ny != v.t.Y {
		v.moved = true
	}
	v.t.X, v.t.Y = nx, ny
	t := v.t
	v.mu.Unlock()

	v.el.Apply(t)
}

// PointerUp ends a drag.
func (v *Viewer) PointerUp() {
	v.mu.Lock()
	v.dragging = false
	v.mu.Unlock()
}

// Reset returns the diagram to identity.
func (v *Viewer) Reset() {
	v.update(func(Transform) Transform { return Identity })
}

// Click opens the modal with the diagram's markup, unless the diagram is
// zoomed or panned or the click ends a drag. It reports whether the modal opened.
func (v *Viewer) Click() bool {
	v.mu.Lock()
	suppressed := v.moved || !v.t.IsIdentity()
	v.moved = false
	v.mu.Unlock()

	if suppressed || v.modal == nil {
		return false
	}
	v.modal.Open(v.el.Markup())
	return true
}

func (v *Viewer) update(fn func(Transform) Transform) {
	v.mu.Lock()
	v.t = fn(v.t)
	t := v.t
	v.mu.Unlock()

	v.el.Apply(t)
}
