package zoom

// Diagram constrains a host's diagram node type: a pointer to T that is an Element.
type Diagram[T any] interface {
	*T
	Element
}

// Widget initializes diagrams once each and routes their events to a Viewer.
type Widget[T any, P Diagram[T]] struct {
	registry Registry[T]
	modal    *Modal
}

// NewWidget creates a widget sharing modal across all diagrams.
func NewWidget[T any, P Diagram[T]](modal *Modal) *Widget[T, P] {
	return &Widget[T, P]{modal: modal}
}

// Init attaches the listener set to el. Initializing the same node again
// is a no-op and returns false. The node itself is never moved or copied.
func (w *Widget[T, P]) Init(el P) bool {
	if !w.registry.Add((*T)(el)) {
		return false
	}
	v := newViewer(el, w.modal)
	for _, kind := range ListenedEvents {
		el.Listen(kind, v.Handle)
	}
	return true
}

// Scan initializes every node in nodes not seen before and returns the
// number of nodes newly initialized.
func (w *Widget[T, P]) Scan(nodes []P) int {
	n := 0
	for _, el := range nodes {
		if el != nil && w.Init(el) {
			n++
		}
	}
	return n
}

// Initialized reports whether el has been initialized.
func (w *Widget[T, P]) Initialized(el P) bool {
	return w.registry.Contains((*T)(el))
}

// Modal returns the shared modal.
func (w *Widget[T, P]) Modal() *Modal {
	return w.modal
}
