package zoom

// EventKind names an input event forwarded by the host.
type EventKind string

const (
	EventWheel       EventKind = "wheel"
	EventPointerDown EventKind = "pointerdown"
	EventPointerMove EventKind = "pointermove"
	EventPointerUp   EventKind = "pointerup"
	EventDoubleClick EventKind = "dblclick"
	EventClick       EventKind = "click"
)

// ListenedEvents is the listener set attached to every diagram.
var ListenedEvents = []EventKind{
	EventWheel, EventPointerDown, EventPointerMove, EventPointerUp, EventDoubleClick, EventClick,
}

// Event is one input event. DeltaY is used by wheel events, X and Y by
// pointer events.
type Event struct {
	Kind   EventKind
	DeltaY float64
	X, Y   float64
}

// Element is a rendered diagram node.
type Element interface {
	// Listen attaches a handler for kind.
	Listen(kind EventKind, fn func(Event))
	// Apply renders a transform on the node.
	Apply(t Transform)
	// Markup returns the node's rendered markup, used to fill the modal.
	Markup() string
}

// Overlay is the fullscreen modal surface.
type Overlay interface {
	SetContent(markup string)
	Show()
	Hide()
}

// Body is the document body, whose scroll is locked while the modal is open.
type Body interface {
	Overflow() string
	SetOverflow(value string)
}
