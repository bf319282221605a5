package zoom

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type fakeElement struct {
	mu        sync.Mutex
	markup    string
	handlers  map[EventKind][]func(Event)
	applied   Transform
	listeners int
}

func newFakeElement(markup string) *fakeElement {
	return &fakeElement{markup: markup, handlers: make(map[EventKind][]func(Event))}
}

func (e *fakeElement) Listen(kind EventKind, fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = append(e.handlers[kind], fn)
	e.listeners++
}

func (e *fakeElement) Apply(t Transform) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applied = t
}

func (e *fakeElement) Markup() string { return e.markup }

func (e *fakeElement) fire(evt Event) {
	e.mu.Lock()
	hs := append([]func(Event){}, e.handlers[evt.Kind]...)
	e.mu.Unlock()
	for _, h := range hs {
		h(evt)
	}
}

type fakeOverlay struct {
	content string
	visible bool
}

func (o *fakeOverlay) SetContent(markup string) { o.content = markup }
func (o *fakeOverlay) Show() { o.visible = true }
func (o *fakeOverlay) Hide() { o.visible = false }

type fakeBody struct{ overflow string }

func (b *fakeBody) Overflow() string { return b.overflow }
func (b *fakeBody) SetOverflow(v string) { b.overflow = v }

func newTestWidget() (*Widget[fakeElement, *fakeElement], *[]*fakeOverlay, *fakeBody) {
	var overlays []*fakeOverlay
	body := &fakeBody{overflow: "auto"}
	modal := NewModal(func() Overlay {
		o := &fakeOverlay{}
		overlays = append(overlays, o)
		return o
	}, body)
	return NewWidget[fakeElement](modal), &overlays, body
}

func TestTransform_Wheel(t *testing.T) {
	tests := []struct {
		name   string
		start  float64
		deltaY float64
		want   float64
	}{
		{name: "scroll down zooms out", start: 1.0, deltaY: 120, want: 0.9},
		{name: "scroll up zooms in", start: 1.0, deltaY: -120, want: 1.1},
		{name: "zero delta unchanged", start: 1.0, deltaY: 0, want: 1.0},
		{name: "clamped at min", start: 0.52, deltaY: 120, want: MinScale},
		{name: "clamped at max", start: 4.9, deltaY: -120, want: MaxScale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Transform{Scale: tt.start}.Wheel(tt.deltaY)
			if got.Scale != tt.want {
				t.Errorf("Wheel(%v) from %v = %v, want %v", tt.deltaY, tt.start, got.Scale, tt.want)
			}
		})
	}
}

func TestTransform_RepeatedWheelStaysInBounds(t *testing.T) {
	tr := Identity
	for range 100 {
		tr = tr.Wheel(1)
	}
	if tr.Scale != MinScale {
		t.Errorf("after 100 zoom-outs Scale = %v, want %v", tr.Scale, MinScale)
	}
	for range 100 {
		tr = tr.Wheel(-1)
	}
	if tr.Scale != MaxScale {
		t.Errorf("after 100 zoom-ins Scale = %v, want %v", tr.Scale, MaxScale)
	}
}

func TestWidget_InitIsIdempotent(t *testing.T) {
	w, _, _ := newTestWidget()
	el := newFakeElement("<svg/>")

	if !w.Init(el) {
		t.Fatal("first Init() = false")
	}
	if w.Init(el) {
		t.Error("second Init() = true, want no-op")
	}
	if el.listeners != len(ListenedEvents) {
		t.Errorf("listeners = %d, want %d", el.listeners, len(ListenedEvents))
	}
	if !w.Initialized(el) {
		t.Error("Initialized() = false")
	}
}

func TestWidget_Scan(t *testing.T) {
	w, _, _ := newTestWidget()
	a, b := newFakeElement("a"), newFakeElement("b")

	if n := w.Scan([]*fakeElement{a, nil}); n != 1 {
		t.Errorf("first Scan() = %d, want 1", n)
	}
	if n := w.Scan([]*fakeElement{a, b}); n != 1 {
		t.Errorf("second Scan() = %d, want 1", n)
	}
}

func TestViewer_WheelEventScalesDown(t *testing.T) {
	w, _, _ := newTestWidget()
	el := newFakeElement("<svg/>")
	w.Init(el)

	el.fire(Event{Kind: EventWheel, DeltaY: 120})

	if el.applied.Scale != 0.9 {
		t.Errorf("Scale = %v, want 0.9", el.applied.Scale)
	}
}

func TestViewer_DragPanAndReset(t *testing.T) {
	w, overlays, _ := newTestWidget()
	el := newFakeElement("<svg/>")
	w.Init(el)

	el.fire(Event{Kind: EventPointerDown, X: 10, Y: 10})
	el.fire(Event{Kind: EventPointerMove, X: 40, Y: 25})
	el.fire(Event{Kind: EventPointerUp})
	el.fire(Event{Kind: EventClick})

	if el.applied.X != 30 || el.applied.Y != 15 {
		t.Errorf("after drag = %+v, want X=30 Y=15", el.applied)
	}
	if len(*overlays) != 0 {
		t.Error("click ending a drag opened the modal")
	}

	// A second drag continues from the current offset.
	el.fire(Event{Kind: EventPointerDown, X: 0, Y: 0})
	el.fire(Event{Kind: EventPointerMove, X: 5, Y: 5})
	el.fire(Event{Kind: EventPointerUp})
	if el.applied.X != 35 || el.applied.Y != 20 {
		t.Errorf("after second drag = %+v, want X=35 Y=20", el.applied)
	}

	// Moves without a pressed pointer do nothing.
	el.fire(Event{Kind: EventPointerMove, X: 500, Y: 500})
	if el.applied.X != 35 {
		t.Errorf("move without drag panned to %+v", el.applied)
	}

	el.fire(Event{Kind: EventDoubleClick})
	if !el.applied.IsIdentity() {
		t.Errorf("after reset = %+v, want identity", el.applied)
	}
}

func TestViewer_ClickOpensModalOnlyAtIdentity(t *testing.T) {
	w, overlays, body := newTestWidget()
	el := newFakeElement("<svg id=a/>")
	w.Init(el)

	el.fire(Event{Kind: EventWheel, DeltaY: -1})
	el.fire(Event{Kind: EventClick})
	if w.Modal().IsOpen() {
		t.Fatal("click on zoomed diagram opened the modal")
	}

	el.fire(Event{Kind: EventDoubleClick})
	el.fire(Event{Kind: EventPointerDown, X: 1, Y: 1})
	el.fire(Event{Kind: EventPointerUp})
	el.fire(Event{Kind: EventClick})

	if !w.Modal().IsOpen() {
		t.Fatal("click at identity did not open the modal")
	}
	if got := (*overlays)[0].content; got != "<svg id=a/>" {
		t.Errorf("modal content = %q", got)
	}
	if body.overflow != "hidden" {
		t.Errorf("body overflow = %q, want hidden", body.overflow)
	}
}

func TestModal_SingleInstanceAndRestore(t *testing.T) {
	w, overlays, body := newTestWidget()
	a, b := newFakeElement("<svg id=a/>"), newFakeElement("<svg id=b/>")
	w.Scan([]*fakeElement{a, b})

	a.fire(Event{Kind: EventClick})
	b.fire(Event{Kind: EventClick})

	m := w.Modal()
	if len(*overlays) != 1 || m.OverlaysCreated() != 1 {
		t.Fatalf("overlays created = %d, want 1", len(*overlays))
	}
	if m.Content() != "<svg id=b/>" || (*overlays)[0].content != "<svg id=b/>" {
		t.Errorf("content = %q, want b's markup", m.Content())
	}

	m.HandleKey("Enter")
	if !m.IsOpen() {
		t.Error("non-Escape key closed the modal")
	}
	m.HandleKey(EscapeKey)
	if m.IsOpen() || (*overlays)[0].visible {
		t.Error("Escape did not close the modal")
	}
	if body.overflow != "auto" {
		t.Errorf("body overflow = %q, want restored auto", body.overflow)
	}

	a.fire(Event{Kind: EventClick})
	m.HandleBackdropClick()
	m.Close()
	if m.IsOpen() {
		t.Error("backdrop click did not close the modal")
	}
	if len(*overlays) != 1 {
		t.Errorf("reopen created another overlay: %d", len(*overlays))
	}
	if body.overflow != "auto" {
		t.Errorf("body overflow = %q after double close", body.overflow)
	}
}

func TestRegistry_DropsCollectedNodes(t *testing.T) {
	var r Registry[fakeElement]
	func() {
		el := newFakeElement("gone")
		if !r.Add(el) {
			t.Fatal("Add() = false")
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for r.Len() != 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after node collected, want 0", r.Len())
	}
}

func TestScanner_DebouncesMutations(t *testing.T) {
	defer goleak.VerifyNone(t)

	var scans atomic.Int32
	s := NewScanner(func() int { scans.Add(1); return 0 }, ScannerConfig{
		Debounce:     30 * time.Millisecond,
		PollInterval: time.Hour,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return scans.Load() == 1 })
	for range 10 {
		s.Notify()
	}
	waitFor(t, func() bool { return scans.Load() == 2 })
	time.Sleep(80 * time.Millisecond)
	if got := scans.Load(); got != 2 {
		t.Errorf("scans = %d, want 2 (one initial, one debounced)", got)
	}

	cancel()
	<-done
}

func TestScanner_PollingIsBoundedAndRestartsOnNavigation(t *testing.T) {
	defer goleak.VerifyNone(t)

	var scans atomic.Int32
	s := NewScanner(func() int { scans.Add(1); return 0 }, ScannerConfig{
		PollInterval: 5 * time.Millisecond,
		MaxAttempts:  3,
		PollWindow:   time.Minute,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// Initial scan plus three attempts.
	waitFor(t, func() bool { return scans.Load() == 4 && !s.Polling() })
	time.Sleep(30 * time.Millisecond)
	if got := scans.Load(); got != 4 {
		t.Errorf("scans after polling stopped = %d, want 4", got)
	}

	s.Navigated("/architecture/overview")
	waitFor(t, func() bool { return scans.Load() == 8 && !s.Polling() })

	s.Navigated("/architecture/overview")
	time.Sleep(30 * time.Millisecond)
	if got := scans.Load(); got != 8 {
		t.Errorf("same path restarted polling: scans = %d, want 8", got)
	}

	cancel()
	<-done
}

func TestScanner_PollWindowStopsPolling(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScanner(func() int { return 0 }, ScannerConfig{
		PollInterval: 5 * time.Millisecond,
		MaxAttempts:  1000,
		PollWindow:   20 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return s.Scans() > 1 && !s.Polling() })
	if s.Scans() > 10 {
		t.Errorf("scans = %d, window did not bound polling", s.Scans())
	}

	cancel()
	<-done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
