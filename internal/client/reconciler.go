// Package client keeps a client's view of a shared canvas consistent with
// the stream of events it sends and receives.
//
// A Reconciler holds two tiers: the committed history, which is what gets
// saved and broadcast, and a single preview shape for the gesture in
// progress, which is only ever drawn. Every mutation redraws the whole
// scene. A Reconciler is not safe for concurrent use; drive it from one
// Loop.
package client

import (
	"fmt"

	"github.com/Tyrowin/collabocanvas/internal/log"
	"github.com/Tyrowin/collabocanvas/internal/protocol"
	"github.com/Tyrowin/collabocanvas/internal/shape"
)

// Tool is the active drawing mode.
type Tool string

// Drawing tools.
const (
	ToolPen       Tool = "pen"
	ToolEraser    Tool = "eraser"
	ToolRectangle Tool = "rectangle"
	ToolSquare    Tool = "square"
	ToolCircle    Tool = "circle"
	ToolTriangle  Tool = "triangle"
	ToolText      Tool = "text"
)

const defaultPenSize = 5

var dragKinds = map[Tool]shape.Kind{
	ToolRectangle: shape.Rectangle,
	ToolSquare:    shape.Square,
	ToolCircle:    shape.Circle,
	ToolTriangle:  shape.Triangle,
}

// ParseTool maps a tool name to a Tool.
func ParseTool(name string) (Tool, error) {
	t := Tool(name)
	switch t {
	case ToolPen, ToolEraser, ToolText:
		return t, nil
	}
	if _, ok := dragKinds[t]; ok {
		return t, nil
	}
	return "", fmt.Errorf("client: unknown tool %q", name)
}

// Surface is where the scene is painted. Clear wipes it, Draw paints a
// committed shape, DrawPreview paints the in-progress gesture.
type Surface interface {
	shape.Renderer
	Clear()
	DrawPreview(s shape.Shape)
}

// Sender delivers local events to the server.
type Sender interface {
	Send(ev protocol.Event) error
}

// Observer receives the events that do not touch the canvas: presence,
// chat and save status.
type Observer interface {
	Observe(ev protocol.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev protocol.Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev protocol.Event) { f(ev) }

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithSender sets where local gestures are sent. Without one the
// reconciler works offline.
func WithSender(s Sender) Option {
	return func(r *Reconciler) { r.sender = s }
}

// WithObserver sets the observer for non-drawing events.
func WithObserver(o Observer) Option {
	return func(r *Reconciler) { r.observer = o }
}

// Reconciler owns a client's shape history.
type Reconciler struct {
	surface  Surface
	sender   Sender
	observer Observer

	tool    Tool
	stroke  shape.Color
	fill    shape.Color
	penSize float64

	history []shape.Shape

	preview    shape.Shape
	hasPreview bool

	pressed bool
	start   shape.Point
	points  []shape.Point
}

// New returns a Reconciler painting onto surface, with the pen selected.
func New(surface Surface, opts ...Option) *Reconciler {
	r := &Reconciler{
		surface: surface,
		tool:    ToolPen,
		stroke:  shape.DefaultStroke,
		fill:    shape.DefaultFill,
		penSize: defaultPenSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetTool switches tools, abandoning any gesture in progress.
func (r *Reconciler) SetTool(t Tool) {
	r.tool = t
	r.resetGesture()
	r.redraw()
}

// Tool returns the active tool.
func (r *Reconciler) Tool() Tool { return r.tool }

// SetStroke sets the stroke color for new shapes.
func (r *Reconciler) SetStroke(c shape.Color) { r.stroke = c }

// SetFill sets the fill color for new shapes.
func (r *Reconciler) SetFill(c shape.Color) { r.fill = c }

// SetPenSize sets the pen width and the eraser footprint.
func (r *Reconciler) SetPenSize(size float64) {
	if size > 0 {
		r.penSize = size
	}
}

// History returns a copy of the committed shapes in order.
func (r *Reconciler) History() []shape.Shape {
	out := make([]shape.Shape, len(r.history))
	copy(out, r.history)
	return out
}

// Len reports the number of committed shapes.
func (r *Reconciler) Len() int { return len(r.history) }

// Preview returns the in-progress gesture shape, if any.
func (r *Reconciler) Preview() (shape.Shape, bool) {
	return r.preview, r.hasPreview
}

// Press starts a gesture at p.
func (r *Reconciler) Press(p shape.Point) {
	r.resetGesture()
	r.pressed = true
	r.start = p

	switch {
	case r.tool == ToolPen:
		r.points = append(r.points[:0], p)
		r.setPreview(shape.NewFreehand(r.points, r.penSize, r.stroke))
	case r.tool == ToolEraser:
		r.erase(p)
	default:
		if kind, ok := dragKinds[r.tool]; ok {
			s, _ := shape.FromDrag(kind, p, p, r.stroke, r.fill)
			r.setPreview(s)
		}
	}
}

// Drag moves the gesture to p. The pen streams one DrawPoint per sample.
func (r *Reconciler) Drag(p shape.Point) error {
	if !r.pressed {
		return nil
	}

	switch {
	case r.tool == ToolPen:
		r.points = append(r.points, p)
		r.setPreview(shape.NewFreehand(r.points, r.penSize, r.stroke))
		return r.send(protocol.DrawPoint{X: p.X, Y: p.Y, Color: r.stroke, Size: r.penSize})
	case r.tool == ToolEraser:
		r.erase(p)
	default:
		if kind, ok := dragKinds[r.tool]; ok {
			s, _ := shape.FromDrag(kind, r.start, p, r.stroke, r.fill)
			r.setPreview(s)
		}
	}
	return nil
}

// Release completes the gesture at p, commits its shape and sends exactly
// one event for it: the terminal DrawPoint of a pen stroke or the
// ShapeCommitted of a drag shape.
func (r *Reconciler) Release(p shape.Point) error {
	if !r.pressed {
		return nil
	}
	defer r.resetGesture()

	switch {
	case r.tool == ToolPen:
		if last := r.points[len(r.points)-1]; last != p {
			r.points = append(r.points, p)
		}
		r.commit(shape.NewFreehand(r.points, r.penSize, r.stroke))
		return r.send(protocol.DrawPoint{X: p.X, Y: p.Y, Color: r.stroke, Size: r.penSize})
	case r.tool == ToolEraser:
		r.erase(p)
	default:
		kind, ok := dragKinds[r.tool]
		if !ok {
			return nil
		}
		s, err := shape.FromDrag(kind, r.start, p, r.stroke, r.fill)
		if err != nil {
			return err
		}
		r.commit(s)
		return r.send(protocol.ShapeCommitted{Shape: s})
	}
	return nil
}

// Click places text at p when the text tool is active.
func (r *Reconciler) Click(p shape.Point, text string) error {
	if r.tool != ToolText || text == "" {
		return nil
	}
	r.commit(shape.NewText(p.X, p.Y, text, r.stroke))
	return r.send(protocol.TextPlaced{X: p.X, Y: p.Y, Text: text})
}

// Apply folds one inbound event into the scene in arrival order.
func (r *Reconciler) Apply(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.DrawPoint:
		r.commit(shape.NewFreehand([]shape.Point{{X: e.X, Y: e.Y}}, e.Size, e.Color))
	case protocol.ShapeCommitted:
		r.commit(e.Shape)
	case protocol.TextPlaced:
		r.commit(shape.NewText(e.X, e.Y, e.Text, shape.DefaultStroke))
	case protocol.ClearCanvas:
		r.history = nil
		r.redraw()
	case protocol.ChatMessage, protocol.SaveStatus, protocol.UserJoined, protocol.UserLeft:
		if r.observer != nil {
			r.observer.Observe(ev)
		}
	default:
		log.Debug("ignoring inbound event", "kind", ev.Kind())
	}
}

// Clear empties the local history. It is not broadcast.
func (r *Reconciler) Clear() {
	r.history = nil
	r.resetGesture()
	r.redraw()
}

// Load replaces the history with a saved snapshot.
func (r *Reconciler) Load(shapes []shape.Shape) {
	r.history = make([]shape.Shape, len(shapes))
	copy(r.history, shapes)
	r.resetGesture()
	r.redraw()
}

// SaveRequest snapshots the history under name.
func (r *Reconciler) SaveRequest(name string) protocol.SaveRequest {
	return protocol.SaveRequest{FileName: name, Shapes: r.History()}
}

// Save sends a snapshot of the history to the server.
func (r *Reconciler) Save(name string) error {
	return r.send(r.SaveRequest(name))
}

func (r *Reconciler) erase(p shape.Point) {
	footprint := shape.Rect{X: p.X, Y: p.Y, W: r.penSize, H: r.penSize}
	kept := r.history[:0]
	removed := 0
	for _, s := range r.history {
		if s.Intersects(footprint) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	// zero the tail so removed shapes are not retained
	for i := len(kept); i < len(r.history); i++ {
		r.history[i] = shape.Shape{}
	}
	r.history = kept
	if removed > 0 {
		r.redraw()
	}
}

func (r *Reconciler) commit(s shape.Shape) {
	r.history = append(r.history, s)
	r.hasPreview = false
	r.redraw()
}

func (r *Reconciler) setPreview(s shape.Shape) {
	r.preview = s
	r.hasPreview = true
	r.redraw()
}

func (r *Reconciler) resetGesture() {
	r.pressed = false
	r.points = nil
	r.preview = shape.Shape{}
	r.hasPreview = false
}

func (r *Reconciler) redraw() {
	if r.surface == nil {
		return
	}
	r.surface.Clear()
	for _, s := range r.history {
		s.Render(r.surface)
	}
	if r.hasPreview {
		r.surface.DrawPreview(r.preview)
	}
}

func (r *Reconciler) send(ev protocol.Event) error {
	if r.sender == nil {
		return nil
	}
	if err := r.sender.Send(ev); err != nil {
		return fmt.Errorf("client: send %s: %w", ev.Kind(), err)
	}
	return nil
}
