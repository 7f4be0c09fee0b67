package interaction

import (
	"fmt"
	"math"
	"strings"

	"github.com/zlnvch/flipbook/geometry"
	"github.com/zlnvch/flipbook/models"
)

type State int

const (
	Idle State = iota
	Dragging
	Resizing
)

func (s State) String() string {
	switch s {
	case Dragging:
		return "dragging"
	case Resizing:
		return "resizing"
	}
	return "idle"
}

// Handle names a resize grip. The empty handle means the block body.
type Handle string

const (
	HandleBody Handle = ""
	HandleN    Handle = "n"
	HandleS    Handle = "s"
	HandleE    Handle = "e"
	HandleW    Handle = "w"
	HandleNW   Handle = "nw"
	HandleNE   Handle = "ne"
	HandleSW   Handle = "sw"
	HandleSE   Handle = "se"
)

func ParseHandle(s string) (Handle, error) {
	switch h := Handle(s); h {
	case HandleBody, HandleN, HandleS, HandleE, HandleW, HandleNW, HandleNE, HandleSW, HandleSE:
		return h, nil
	}
	return HandleBody, fmt.Errorf("unknown resize handle: %q", s)
}

func (h Handle) north() bool { return strings.Contains(string(h), "n") }
func (h Handle) south() bool { return strings.Contains(string(h), "s") }
func (h Handle) east() bool  { return strings.Contains(string(h), "e") }
func (h Handle) west() bool  { return strings.Contains(string(h), "w") }

// Target is the block a pointer went down on.
type Target struct {
	Id       string
	Type     models.BlockType
	Rect     models.Rect
	Disabled bool
}

// Controller turns pointer events into block rectangles. Only one block can be
// dragged or resized at a time.
type Controller struct {
	bounds models.Bounds

	state        State
	target       Target
	handle       Handle
	offset       models.Point
	startPointer models.Point
	startRect    models.Rect
}

func NewController(bounds models.Bounds) *Controller {
	return &Controller{bounds: bounds}
}

func (c *Controller) SetBounds(bounds models.Bounds) {
	c.bounds = bounds
}

func (c *Controller) State() State {
	return c.state
}

// ActiveId returns the id of the block being manipulated, or "" when idle.
func (c *Controller) ActiveId() string {
	if c.state == Idle {
		return ""
	}
	return c.target.Id
}

// PointerDown starts a drag (body) or resize (handle). Any interaction already
// in progress is ended first. Disabled targets are ignored.
func (c *Controller) PointerDown(target Target, handle Handle, pointer, parentOrigin models.Point) bool {
	if target.Disabled {
		return false
	}
	c.PointerUp()

	c.target = target
	c.handle = handle
	if handle == HandleBody {
		c.state = Dragging
		c.offset = models.Point{
			X: pointer.X - parentOrigin.X - target.Rect.X,
			Y: pointer.Y - parentOrigin.Y - target.Rect.Y,
		}
		return true
	}

	c.state = Resizing
	c.startPointer = pointer
	c.startRect = target.Rect
	return true
}

// PointerMove returns the rectangle the active block should take. The second
// return is false when nothing is being manipulated.
func (c *Controller) PointerMove(pointer, parentOrigin models.Point) (models.Rect, bool) {
	switch c.state {
	case Dragging:
		r := c.target.Rect
		r.X = pointer.X - parentOrigin.X - c.offset.X
		r.Y = pointer.Y - parentOrigin.Y - c.offset.Y
		r = geometry.Clamp(r, c.bounds, geometry.MinSize(c.target.Type))
		c.target.Rect = r
		return r, true

	case Resizing:
		r := c.resize(pointer.X-c.startPointer.X, pointer.Y-c.startPointer.Y)
		c.target.Rect = r
		return r, true
	}
	return models.Rect{}, false
}

func (c *Controller) resize(dx, dy float64) models.Rect {
	min := geometry.MinSize(c.target.Type)
	start := c.startRect
	r := start

	if c.handle.east() {
		r.W = math.Max(min.W, start.W+dx)
	}
	if c.handle.west() {
		r.W = math.Max(min.W, start.W-dx)
		r.X = start.X + start.W - r.W
	}
	if c.handle.south() {
		r.H = math.Max(min.H, start.H+dy)
	}
	if c.handle.north() {
		r.H = math.Max(min.H, start.H-dy)
		r.Y = start.Y + start.H - r.H
	}

	return geometry.Clamp(r, c.bounds, min)
}

// PointerUp ends any interaction. It reports the id of the block that was
// active, if any.
func (c *Controller) PointerUp() (string, bool) {
	if c.state == Idle {
		return "", false
	}
	id := c.target.Id
	c.state = Idle
	c.target = Target{}
	c.handle = HandleBody
	return id, true
}
