package wl

import (
	"image"

	"deedles.dev/shoji/wire"
)

const (
	PositionerInterface = "xdg_positioner"
)

const (
	positionerRequestDestroy uint16 = iota
	positionerRequestSetSize
	positionerRequestSetAnchorRect
	positionerRequestSetAnchor
	positionerRequestSetGravity
	positionerRequestSetConstraintAdjustment
	positionerRequestSetOffset
	positionerRequestSetReactive
	positionerRequestSetParentSize
	positionerRequestSetParentConfigure
)

// xdg_positioner error codes.
const (
	PositionerErrorInvalidInput uint32 = iota
)

// Anchor and gravity points on the anchor rectangle.
const (
	AnchorNone uint32 = iota
	AnchorTop
	AnchorBottom
	AnchorLeft
	AnchorRight
	AnchorTopLeft
	AnchorBottomLeft
	AnchorTopRight
	AnchorBottomRight
)

// Positioner is the placement rule set for a popup. It is only a bag
// of parameters; a popup snapshots it at creation or reposition time.
type Positioner struct {
	object
	size       image.Point
	anchorRect image.Rectangle
	rectSet    bool
	anchor     uint32
	gravity    uint32
	adjustment uint32
	offset     image.Point
	reactive   bool
}

func (p *Positioner) Interface() string {
	return PositionerInterface
}

func (p *Positioner) MethodName(op uint16) string {
	switch op {
	case positionerRequestDestroy:
		return "destroy"
	case positionerRequestSetSize:
		return "set_size"
	case positionerRequestSetAnchorRect:
		return "set_anchor_rect"
	case positionerRequestSetAnchor:
		return "set_anchor"
	case positionerRequestSetGravity:
		return "set_gravity"
	case positionerRequestSetConstraintAdjustment:
		return "set_constraint_adjustment"
	case positionerRequestSetOffset:
		return "set_offset"
	case positionerRequestSetReactive:
		return "set_reactive"
	case positionerRequestSetParentSize:
		return "set_parent_size"
	case positionerRequestSetParentConfigure:
		return "set_parent_configure"
	}
	return "unknown"
}

func (p *Positioner) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case positionerRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		p.client.destroy(p)
		return nil

	case positionerRequestSetSize:
		width := msg.ReadInt()
		height := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		if width <= 0 || height <= 0 {
			return protoErr(p, PositionerErrorInvalidInput, "set_size: invalid size %vx%v", width, height)
		}
		p.size = image.Pt(int(width), int(height))
		return nil

	case positionerRequestSetAnchorRect:
		x := msg.ReadInt()
		y := msg.ReadInt()
		width := msg.ReadInt()
		height := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		if width < 0 || height < 0 {
			return protoErr(p, PositionerErrorInvalidInput, "set_anchor_rect: negative size %vx%v", width, height)
		}
		p.anchorRect = image.Rect(int(x), int(y), int(x+width), int(y+height))
		p.rectSet = true
		return nil

	case positionerRequestSetAnchor:
		anchor := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		if anchor > AnchorBottomRight {
			return protoErr(p, PositionerErrorInvalidInput, "set_anchor: invalid anchor %v", anchor)
		}
		p.anchor = anchor
		return nil

	case positionerRequestSetGravity:
		gravity := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		if gravity > AnchorBottomRight {
			return protoErr(p, PositionerErrorInvalidInput, "set_gravity: invalid gravity %v", gravity)
		}
		p.gravity = gravity
		return nil

	case positionerRequestSetConstraintAdjustment:
		adjustment := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		p.adjustment = adjustment
		return nil

	case positionerRequestSetOffset:
		x := msg.ReadInt()
		y := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		p.offset = image.Pt(int(x), int(y))
		return nil

	case positionerRequestSetReactive:
		if err := since(p, 3, "set_reactive"); err != nil {
			return err
		}
		if err := msg.Err(); err != nil {
			return err
		}
		p.reactive = true
		return nil

	case positionerRequestSetParentSize:
		if err := since(p, 3, "set_parent_size"); err != nil {
			return err
		}
		msg.ReadInt()
		msg.ReadInt()
		return msg.Err()

	case positionerRequestSetParentConfigure:
		if err := since(p, 3, "set_parent_configure"); err != nil {
			return err
		}
		msg.ReadUint()
		return msg.Err()

	default:
		return wire.UnknownOpError{Interface: PositionerInterface, Type: "request", Op: msg.Op()}
	}
}

// complete reports whether the positioner can place a popup: both a
// size and an anchor rectangle are required.
func (p *Positioner) complete() bool {
	return p.size != image.Point{} && p.rectSet
}

// place computes the popup rectangle relative to the parent's window
// geometry from the snapshot of the positioner's parameters.
func (p *Positioner) place() image.Rectangle {
	pt := anchorPoint(p.anchorRect, p.anchor)
	pt = pt.Add(p.offset)
	pt = pt.Add(gravityShift(p.size, p.gravity))
	return image.Rectangle{Min: pt, Max: pt.Add(p.size)}
}

func anchorPoint(r image.Rectangle, anchor uint32) image.Point {
	pt := image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
	switch anchor {
	case AnchorTop, AnchorTopLeft, AnchorTopRight:
		pt.Y = r.Min.Y
	case AnchorBottom, AnchorBottomLeft, AnchorBottomRight:
		pt.Y = r.Max.Y
	}
	switch anchor {
	case AnchorLeft, AnchorTopLeft, AnchorBottomLeft:
		pt.X = r.Min.X
	case AnchorRight, AnchorTopRight, AnchorBottomRight:
		pt.X = r.Max.X
	}
	return pt
}

// gravityShift positions the popup's box relative to the anchor
// point. Gravity names the direction the popup extends towards.
func gravityShift(size image.Point, gravity uint32) image.Point {
	shift := image.Pt(-size.X/2, -size.Y/2)
	switch gravity {
	case AnchorTop, AnchorTopLeft, AnchorTopRight:
		shift.Y = -size.Y
	case AnchorBottom, AnchorBottomLeft, AnchorBottomRight:
		shift.Y = 0
	}
	switch gravity {
	case AnchorLeft, AnchorTopLeft, AnchorBottomLeft:
		shift.X = -size.X
	case AnchorRight, AnchorTopRight, AnchorBottomRight:
		shift.X = 0
	}
	return shift
}
