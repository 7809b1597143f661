package wl

import (
	"image"

	"deedles.dev/shoji/wire"
	"golang.org/x/exp/slices"
)

const (
	RegionInterface = "wl_region"
	RegionVersion   = 1
)

const (
	regionRequestDestroy uint16 = iota
	regionRequestAdd
	regionRequestSubtract
)

// regionOp is one add or subtract step of a region definition. Ops
// apply in order, so a region is evaluated as the sequence it was
// built from rather than normalized into spans.
type regionOp struct {
	rect     image.Rectangle
	subtract bool
}

// regionData is an immutable snapshot of a region's contents. Surface
// state holds snapshots, never live wl_region objects, so a region
// destroyed or mutated later cannot dangle into committed state.
type regionData []regionOp

// contains reports whether the point is inside the region. A nil
// region is infinite, matching the protocol's defaults for input and
// the empty-by-default opaque region being represented explicitly.
func (rd regionData) contains(pt image.Point) bool {
	if rd == nil {
		return true
	}
	in := false
	for _, op := range rd {
		if pt.In(op.rect) {
			in = !op.subtract
		}
	}
	return in
}

func (rd regionData) clone() regionData {
	if rd == nil {
		return nil
	}
	return slices.Clone(rd)
}

// Region is a wl_region under construction by a client.
type Region struct {
	object
	ops regionData
}

func (region *Region) Interface() string {
	return RegionInterface
}

func (region *Region) MethodName(op uint16) string {
	switch op {
	case regionRequestDestroy:
		return "destroy"
	case regionRequestAdd:
		return "add"
	case regionRequestSubtract:
		return "subtract"
	}
	return "unknown"
}

func (region *Region) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case regionRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		region.client.destroy(region)
		return nil

	case regionRequestAdd, regionRequestSubtract:
		x := msg.ReadInt()
		y := msg.ReadInt()
		width := msg.ReadInt()
		height := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		region.ops = append(region.ops, regionOp{
			rect:     image.Rect(int(x), int(y), int(x+width), int(y+height)),
			subtract: msg.Op() == regionRequestSubtract,
		})
		return nil

	default:
		return wire.UnknownOpError{Interface: RegionInterface, Type: "request", Op: msg.Op()}
	}
}
