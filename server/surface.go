package wl

import (
	"image"

	"deedles.dev/shoji/wire"
)

const (
	SurfaceInterface = "wl_surface"
	SurfaceVersion   = 6
)

const (
	surfaceRequestDestroy uint16 = iota
	surfaceRequestAttach
	surfaceRequestDamage
	surfaceRequestFrame
	surfaceRequestSetOpaqueRegion
	surfaceRequestSetInputRegion
	surfaceRequestCommit
	surfaceRequestSetBufferTransform
	surfaceRequestSetBufferScale
	surfaceRequestDamageBuffer
	surfaceRequestOffset
)

const (
	surfaceEventEnter uint16 = iota
	surfaceEventLeave
	surfaceEventPreferredBufferScale
	surfaceEventPreferredBufferTransform
)

// wl_surface error codes.
const (
	SurfaceErrorInvalidScale uint32 = iota
	SurfaceErrorInvalidTransform
	SurfaceErrorInvalidSize
	SurfaceErrorInvalidOffset
	SurfaceErrorDefunctRoleObject
)

// OutputTransform is a wl_output.transform value.
type OutputTransform int32

const (
	TransformNormal OutputTransform = iota
	Transform90
	Transform180
	Transform270
	TransformFlipped
	TransformFlipped90
	TransformFlipped180
	TransformFlipped270
)

// role is implemented by shell objects that govern a surface's
// mapping through the configure/ack state machine.
type role interface {
	wire.Object

	// precommit runs before the surface's pending state is applied.
	// buf is the buffer the surface will have once the commit lands,
	// or nil. A non-nil error aborts the commit.
	precommit(buf *Buffer, scale int32) error

	// postcommit runs after the pending state has been applied.
	postcommit(hasBuffer bool)
}

// surfaceState is one copy of a surface's double-buffered state.
type surfaceState struct {
	buffer       *Buffer
	bufferSet    bool
	offset       image.Point
	damage       []image.Rectangle
	bufferDamage []image.Rectangle
	opaque       regionData
	input        regionData
	scale        int32
	transform    OutputTransform
	frames       []*Callback
}

// Surface is a wl_surface: pending state mutated by requests, and
// current state that changes only through commit.
type Surface struct {
	object
	pending surfaceState
	current surfaceState

	// role is the name of the role ever assigned to the surface; it
	// is sticky for the surface's whole lifetime. roleID is the live
	// shell object, referenced by ID and existence-checked against
	// the object table on each use. shellID is the xdg_surface
	// extension object, if one was created, tracked the same way.
	role    string
	roleID  uint32
	shellID uint32

	// frames accumulates committed frame callbacks until the
	// compositor fires them.
	frames []*Callback

	inhibitors int
}

func newSurface(client *Client, version uint32) *Surface {
	s := &Surface{object: object{version: version, client: client}}
	s.pending.scale = 1
	s.current.scale = 1
	// The default input region is infinite; the default opaque
	// region is empty.
	s.pending.opaque = regionData{}
	s.current.opaque = regionData{}
	return s
}

func (s *Surface) Interface() string {
	return SurfaceInterface
}

func (s *Surface) MethodName(op uint16) string {
	switch op {
	case surfaceRequestDestroy:
		return "destroy"
	case surfaceRequestAttach:
		return "attach"
	case surfaceRequestDamage:
		return "damage"
	case surfaceRequestFrame:
		return "frame"
	case surfaceRequestSetOpaqueRegion:
		return "set_opaque_region"
	case surfaceRequestSetInputRegion:
		return "set_input_region"
	case surfaceRequestCommit:
		return "commit"
	case surfaceRequestSetBufferTransform:
		return "set_buffer_transform"
	case surfaceRequestSetBufferScale:
		return "set_buffer_scale"
	case surfaceRequestDamageBuffer:
		return "damage_buffer"
	case surfaceRequestOffset:
		return "offset"
	}
	return "unknown"
}

func (s *Surface) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case surfaceRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		return s.destroy()

	case surfaceRequestAttach:
		bufferID := msg.ReadUint()
		x := msg.ReadInt()
		y := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		return s.attach(bufferID, x, y)

	case surfaceRequestDamage:
		x := msg.ReadInt()
		y := msg.ReadInt()
		width := msg.ReadInt()
		height := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		s.pending.damage = append(s.pending.damage, image.Rect(int(x), int(y), int(x+width), int(y+height)))
		return nil

	case surfaceRequestFrame:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		cb := &Callback{object: object{version: CallbackVersion, client: s.client}}
		if err := s.client.store.AddClient(id, cb); err != nil {
			return protoErr(s, DisplayErrorInvalidObject, "frame: %v", err)
		}
		s.pending.frames = append(s.pending.frames, cb)
		return nil

	case surfaceRequestSetOpaqueRegion:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		ops, err := s.regionOps(id)
		if err != nil {
			return err
		}
		if ops == nil {
			ops = regionData{}
		}
		s.pending.opaque = ops
		return nil

	case surfaceRequestSetInputRegion:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		ops, err := s.regionOps(id)
		if err != nil {
			return err
		}
		s.pending.input = ops
		return nil

	case surfaceRequestCommit:
		if err := msg.Err(); err != nil {
			return err
		}
		return s.commit()

	case surfaceRequestSetBufferTransform:
		if err := since(s, 2, "set_buffer_transform"); err != nil {
			return err
		}
		transform := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		if transform < 0 || transform > int32(TransformFlipped270) {
			return protoErr(s, SurfaceErrorInvalidTransform, "set_buffer_transform: %v", transform)
		}
		s.pending.transform = OutputTransform(transform)
		return nil

	case surfaceRequestSetBufferScale:
		if err := since(s, 3, "set_buffer_scale"); err != nil {
			return err
		}
		scale := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		if scale < 1 {
			return protoErr(s, SurfaceErrorInvalidScale, "set_buffer_scale: %v", scale)
		}
		s.pending.scale = scale
		return nil

	case surfaceRequestDamageBuffer:
		if err := since(s, 4, "damage_buffer"); err != nil {
			return err
		}
		x := msg.ReadInt()
		y := msg.ReadInt()
		width := msg.ReadInt()
		height := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		s.pending.bufferDamage = append(s.pending.bufferDamage, image.Rect(int(x), int(y), int(x+width), int(y+height)))
		return nil

	case surfaceRequestOffset:
		if err := since(s, 5, "offset"); err != nil {
			return err
		}
		x := msg.ReadInt()
		y := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		s.pending.offset = image.Pt(int(x), int(y))
		return nil

	default:
		return wire.UnknownOpError{Interface: SurfaceInterface, Type: "request", Op: msg.Op()}
	}
}

func (s *Surface) regionOps(id uint32) (regionData, error) {
	if id == 0 {
		return nil, nil
	}
	region, ok := s.client.Get(id).(*Region)
	if !ok {
		return nil, protoErr(s, DisplayErrorInvalidObject, "no such wl_region: %v", id)
	}
	// Copy semantics: later changes to the wl_region have no effect.
	return region.ops.clone(), nil
}

// shellRole resolves the surface's live shell object, if any. A role
// whose object has been destroyed leaves the surface a plain surface
// again, but the role name stays assigned.
func (s *Surface) shellRole() role {
	if s.roleID == 0 {
		return nil
	}
	r, _ := s.client.Get(s.roleID).(role)
	return r
}

func (s *Surface) setRole(name string, obj wire.Object) error {
	if s.role != "" && s.role != name {
		return protoErr(s, DisplayErrorImplementation, "surface already has the %v role", s.role)
	}
	if s.roleID != 0 && s.client.Get(s.roleID) != nil {
		return protoErr(s, DisplayErrorImplementation, "surface already has a live role object")
	}
	s.role = name
	s.roleID = obj.ID()
	return nil
}

func (s *Surface) destroy() error {
	if s.roleID != 0 && s.client.Get(s.roleID) != nil {
		return protoErr(s, SurfaceErrorDefunctRoleObject, "surface destroyed before its role object")
	}
	s.client.destroy(s)
	return nil
}

func (s *Surface) attach(bufferID uint32, x, y int32) error {
	if s.version >= 5 && (x != 0 || y != 0) {
		return protoErr(s, SurfaceErrorInvalidOffset, "attach: nonzero offset (%v, %v)", x, y)
	}
	if s.role != "" && s.shellRole() == nil {
		return protoErr(s, SurfaceErrorDefunctRoleObject, "attach to a surface whose role object was destroyed")
	}

	var buf *Buffer
	if bufferID != 0 {
		var ok bool
		buf, ok = s.client.Get(bufferID).(*Buffer)
		if !ok {
			return protoErr(s, DisplayErrorInvalidObject, "attach: no such wl_buffer: %v", bufferID)
		}
		// Never trust the declaration that created the buffer; its
		// storage may have changed since.
		if err := buf.backing.validate(); err != nil {
			return err
		}
	}

	s.pending.buffer = buf
	s.pending.bufferSet = true
	if s.version < 5 {
		s.pending.offset = image.Pt(int(x), int(y))
	}
	return nil
}

// commit atomically replaces the surface's current state with its
// pending state.
func (s *Surface) commit() error {
	next := s.current.buffer
	if s.pending.bufferSet {
		next = s.pending.buffer
	}

	if s.pending.bufferSet && s.pending.buffer != nil {
		if err := s.pending.buffer.backing.validate(); err != nil {
			return err
		}
	}

	if r := s.shellRole(); r != nil {
		if err := r.precommit(next, s.pending.scale); err != nil {
			return err
		}
	}

	prev := s.current.buffer
	swapped := false
	if s.pending.bufferSet {
		if next != nil && next != prev {
			next.lock()
			next.needsRelease = true
		}
		swapped = next != prev
		s.current.buffer = next
	}

	s.current.offset = s.pending.offset
	s.current.scale = s.pending.scale
	s.current.transform = s.pending.transform
	s.current.opaque = s.pending.opaque
	s.current.input = s.pending.input
	s.current.damage = append(s.current.damage, s.pending.damage...)
	s.current.bufferDamage = append(s.current.bufferDamage, s.pending.bufferDamage...)
	s.frames = append(s.frames, s.pending.frames...)

	// Pending damage is empty immediately after every commit, and an
	// attach never carries over to the next commit.
	s.pending.damage = nil
	s.pending.bufferDamage = nil
	s.pending.frames = nil
	s.pending.buffer = nil
	s.pending.bufferSet = false

	if backend := s.client.server.Backend; backend != nil {
		backend.Commit(s)
	}

	// The previous buffer leaves current state only now, after the
	// backend had its chance to acquire what it still needs.
	if swapped && prev != nil {
		prev.unlock()
	}

	if r := s.shellRole(); r != nil {
		r.postcommit(s.current.buffer != nil)
	}
	return nil
}

// CurrentBuffer is the buffer of the surface's current state, nil if
// none is mapped.
func (s *Surface) CurrentBuffer() *Buffer {
	return s.current.buffer
}

// Role is the name of the role assigned to the surface, or "".
func (s *Surface) Role() string {
	return s.role
}

// Scale is the committed buffer scale.
func (s *Surface) Scale() int32 {
	return s.current.scale
}

// Transform is the committed buffer transform.
func (s *Surface) Transform() OutputTransform {
	return s.current.transform
}

// TakeDamage returns the damage accumulated by commits since the last
// call and resets it. Rectangles are in surface-local coordinates,
// buffer-damage in buffer coordinates.
func (s *Surface) TakeDamage() (surface, buffer []image.Rectangle) {
	surface = s.current.damage
	buffer = s.current.bufferDamage
	s.current.damage = nil
	s.current.bufferDamage = nil
	return surface, buffer
}

// InputAt reports whether the committed input region contains the
// point, in surface-local coordinates.
func (s *Surface) InputAt(x, y int) bool {
	return s.current.input.contains(image.Pt(x, y))
}

// OpaqueAt reports whether the committed opaque region contains the
// point.
func (s *Surface) OpaqueAt(x, y int) bool {
	return s.current.opaque.contains(image.Pt(x, y))
}

// Frame fires every frame callback committed to the surface, in
// commit order. The compositor calls it when it starts drawing a new
// frame; t is a timestamp in milliseconds.
func (s *Surface) Frame(t uint32) {
	frames := s.frames
	s.frames = nil
	for _, cb := range frames {
		cb.Done(t)
	}
}

// Enter tells the client the surface now overlaps output.
func (s *Surface) Enter(output *Output) {
	msg := wire.NewMessage(s, surfaceEventEnter)
	msg.Method = "enter"
	msg.Args = []any{output.ID()}
	msg.WriteObject(output)
	s.client.Enqueue(msg)
}

// Leave tells the client the surface no longer overlaps output.
func (s *Surface) Leave(output *Output) {
	msg := wire.NewMessage(s, surfaceEventLeave)
	msg.Method = "leave"
	msg.Args = []any{output.ID()}
	msg.WriteObject(output)
	s.client.Enqueue(msg)
}

// PreferredBufferScale suggests a buffer scale to the client.
func (s *Surface) PreferredBufferScale(scale int32) error {
	if err := since(s, 6, "preferred_buffer_scale"); err != nil {
		return err
	}
	msg := wire.NewMessage(s, surfaceEventPreferredBufferScale)
	msg.Method = "preferred_buffer_scale"
	msg.Args = []any{scale}
	msg.WriteInt(scale)
	s.client.Enqueue(msg)
	return nil
}

func (s *Surface) Delete() {
	// Inhibitors on this surface stop counting, though their objects
	// stick around until the client destroys them.
	if s.inhibitors > 0 {
		s.client.server.idleInhibitors -= s.inhibitors
		s.inhibitors = 0
	}

	if s.current.buffer != nil {
		buf := s.current.buffer
		s.current.buffer = nil
		buf.unlock()
	}
}
