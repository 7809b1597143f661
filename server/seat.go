package wl

import (
	"os"

	"deedles.dev/shoji/wire"
	"golang.org/x/exp/slices"
)

const (
	SeatInterface = "wl_seat"
	SeatVersion   = 9

	PointerInterface  = "wl_pointer"
	KeyboardInterface = "wl_keyboard"
	TouchInterface    = "wl_touch"
)

const (
	seatRequestGetPointer uint16 = iota
	seatRequestGetKeyboard
	seatRequestGetTouch
	seatRequestRelease
)

const (
	seatEventCapabilities uint16 = iota
	seatEventName
)

// wl_seat error codes.
const (
	SeatErrorMissingCapability uint32 = iota
)

// SeatCapability is a bitmask of the device classes a seat offers.
type SeatCapability uint32

const (
	SeatCapabilityPointer  SeatCapability = 1 << 0
	SeatCapabilityKeyboard SeatCapability = 1 << 1
	SeatCapabilityTouch    SeatCapability = 1 << 2
)

// Seat is a process-wide collection of input devices. It owns the
// selection: at most one data source, offered to every client with a
// data device for the seat.
type Seat struct {
	server *Server
	global *Global
	name   string

	// Guarded by server.mu.
	caps            SeatCapability
	resources       []*SeatResource
	devices         []*DataDevice
	selection       *DataSource
	selectionSerial uint32
}

// AddSeat advertises a seat global. Capabilities may change later via
// UpdateCapabilities.
func (server *Server) AddSeat(name string, caps SeatCapability) *Seat {
	seat := &Seat{
		server: server,
		name:   name,
		caps:   caps,
	}
	seat.global = server.AddGlobal(SeatInterface, SeatVersion, func(client *Client, id wire.NewID) error {
		res := &SeatResource{
			object: object{version: id.Version, client: client},
			seat:   seat,
		}
		if err := client.store.AddClient(id.ID, res); err != nil {
			return protoErr(client.Display(), DisplayErrorInvalidObject, "bind wl_seat: %v", err)
		}
		seat.resources = append(seat.resources, res)
		res.Capabilities(seat.caps)
		if id.Version >= 2 {
			res.Name(seat.name)
		}
		return nil
	})
	return seat
}

// Name is the seat's identifying name.
func (seat *Seat) Name() string {
	return seat.name
}

// Remove retracts the seat's global advertisement. Bound resources
// stay alive until their clients release them.
func (seat *Seat) Remove() {
	seat.server.RemoveGlobal(seat.global)
}

// UpdateCapabilities announces a new device-class set to every bound
// seat resource.
func (seat *Seat) UpdateCapabilities(caps SeatCapability) {
	seat.server.mu.Lock()
	defer seat.server.mu.Unlock()

	seat.caps = caps
	for _, res := range seat.resources {
		res.Capabilities(caps)
	}
}

// Selection returns the current selection source, or nil if the
// selection is empty.
func (seat *Seat) Selection() *DataSource {
	seat.server.mu.Lock()
	defer seat.server.mu.Unlock()
	return seat.selection
}

// setSelection installs src as the seat's selection, cancelling the
// previous source and offering the new one to every other client's
// data devices. Called with server.mu held. A nil src clears the
// selection.
func (seat *Seat) setSelection(src *DataSource, serial uint32) {
	if seat.selection == src {
		return
	}

	prev := seat.selection
	seat.selection = src
	seat.selectionSerial = serial
	if prev != nil {
		prev.cancel()
	}

	for _, dev := range seat.devices {
		if src != nil && dev.client == src.client {
			// The owner already knows what it offered.
			continue
		}
		dev.offerSelection(src)
	}
}

func (seat *Seat) removeDevice(dev *DataDevice) {
	if i := slices.Index(seat.devices, dev); i >= 0 {
		seat.devices = slices.Delete(seat.devices, i, i+1)
	}
}

// SeatResource is one client's binding of a seat global.
type SeatResource struct {
	object
	seat *Seat
}

func (res *SeatResource) Interface() string {
	return SeatInterface
}

func (res *SeatResource) MethodName(op uint16) string {
	switch op {
	case seatRequestGetPointer:
		return "get_pointer"
	case seatRequestGetKeyboard:
		return "get_keyboard"
	case seatRequestGetTouch:
		return "get_touch"
	case seatRequestRelease:
		return "release"
	}
	return "unknown"
}

func (res *SeatResource) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case seatRequestGetPointer:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		if res.seat.caps&SeatCapabilityPointer == 0 {
			return protoErr(res, SeatErrorMissingCapability, "get_pointer on seat without pointer capability")
		}
		p := &Pointer{object: object{version: res.version, client: res.client}, seat: res.seat}
		if err := res.client.store.AddClient(id, p); err != nil {
			return protoErr(res, DisplayErrorInvalidObject, "get_pointer: %v", err)
		}
		return nil

	case seatRequestGetKeyboard:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		if res.seat.caps&SeatCapabilityKeyboard == 0 {
			return protoErr(res, SeatErrorMissingCapability, "get_keyboard on seat without keyboard capability")
		}
		k := &Keyboard{object: object{version: res.version, client: res.client}, seat: res.seat}
		if err := res.client.store.AddClient(id, k); err != nil {
			return protoErr(res, DisplayErrorInvalidObject, "get_keyboard: %v", err)
		}
		return nil

	case seatRequestGetTouch:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		if res.seat.caps&SeatCapabilityTouch == 0 {
			return protoErr(res, SeatErrorMissingCapability, "get_touch on seat without touch capability")
		}
		t := &Touch{object: object{version: res.version, client: res.client}, seat: res.seat}
		if err := res.client.store.AddClient(id, t); err != nil {
			return protoErr(res, DisplayErrorInvalidObject, "get_touch: %v", err)
		}
		return nil

	case seatRequestRelease:
		if err := since(res, 5, "release"); err != nil {
			return err
		}
		if err := msg.Err(); err != nil {
			return err
		}
		res.client.destroy(res)
		return nil

	default:
		return wire.UnknownOpError{Interface: SeatInterface, Type: "request", Op: msg.Op()}
	}
}

func (res *SeatResource) Delete() {
	if i := slices.Index(res.seat.resources, res); i >= 0 {
		res.seat.resources = slices.Delete(res.seat.resources, i, i+1)
	}
}

func (res *SeatResource) Capabilities(caps SeatCapability) {
	msg := wire.NewMessage(res, seatEventCapabilities)
	msg.Method = "capabilities"
	msg.Args = []any{uint32(caps)}
	msg.WriteUint(uint32(caps))
	res.client.Enqueue(msg)
}

func (res *SeatResource) Name(name string) {
	msg := wire.NewMessage(res, seatEventName)
	msg.Method = "name"
	msg.Args = []any{name}
	msg.WriteString(name)
	res.client.Enqueue(msg)
}

const (
	pointerRequestSetCursor uint16 = iota
	pointerRequestRelease
)

const (
	pointerEventEnter uint16 = iota
	pointerEventLeave
	pointerEventMotion
	pointerEventButton
	pointerEventAxis
	pointerEventFrame
)

// Pointer button states.
const (
	ButtonStateReleased uint32 = iota
	ButtonStatePressed
)

// Pointer is one client's wl_pointer. The compositor drives its
// events; the serial-bearing ones feed the client's input-serial
// record so that later serial-validated requests can be checked.
type Pointer struct {
	object
	seat *Seat
}

func (p *Pointer) Interface() string {
	return PointerInterface
}

func (p *Pointer) MethodName(op uint16) string {
	switch op {
	case pointerRequestSetCursor:
		return "set_cursor"
	case pointerRequestRelease:
		return "release"
	}
	return "unknown"
}

func (p *Pointer) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case pointerRequestSetCursor:
		serial := msg.ReadUint()
		surfaceID := msg.ReadUint()
		hotspotX := msg.ReadInt()
		hotspotY := msg.ReadInt()
		if err := msg.Err(); err != nil {
			return err
		}
		// Cursor images are a rendering concern. The request is
		// validated and otherwise ignored.
		_, _, _ = serial, hotspotX, hotspotY
		if surfaceID != 0 {
			if _, ok := p.client.Get(surfaceID).(*Surface); !ok {
				return protoErr(p, DisplayErrorInvalidObject, "set_cursor: %v is not a wl_surface", surfaceID)
			}
		}
		return nil

	case pointerRequestRelease:
		if err := since(p, 3, "release"); err != nil {
			return err
		}
		if err := msg.Err(); err != nil {
			return err
		}
		p.client.destroy(p)
		return nil

	default:
		return wire.UnknownOpError{Interface: PointerInterface, Type: "request", Op: msg.Op()}
	}
}

// Enter reports pointer focus entering a surface. It returns the
// serial it consumed.
func (p *Pointer) Enter(s *Surface, x, y wire.Fixed) uint32 {
	serial := p.client.server.NextSerial()
	p.client.RecordInputSerial(serial)

	msg := wire.NewMessage(p, pointerEventEnter)
	msg.Method = "enter"
	msg.Args = []any{serial, s.ID(), x, y}
	msg.WriteUint(serial)
	msg.WriteObject(s)
	msg.WriteFixed(x)
	msg.WriteFixed(y)
	p.client.Enqueue(msg)
	return serial
}

// Leave reports pointer focus leaving a surface.
func (p *Pointer) Leave(s *Surface) uint32 {
	serial := p.client.server.NextSerial()
	p.client.RecordInputSerial(serial)

	msg := wire.NewMessage(p, pointerEventLeave)
	msg.Method = "leave"
	msg.Args = []any{serial, s.ID()}
	msg.WriteUint(serial)
	msg.WriteObject(s)
	p.client.Enqueue(msg)
	return serial
}

// Motion reports pointer movement in surface-local coordinates.
func (p *Pointer) Motion(time uint32, x, y wire.Fixed) {
	msg := wire.NewMessage(p, pointerEventMotion)
	msg.Method = "motion"
	msg.Args = []any{time, x, y}
	msg.WriteUint(time)
	msg.WriteFixed(x)
	msg.WriteFixed(y)
	p.client.Enqueue(msg)
}

// Button reports a button press or release. It returns the serial it
// consumed, which clients may use for serial-validated requests such
// as interactive moves or selection changes.
func (p *Pointer) Button(time, button, state uint32) uint32 {
	serial := p.client.server.NextSerial()
	p.client.RecordInputSerial(serial)

	msg := wire.NewMessage(p, pointerEventButton)
	msg.Method = "button"
	msg.Args = []any{serial, time, button, state}
	msg.WriteUint(serial)
	msg.WriteUint(time)
	msg.WriteUint(button)
	msg.WriteUint(state)
	p.client.Enqueue(msg)
	return serial
}

// Frame marks the end of a logical group of pointer events.
func (p *Pointer) Frame() {
	if p.version < 5 {
		return
	}
	msg := wire.NewMessage(p, pointerEventFrame)
	msg.Method = "frame"
	p.client.Enqueue(msg)
}

const (
	keyboardRequestRelease uint16 = iota
)

const (
	keyboardEventKeymap uint16 = iota
	keyboardEventEnter
	keyboardEventLeave
	keyboardEventKey
	keyboardEventModifiers
	keyboardEventRepeatInfo
)

// Keyboard key states.
const (
	KeyStateReleased uint32 = iota
	KeyStatePressed
)

// KeymapFormatXkbV1 is the xkbcommon-compatible keymap format.
const KeymapFormatXkbV1 uint32 = 1

// Keyboard is one client's wl_keyboard.
type Keyboard struct {
	object
	seat *Seat
}

func (k *Keyboard) Interface() string {
	return KeyboardInterface
}

func (k *Keyboard) MethodName(op uint16) string {
	if op == keyboardRequestRelease {
		return "release"
	}
	return "unknown"
}

func (k *Keyboard) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case keyboardRequestRelease:
		if err := since(k, 3, "release"); err != nil {
			return err
		}
		if err := msg.Err(); err != nil {
			return err
		}
		k.client.destroy(k)
		return nil

	default:
		return wire.UnknownOpError{Interface: KeyboardInterface, Type: "request", Op: msg.Op()}
	}
}

// Keymap transfers a keymap to the client by descriptor.
func (k *Keyboard) Keymap(format uint32, file *os.File, size uint32) {
	msg := wire.NewMessage(k, keyboardEventKeymap)
	msg.Method = "keymap"
	msg.Args = []any{format, file, size}
	msg.WriteUint(format)
	msg.WriteFile(file)
	msg.WriteUint(size)
	k.client.Enqueue(msg)
}

// Enter reports keyboard focus entering a surface. keys holds the
// currently pressed scancodes.
func (k *Keyboard) Enter(s *Surface, keys []byte) uint32 {
	serial := k.client.server.NextSerial()
	k.client.RecordInputSerial(serial)

	msg := wire.NewMessage(k, keyboardEventEnter)
	msg.Method = "enter"
	msg.Args = []any{serial, s.ID(), keys}
	msg.WriteUint(serial)
	msg.WriteObject(s)
	msg.WriteArray(keys)
	k.client.Enqueue(msg)
	return serial
}

// Leave reports keyboard focus leaving a surface.
func (k *Keyboard) Leave(s *Surface) uint32 {
	serial := k.client.server.NextSerial()
	k.client.RecordInputSerial(serial)

	msg := wire.NewMessage(k, keyboardEventLeave)
	msg.Method = "leave"
	msg.Args = []any{serial, s.ID()}
	msg.WriteUint(serial)
	msg.WriteObject(s)
	k.client.Enqueue(msg)
	return serial
}

// Key reports a key press or release and returns the serial it
// consumed.
func (k *Keyboard) Key(time, key, state uint32) uint32 {
	serial := k.client.server.NextSerial()
	k.client.RecordInputSerial(serial)

	msg := wire.NewMessage(k, keyboardEventKey)
	msg.Method = "key"
	msg.Args = []any{serial, time, key, state}
	msg.WriteUint(serial)
	msg.WriteUint(time)
	msg.WriteUint(key)
	msg.WriteUint(state)
	k.client.Enqueue(msg)
	return serial
}

// Modifiers reports the modifier state.
func (k *Keyboard) Modifiers(depressed, latched, locked, group uint32) uint32 {
	serial := k.client.server.NextSerial()
	k.client.RecordInputSerial(serial)

	msg := wire.NewMessage(k, keyboardEventModifiers)
	msg.Method = "modifiers"
	msg.Args = []any{serial, depressed, latched, locked, group}
	msg.WriteUint(serial)
	msg.WriteUint(depressed)
	msg.WriteUint(latched)
	msg.WriteUint(locked)
	msg.WriteUint(group)
	k.client.Enqueue(msg)
	return serial
}

// RepeatInfo reports the key repeat rate and delay.
func (k *Keyboard) RepeatInfo(rate, delay int32) {
	if k.version < 4 {
		return
	}
	msg := wire.NewMessage(k, keyboardEventRepeatInfo)
	msg.Method = "repeat_info"
	msg.Args = []any{rate, delay}
	msg.WriteInt(rate)
	msg.WriteInt(delay)
	k.client.Enqueue(msg)
}

const (
	touchRequestRelease uint16 = iota
)

const (
	touchEventDown uint16 = iota
	touchEventUp
	touchEventMotion
	touchEventFrame
	touchEventCancel
)

// Touch is one client's wl_touch.
type Touch struct {
	object
	seat *Seat
}

func (t *Touch) Interface() string {
	return TouchInterface
}

func (t *Touch) MethodName(op uint16) string {
	if op == touchRequestRelease {
		return "release"
	}
	return "unknown"
}

func (t *Touch) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case touchRequestRelease:
		if err := since(t, 3, "release"); err != nil {
			return err
		}
		if err := msg.Err(); err != nil {
			return err
		}
		t.client.destroy(t)
		return nil

	default:
		return wire.UnknownOpError{Interface: TouchInterface, Type: "request", Op: msg.Op()}
	}
}

// Down reports a new touch point on a surface and returns the serial
// it consumed.
func (t *Touch) Down(time uint32, s *Surface, id int32, x, y wire.Fixed) uint32 {
	serial := t.client.server.NextSerial()
	t.client.RecordInputSerial(serial)

	msg := wire.NewMessage(t, touchEventDown)
	msg.Method = "down"
	msg.Args = []any{serial, time, s.ID(), id, x, y}
	msg.WriteUint(serial)
	msg.WriteUint(time)
	msg.WriteObject(s)
	msg.WriteInt(id)
	msg.WriteFixed(x)
	msg.WriteFixed(y)
	t.client.Enqueue(msg)
	return serial
}

// Up reports the end of a touch point and returns the serial it
// consumed.
func (t *Touch) Up(time uint32, id int32) uint32 {
	serial := t.client.server.NextSerial()
	t.client.RecordInputSerial(serial)

	msg := wire.NewMessage(t, touchEventUp)
	msg.Method = "up"
	msg.Args = []any{serial, time, id}
	msg.WriteUint(serial)
	msg.WriteUint(time)
	msg.WriteInt(id)
	t.client.Enqueue(msg)
	return serial
}

// Motion reports movement of a touch point.
func (t *Touch) Motion(time uint32, id int32, x, y wire.Fixed) {
	msg := wire.NewMessage(t, touchEventMotion)
	msg.Method = "motion"
	msg.Args = []any{time, id, x, y}
	msg.WriteUint(time)
	msg.WriteInt(id)
	msg.WriteFixed(x)
	msg.WriteFixed(y)
	t.client.Enqueue(msg)
}

// Frame marks the end of a logical group of touch events.
func (t *Touch) Frame() {
	msg := wire.NewMessage(t, touchEventFrame)
	msg.Method = "frame"
	t.client.Enqueue(msg)
}

// Cancel tells the client the touch session was taken over by the
// compositor.
func (t *Touch) Cancel() {
	msg := wire.NewMessage(t, touchEventCancel)
	msg.Method = "cancel"
	t.client.Enqueue(msg)
}
