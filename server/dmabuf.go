package wl

import (
	"fmt"
	"image"
	"os"

	"deedles.dev/shoji/wire"
	"golang.org/x/sys/unix"
)

const (
	LinuxDMABufInterface = "zwp_linux_dmabuf_v1"
	LinuxDMABufVersion   = 3

	BufferParamsInterface = "zwp_linux_buffer_params_v1"
)

const (
	dmabufRequestDestroy uint16 = iota
	dmabufRequestCreateParams
)

const (
	dmabufEventFormat uint16 = iota
	dmabufEventModifier
)

const (
	paramsRequestDestroy uint16 = iota
	paramsRequestAdd
	paramsRequestCreate
	paramsRequestCreateImmed
)

const (
	paramsEventCreated uint16 = iota
	paramsEventFailed
)

// zwp_linux_buffer_params_v1 error codes.
const (
	ParamsErrorAlreadyUsed uint32 = iota
	ParamsErrorPlaneIdx
	ParamsErrorPlaneSet
	ParamsErrorIncomplete
	ParamsErrorInvalidFormat
	ParamsErrorInvalidDimensions
	ParamsErrorOutOfBounds
	ParamsErrorInvalidWlBuffer
)

// DRM fourcc format codes.
const (
	FormatARGB8888 uint32 = 0x34325241
	FormatXRGB8888 uint32 = 0x34325258
	FormatNV12     uint32 = 0x3231564E
	FormatYUV420   uint32 = 0x32315559
)

// ModifierLinear is the DRM linear layout modifier.
const ModifierLinear uint64 = 0

// formatPlaneCounts maps each importable format to the number of
// memory planes it requires.
var formatPlaneCounts = map[uint32]int{
	FormatARGB8888: 1,
	FormatXRGB8888: 1,
	FormatNV12:     2,
	FormatYUV420:   3,
}

// DMABufFormat is one (format, modifier) pair a compositor accepts
// for kernel buffer import.
type DMABufFormat struct {
	Format   uint32
	Modifier uint64
}

// DMABufPlane is one memory plane of an imported kernel buffer,
// referenced by descriptor rather than copied.
type DMABufPlane struct {
	File     *os.File
	Offset   uint32
	Stride   uint32
	Modifier uint64
}

const maxPlanes = 4

// LinuxDMABuf is a client's zwp_linux_dmabuf_v1.
type LinuxDMABuf struct {
	object
	formats []DMABufFormat
}

// AddLinuxDMABuf advertises the zwp_linux_dmabuf_v1 global. The
// format table comes from startup configuration, typically queried
// from the backend.
func (server *Server) AddLinuxDMABuf(formats []DMABufFormat) *Global {
	return server.AddGlobal(LinuxDMABufInterface, LinuxDMABufVersion, func(client *Client, id wire.NewID) error {
		d := &LinuxDMABuf{
			object:  object{version: id.Version, client: client},
			formats: formats,
		}
		if err := client.store.AddClient(id.ID, d); err != nil {
			return protoErr(client.Display(), DisplayErrorInvalidObject, "bind zwp_linux_dmabuf_v1: %v", err)
		}
		for _, f := range formats {
			d.Format(f.Format)
			if id.Version >= 3 {
				d.Modifier(f.Format, f.Modifier)
			}
		}
		return nil
	})
}

func (d *LinuxDMABuf) Interface() string {
	return LinuxDMABufInterface
}

func (d *LinuxDMABuf) MethodName(op uint16) string {
	switch op {
	case dmabufRequestDestroy:
		return "destroy"
	case dmabufRequestCreateParams:
		return "create_params"
	}
	return "unknown"
}

func (d *LinuxDMABuf) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case dmabufRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		d.client.destroy(d)
		return nil

	case dmabufRequestCreateParams:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		params := &BufferParams{
			object: object{version: d.version, client: d.client},
			dmabuf: d,
			planes: make(map[uint32]DMABufPlane),
		}
		if err := d.client.store.AddClient(id, params); err != nil {
			return protoErr(d, DisplayErrorInvalidObject, "create_params: %v", err)
		}
		return nil

	default:
		return wire.UnknownOpError{Interface: LinuxDMABufInterface, Type: "request", Op: msg.Op()}
	}
}

func (d *LinuxDMABuf) supports(format uint32, modifier uint64) bool {
	for _, f := range d.formats {
		if f.Format == format && f.Modifier == modifier {
			return true
		}
	}
	return false
}

// Format advertises an importable format.
func (d *LinuxDMABuf) Format(format uint32) {
	msg := wire.NewMessage(d, dmabufEventFormat)
	msg.Method = "format"
	msg.Args = []any{format}
	msg.WriteUint(format)
	d.client.Enqueue(msg)
}

// Modifier advertises an importable (format, modifier) pair.
func (d *LinuxDMABuf) Modifier(format uint32, modifier uint64) {
	msg := wire.NewMessage(d, dmabufEventModifier)
	msg.Method = "modifier"
	msg.Args = []any{format, modifier}
	msg.WriteUint(format)
	msg.WriteUint(uint32(modifier >> 32))
	msg.WriteUint(uint32(modifier & 0xFFFFFFFF))
	d.client.Enqueue(msg)
}

// BufferParams collects the planes of a kernel buffer import. It is
// single-use: a create or create_immed consumes it.
type BufferParams struct {
	object
	dmabuf *LinuxDMABuf
	planes map[uint32]DMABufPlane
	used   bool
}

func (params *BufferParams) Interface() string {
	return BufferParamsInterface
}

func (params *BufferParams) MethodName(op uint16) string {
	switch op {
	case paramsRequestDestroy:
		return "destroy"
	case paramsRequestAdd:
		return "add"
	case paramsRequestCreate:
		return "create"
	case paramsRequestCreateImmed:
		return "create_immed"
	}
	return "unknown"
}

func (params *BufferParams) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case paramsRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		params.client.destroy(params)
		return nil

	case paramsRequestAdd:
		file := msg.ReadFile()
		planeIdx := msg.ReadUint()
		offset := msg.ReadUint()
		stride := msg.ReadUint()
		modHi := msg.ReadUint()
		modLo := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return params.add(file, planeIdx, offset, stride, uint64(modHi)<<32|uint64(modLo))

	case paramsRequestCreate:
		width := msg.ReadInt()
		height := msg.ReadInt()
		format := msg.ReadUint()
		flags := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return params.create(0, width, height, format, flags)

	case paramsRequestCreateImmed:
		id := msg.ReadUint()
		width := msg.ReadInt()
		height := msg.ReadInt()
		format := msg.ReadUint()
		flags := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return params.create(id, width, height, format, flags)

	default:
		return wire.UnknownOpError{Interface: BufferParamsInterface, Type: "request", Op: msg.Op()}
	}
}

func (params *BufferParams) add(file *os.File, planeIdx uint32, offset, stride uint32, modifier uint64) error {
	if params.used {
		file.Close()
		return protoErr(params, ParamsErrorAlreadyUsed, "add after create")
	}
	if planeIdx >= maxPlanes {
		file.Close()
		return protoErr(params, ParamsErrorPlaneIdx, "plane index %v out of range", planeIdx)
	}
	if _, ok := params.planes[planeIdx]; ok {
		file.Close()
		return protoErr(params, ParamsErrorPlaneSet, "plane %v already set", planeIdx)
	}

	params.planes[planeIdx] = DMABufPlane{
		File:     file,
		Offset:   offset,
		Stride:   stride,
		Modifier: modifier,
	}
	return nil
}

// create validates the collected planes and constructs the buffer. A
// zero id means the deferred create path, whose failures are
// recoverable and reported with the failed event; create_immed
// escalates them to a fatal protocol error instead.
func (params *BufferParams) create(id uint32, width, height int32, format, flags uint32) error {
	if params.used {
		return protoErr(params, ParamsErrorAlreadyUsed, "params already used")
	}
	params.used = true

	if width <= 0 || height <= 0 {
		return protoErr(params, ParamsErrorInvalidDimensions, "invalid dimensions %vx%v", width, height)
	}

	planes, err := params.validate(width, height, format)
	if err != nil {
		params.closePlanes()
		if id != 0 {
			return protoErr(params, ParamsErrorInvalidWlBuffer, "create_immed: %v", err)
		}
		params.Failed()
		return err
	}

	buf := &Buffer{
		object: object{version: BufferVersion, client: params.client},
		backing: &dmabufBacking{
			planes: planes,
			width:  width,
			height: height,
			format: format,
		},
	}
	if id != 0 {
		if err := params.client.store.AddClient(id, buf); err != nil {
			return protoErr(params, DisplayErrorInvalidObject, "create_immed: %v", err)
		}
		return nil
	}

	params.client.store.Add(buf)
	params.Created(buf)
	return nil
}

// validate checks the plane set against the format's requirements,
// each descriptor's validity, and the advertised modifier table, then
// asks the backend. The planes map is left untouched on failure.
func (params *BufferParams) validate(width, height int32, format uint32) ([]DMABufPlane, error) {
	need, ok := formatPlaneCounts[format]
	if !ok {
		return nil, ImportError{Reason: fmt.Sprintf("unsupported format %#x", format)}
	}
	if len(params.planes) != need {
		return nil, ImportError{Reason: fmt.Sprintf("format %#x requires %v planes, got %v", format, need, len(params.planes))}
	}

	planes := make([]DMABufPlane, need)
	for i := 0; i < need; i++ {
		plane, ok := params.planes[uint32(i)]
		if !ok {
			return nil, ImportError{Reason: fmt.Sprintf("plane %v missing", i)}
		}
		if !params.dmabuf.supports(format, plane.Modifier) {
			return nil, ImportError{Reason: fmt.Sprintf("unsupported modifier %#x for format %#x", plane.Modifier, format)}
		}

		var stat unix.Stat_t
		if err := unix.Fstat(int(plane.File.Fd()), &stat); err != nil {
			return nil, ImportError{Reason: fmt.Sprintf("plane %v: invalid descriptor: %v", i, err)}
		}
		if stat.Size > 0 && int64(plane.Offset)+int64(plane.Stride)*int64(height) > stat.Size {
			return nil, ImportError{Reason: fmt.Sprintf("plane %v extents exceed descriptor size", i)}
		}
		planes[i] = plane
	}

	if backend := params.client.server.Backend; backend != nil {
		if err := backend.ImportDMABuf(width, height, format, planes); err != nil {
			return nil, ImportError{Reason: err.Error()}
		}
	}
	return planes, nil
}

func (params *BufferParams) closePlanes() {
	for _, plane := range params.planes {
		plane.File.Close()
	}
	params.planes = map[uint32]DMABufPlane{}
}

func (params *BufferParams) Delete() {
	if !params.used {
		params.closePlanes()
	}
}

// Created announces a successful deferred import.
func (params *BufferParams) Created(buf *Buffer) {
	msg := wire.NewMessage(params, paramsEventCreated)
	msg.Method = "created"
	msg.Args = []any{buf.ID()}
	msg.WriteObject(buf)
	params.client.Enqueue(msg)
}

// Failed announces a rejected deferred import. The client may reuse
// the connection; only the import failed.
func (params *BufferParams) Failed() {
	msg := wire.NewMessage(params, paramsEventFailed)
	msg.Method = "failed"
	params.client.Enqueue(msg)
}

// dmabufBacking is a buffer imported from kernel memory planes. It is
// immutable after creation.
type dmabufBacking struct {
	planes []DMABufPlane
	width  int32
	height int32
	format uint32
}

func (b *dmabufBacking) size() image.Point {
	return image.Pt(int(b.width), int(b.height))
}

func (b *dmabufBacking) validate() error {
	// Imports are validated once, at creation; the planes are
	// immutable afterwards.
	return nil
}

func (b *dmabufBacking) destroy() {
	for _, plane := range b.planes {
		plane.File.Close()
	}
}

// Planes exposes an imported buffer's planes to the backend. It
// returns nil for shared-memory buffers.
func (buf *Buffer) Planes() []DMABufPlane {
	b, ok := buf.backing.(*dmabufBacking)
	if !ok {
		return nil
	}
	return b.planes
}

// Format returns an imported buffer's DRM format code, or zero for
// shared-memory buffers.
func (buf *Buffer) Format() uint32 {
	b, ok := buf.backing.(*dmabufBacking)
	if !ok {
		return 0
	}
	return b.format
}
