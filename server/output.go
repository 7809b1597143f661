package wl

import (
	"deedles.dev/shoji/wire"
)

const (
	OutputInterface = "wl_output"
	OutputVersion   = 4
)

const (
	outputRequestRelease uint16 = iota
)

const (
	outputEventGeometry uint16 = iota
	outputEventMode
	outputEventDone
	outputEventScale
	outputEventName
	outputEventDescription
)

// wl_output mode flags.
const (
	OutputModeCurrent   uint32 = 1 << 0
	OutputModePreferred uint32 = 1 << 1
)

// OutputConfig describes a display for advertisement to clients.
type OutputConfig struct {
	X, Y            int32
	PhysicalWidth   int32
	PhysicalHeight  int32
	Subpixel        int32
	Make, Model     string
	Transform       OutputTransform
	Width, Height   int32
	Refresh         int32
	Scale           int32
	Name            string
	Description     string
}

// Output is one client's view of a display.
type Output struct {
	object
	config OutputConfig
}

// AddOutput advertises a display as a wl_output global. Removing the
// returned global unplugs it.
func (server *Server) AddOutput(config OutputConfig) *Global {
	if config.Scale == 0 {
		config.Scale = 1
	}
	return server.AddGlobal(OutputInterface, OutputVersion, func(client *Client, id wire.NewID) error {
		o := &Output{
			object: object{version: id.Version, client: client},
			config: config,
		}
		if err := client.store.AddClient(id.ID, o); err != nil {
			return protoErr(client.Display(), DisplayErrorInvalidObject, "bind wl_output: %v", err)
		}
		o.describe()
		return nil
	})
}

func (o *Output) Interface() string {
	return OutputInterface
}

func (o *Output) MethodName(op uint16) string {
	if op == outputRequestRelease {
		return "release"
	}
	return "unknown"
}

func (o *Output) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case outputRequestRelease:
		if err := since(o, 3, "release"); err != nil {
			return err
		}
		if err := msg.Err(); err != nil {
			return err
		}
		o.client.destroy(o)
		return nil

	default:
		return wire.UnknownOpError{Interface: OutputInterface, Type: "request", Op: msg.Op()}
	}
}

// describe sends the full description of the display, ending with
// done so that clients see it atomically.
func (o *Output) describe() {
	o.Geometry()
	o.Mode(OutputModeCurrent|OutputModePreferred, o.config.Width, o.config.Height, o.config.Refresh)
	if o.version >= 2 {
		o.Scale(o.config.Scale)
	}
	if o.version >= 4 {
		if o.config.Name != "" {
			o.Name(o.config.Name)
		}
		if o.config.Description != "" {
			o.Description(o.config.Description)
		}
	}
	o.Done()
}

func (o *Output) Geometry() {
	c := o.config
	msg := wire.NewMessage(o, outputEventGeometry)
	msg.Method = "geometry"
	msg.Args = []any{c.X, c.Y, c.PhysicalWidth, c.PhysicalHeight, c.Subpixel, c.Make, c.Model, int32(c.Transform)}
	msg.WriteInt(c.X)
	msg.WriteInt(c.Y)
	msg.WriteInt(c.PhysicalWidth)
	msg.WriteInt(c.PhysicalHeight)
	msg.WriteInt(c.Subpixel)
	msg.WriteString(c.Make)
	msg.WriteString(c.Model)
	msg.WriteInt(int32(c.Transform))
	o.client.Enqueue(msg)
}

func (o *Output) Mode(flags uint32, width, height, refresh int32) {
	msg := wire.NewMessage(o, outputEventMode)
	msg.Method = "mode"
	msg.Args = []any{flags, width, height, refresh}
	msg.WriteUint(flags)
	msg.WriteInt(width)
	msg.WriteInt(height)
	msg.WriteInt(refresh)
	o.client.Enqueue(msg)
}

func (o *Output) Done() {
	if o.version < 2 {
		return
	}
	msg := wire.NewMessage(o, outputEventDone)
	msg.Method = "done"
	o.client.Enqueue(msg)
}

func (o *Output) Scale(factor int32) {
	msg := wire.NewMessage(o, outputEventScale)
	msg.Method = "scale"
	msg.Args = []any{factor}
	msg.WriteInt(factor)
	o.client.Enqueue(msg)
}

func (o *Output) Name(name string) {
	msg := wire.NewMessage(o, outputEventName)
	msg.Method = "name"
	msg.Args = []any{name}
	msg.WriteString(name)
	o.client.Enqueue(msg)
}

func (o *Output) Description(desc string) {
	msg := wire.NewMessage(o, outputEventDescription)
	msg.Method = "description"
	msg.Args = []any{desc}
	msg.WriteString(desc)
	o.client.Enqueue(msg)
}
