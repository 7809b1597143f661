package wl

import (
	"os"

	"deedles.dev/shoji/internal/debug"
	"deedles.dev/shoji/wire"
	"golang.org/x/exp/slices"
)

const (
	DataDeviceManagerInterface = "wl_data_device_manager"
	DataDeviceManagerVersion   = 3

	DataSourceInterface = "wl_data_source"
	DataDeviceInterface = "wl_data_device"
	DataOfferInterface  = "wl_data_offer"
)

const (
	ddmRequestCreateDataSource uint16 = iota
	ddmRequestGetDataDevice
)

// DataDeviceManager is a client's wl_data_device_manager.
type DataDeviceManager struct {
	object
}

// AddDataDeviceManager advertises the wl_data_device_manager global.
func (server *Server) AddDataDeviceManager() *Global {
	return server.AddGlobal(DataDeviceManagerInterface, DataDeviceManagerVersion, func(client *Client, id wire.NewID) error {
		m := &DataDeviceManager{object: object{version: id.Version, client: client}}
		if err := client.store.AddClient(id.ID, m); err != nil {
			return protoErr(client.Display(), DisplayErrorInvalidObject, "bind wl_data_device_manager: %v", err)
		}
		return nil
	})
}

func (m *DataDeviceManager) Interface() string {
	return DataDeviceManagerInterface
}

func (m *DataDeviceManager) MethodName(op uint16) string {
	switch op {
	case ddmRequestCreateDataSource:
		return "create_data_source"
	case ddmRequestGetDataDevice:
		return "get_data_device"
	}
	return "unknown"
}

func (m *DataDeviceManager) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case ddmRequestCreateDataSource:
		id := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		src := &DataSource{object: object{version: m.version, client: m.client}}
		if err := m.client.store.AddClient(id, src); err != nil {
			return protoErr(m, DisplayErrorInvalidObject, "create_data_source: %v", err)
		}
		return nil

	case ddmRequestGetDataDevice:
		id := msg.ReadUint()
		seatID := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		res, ok := m.client.Get(seatID).(*SeatResource)
		if !ok {
			return protoErr(m, DisplayErrorInvalidObject, "get_data_device: %v is not a wl_seat", seatID)
		}
		dev := &DataDevice{
			object: object{version: m.version, client: m.client},
			seat:   res.seat,
		}
		if err := m.client.store.AddClient(id, dev); err != nil {
			return protoErr(m, DisplayErrorInvalidObject, "get_data_device: %v", err)
		}
		res.seat.devices = append(res.seat.devices, dev)
		// A selection may already exist; the new device learns of it
		// immediately.
		if res.seat.selection != nil && res.seat.selection.client != m.client {
			dev.offerSelection(res.seat.selection)
		}
		return nil

	default:
		return wire.UnknownOpError{Interface: DataDeviceManagerInterface, Type: "request", Op: msg.Op()}
	}
}

const (
	dataSourceRequestOffer uint16 = iota
	dataSourceRequestDestroy
	dataSourceRequestSetActions
)

const (
	dataSourceEventTarget uint16 = iota
	dataSourceEventSend
	dataSourceEventCancelled
	dataSourceEventDnDDropPerformed
	dataSourceEventDnDFinished
	dataSourceEventAction
)

// wl_data_source error codes.
const (
	DataSourceErrorInvalidActionMask uint32 = iota
	DataSourceErrorInvalidSource
)

// DataSource is content offered for transfer. The owning client
// declares the mime types it can produce; transfers are pulled from
// it one pipe at a time.
type DataSource struct {
	object
	mimeTypes []string
	actions   uint32

	// seat is set once the source becomes a selection. A source is
	// single-use after that.
	seat      *Seat
	cancelled bool
}

func (src *DataSource) Interface() string {
	return DataSourceInterface
}

func (src *DataSource) MethodName(op uint16) string {
	switch op {
	case dataSourceRequestOffer:
		return "offer"
	case dataSourceRequestDestroy:
		return "destroy"
	case dataSourceRequestSetActions:
		return "set_actions"
	}
	return "unknown"
}

func (src *DataSource) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case dataSourceRequestOffer:
		mime := msg.ReadString()
		if err := msg.Err(); err != nil {
			return err
		}
		if !slices.Contains(src.mimeTypes, mime) {
			src.mimeTypes = append(src.mimeTypes, mime)
		}
		return nil

	case dataSourceRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		src.client.destroy(src)
		return nil

	case dataSourceRequestSetActions:
		if err := since(src, 3, "set_actions"); err != nil {
			return err
		}
		actions := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		if actions&^uint32(7) != 0 {
			return protoErr(src, DataSourceErrorInvalidActionMask, "set_actions: invalid action mask %#x", actions)
		}
		src.actions = actions
		return nil

	default:
		return wire.UnknownOpError{Interface: DataSourceInterface, Type: "request", Op: msg.Op()}
	}
}

// MimeTypes returns the mime types the source offers.
func (src *DataSource) MimeTypes() []string {
	return slices.Clone(src.mimeTypes)
}

// live reports whether the source object still exists in its owner's
// namespace. Offers hold on to sources across client boundaries and
// must check before forwarding.
func (src *DataSource) live() bool {
	return !src.client.dead && src.client.store.Get(src.id) == src
}

func (src *DataSource) Delete() {
	// Destroying the selection's source empties the selection.
	if src.seat != nil && src.seat.selection == src {
		src.seat.setSelection(nil, src.seat.selectionSerial)
	}
}

// cancel tells the owner the source was replaced or the transfer
// aborted. Called with server.mu held.
func (src *DataSource) cancel() {
	if src.cancelled || !src.live() {
		return
	}
	src.cancelled = true

	msg := wire.NewMessage(src, dataSourceEventCancelled)
	msg.Method = "cancelled"
	src.client.Enqueue(msg)
}

// Send asks the owner to write the content in the given mime type to
// the descriptor. The descriptor is duplicated for transmission; the
// caller retains its copy.
func (src *DataSource) Send(mime string, file *os.File) {
	msg := wire.NewMessage(src, dataSourceEventSend)
	msg.Method = "send"
	msg.Args = []any{mime, file}
	msg.WriteString(mime)
	msg.WriteFile(file)
	src.client.Enqueue(msg)
}

// Target reports the mime type accepted by the current drop target,
// or an empty string for none.
func (src *DataSource) Target(mime string) {
	msg := wire.NewMessage(src, dataSourceEventTarget)
	msg.Method = "target"
	msg.Args = []any{mime}
	msg.WriteString(mime)
	src.client.Enqueue(msg)
}

const (
	dataDeviceRequestStartDrag uint16 = iota
	dataDeviceRequestSetSelection
	dataDeviceRequestRelease
)

const (
	dataDeviceEventDataOffer uint16 = iota
	dataDeviceEventEnter
	dataDeviceEventLeave
	dataDeviceEventMotion
	dataDeviceEventDrop
	dataDeviceEventSelection
)

// wl_data_device error codes.
const (
	DataDeviceErrorRole uint32 = iota
	DataDeviceErrorUsedSource
	dataDeviceErrorStaleSerial
)

// DataDevice is one client's wl_data_device for a seat. It is both
// the channel a client sets the selection through and the channel it
// learns of others' selections through.
type DataDevice struct {
	object
	seat *Seat
}

func (dev *DataDevice) Interface() string {
	return DataDeviceInterface
}

func (dev *DataDevice) MethodName(op uint16) string {
	switch op {
	case dataDeviceRequestStartDrag:
		return "start_drag"
	case dataDeviceRequestSetSelection:
		return "set_selection"
	case dataDeviceRequestRelease:
		return "release"
	}
	return "unknown"
}

func (dev *DataDevice) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case dataDeviceRequestStartDrag:
		sourceID := msg.ReadUint()
		originID := msg.ReadUint()
		iconID := msg.ReadUint()
		serial := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		debug.Printf("ignoring start_drag(source=%v, origin=%v, icon=%v, serial=%v)", sourceID, originID, iconID, serial)
		return nil

	case dataDeviceRequestSetSelection:
		sourceID := msg.ReadUint()
		serial := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		return dev.setSelection(sourceID, serial)

	case dataDeviceRequestRelease:
		if err := since(dev, 2, "release"); err != nil {
			return err
		}
		if err := msg.Err(); err != nil {
			return err
		}
		dev.client.destroy(dev)
		return nil

	default:
		return wire.UnknownOpError{Interface: DataDeviceInterface, Type: "request", Op: msg.Op()}
	}
}

func (dev *DataDevice) setSelection(sourceID, serial uint32) error {
	if serial < dev.client.inputSerial {
		return protoErr(dev, dataDeviceErrorStaleSerial, "set_selection: stale serial %v (current %v)", serial, dev.client.inputSerial)
	}

	var src *DataSource
	if sourceID != 0 {
		var ok bool
		src, ok = dev.client.Get(sourceID).(*DataSource)
		if !ok {
			return protoErr(dev, DisplayErrorInvalidObject, "set_selection: %v is not a wl_data_source", sourceID)
		}
		if src.seat != nil {
			return protoErr(dev, DataDeviceErrorUsedSource, "set_selection: source already used")
		}
		src.seat = dev.seat
	}

	dev.seat.setSelection(src, serial)
	return nil
}

func (dev *DataDevice) Delete() {
	dev.seat.removeDevice(dev)
}

// offerSelection introduces src to the device's client and marks it
// as the selection. A nil src clears the client's view of the
// selection. Called with server.mu held.
func (dev *DataDevice) offerSelection(src *DataSource) {
	if dev.client.dead {
		return
	}
	if src == nil {
		dev.selection(nil)
		return
	}

	offer := &DataOffer{
		object: object{version: dev.version, client: dev.client},
		source: src,
	}
	dev.client.store.Add(offer)
	dev.dataOffer(offer)
	for _, mime := range src.mimeTypes {
		offer.offer(mime)
	}
	dev.selection(offer)
}

func (dev *DataDevice) dataOffer(offer *DataOffer) {
	msg := wire.NewMessage(dev, dataDeviceEventDataOffer)
	msg.Method = "data_offer"
	msg.Args = []any{offer.ID()}
	msg.WriteObject(offer)
	dev.client.Enqueue(msg)
}

func (dev *DataDevice) selection(offer *DataOffer) {
	msg := wire.NewMessage(dev, dataDeviceEventSelection)
	msg.Method = "selection"
	if offer != nil {
		msg.Args = []any{offer.ID()}
	} else {
		msg.Args = []any{0}
	}
	msg.WriteObject(offer)
	dev.client.Enqueue(msg)
}

const (
	dataOfferRequestAccept uint16 = iota
	dataOfferRequestReceive
	dataOfferRequestDestroy
	dataOfferRequestFinish
	dataOfferRequestSetActions
)

const (
	dataOfferEventOffer uint16 = iota
	dataOfferEventSourceActions
	dataOfferEventAction
)

// wl_data_offer error codes.
const (
	DataOfferErrorInvalidFinish uint32 = iota
	DataOfferErrorInvalidActionMask
	DataOfferErrorInvalidAction
	DataOfferErrorInvalidOffer
)

// DataOffer is one client's handle on another client's data source.
// The source may die while the offer remains; transfer requests
// against a dead source terminate the reader with EOF instead of
// failing the connection.
type DataOffer struct {
	object
	source *DataSource
}

func (offer *DataOffer) Interface() string {
	return DataOfferInterface
}

func (offer *DataOffer) MethodName(op uint16) string {
	switch op {
	case dataOfferRequestAccept:
		return "accept"
	case dataOfferRequestReceive:
		return "receive"
	case dataOfferRequestDestroy:
		return "destroy"
	case dataOfferRequestFinish:
		return "finish"
	case dataOfferRequestSetActions:
		return "set_actions"
	}
	return "unknown"
}

func (offer *DataOffer) Dispatch(msg *wire.MessageBuffer) error {
	switch msg.Op() {
	case dataOfferRequestAccept:
		serial := msg.ReadUint()
		mime := msg.ReadString()
		if err := msg.Err(); err != nil {
			return err
		}
		if offer.source.live() && !offer.source.cancelled {
			offer.source.Target(mime)
		}
		_ = serial
		return nil

	case dataOfferRequestReceive:
		mime := msg.ReadString()
		file := msg.ReadFile()
		if err := msg.Err(); err != nil {
			return err
		}
		return offer.receive(mime, file)

	case dataOfferRequestDestroy:
		if err := msg.Err(); err != nil {
			return err
		}
		offer.client.destroy(offer)
		return nil

	case dataOfferRequestFinish:
		if err := since(offer, 3, "finish"); err != nil {
			return err
		}
		if err := msg.Err(); err != nil {
			return err
		}
		// Only meaningful for drag-and-drop, which is not offered.
		return protoErr(offer, DataOfferErrorInvalidFinish, "finish on a selection offer")

	case dataOfferRequestSetActions:
		if err := since(offer, 3, "set_actions"); err != nil {
			return err
		}
		actions := msg.ReadUint()
		preferred := msg.ReadUint()
		if err := msg.Err(); err != nil {
			return err
		}
		if actions&^uint32(7) != 0 || preferred&^uint32(7) != 0 {
			return protoErr(offer, DataOfferErrorInvalidActionMask, "set_actions: invalid action mask")
		}
		return nil

	default:
		return wire.UnknownOpError{Interface: DataOfferInterface, Type: "request", Op: msg.Op()}
	}
}

// receive forwards the transfer request to the source. If the source
// is gone the write end is simply closed, so the reader sees EOF
// rather than a hang.
func (offer *DataOffer) receive(mime string, file *os.File) error {
	defer file.Close()

	if !offer.source.live() || offer.source.cancelled {
		return nil
	}
	offer.source.Send(mime, file)
	return nil
}

func (offer *DataOffer) offer(mime string) {
	msg := wire.NewMessage(offer, dataOfferEventOffer)
	msg.Method = "offer"
	msg.Args = []any{mime}
	msg.WriteString(mime)
	offer.client.Enqueue(msg)
}
