package wl

import (
	"testing"

	"deedles.dev/shoji/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shellFixture wires up a client with xdg_wm_base bound at ID 3 and a
// surface at ID 4, and captures the serial of every configure the
// server issues.
type shellFixture struct {
	server  *Server
	client  *Client
	tr      *fakeTransport
	serials []uint32
}

func newShellFixture(t *testing.T) *shellFixture {
	t.Helper()
	f := &shellFixture{server: newTestServer(t)}
	f.server.OnToplevel = func(top *Toplevel) {
		f.serials = append(f.serials, top.Configure(640, 480, nil))
	}
	wmGlobal := f.server.AddWmBase()

	f.client, f.tr = addTestClient(t, f.server)
	bindGlobal(t, f.client, wmGlobal, 3, WmBaseVersion)
	addTestSurface(t, f.client, 4)
	return f
}

func (f *shellFixture) getXdgSurface(t *testing.T, id, surfaceID uint32) error {
	t.Helper()
	return request(t, f.client, 3, wmBaseRequestGetXdgSurface, func(mb *wire.MessageBuilder) {
		mb.WriteUint(id)
		mb.WriteUint(surfaceID)
	})
}

func (f *shellFixture) getToplevel(t *testing.T, xdgID, id uint32) error {
	t.Helper()
	return request(t, f.client, xdgID, xdgSurfaceRequestGetToplevel, func(mb *wire.MessageBuilder) {
		mb.WriteUint(id)
	})
}

func (f *shellFixture) ack(t *testing.T, xdgID, serial uint32) error {
	t.Helper()
	return request(t, f.client, xdgID, xdgSurfaceRequestAckConfigure, func(mb *wire.MessageBuilder) {
		mb.WriteUint(serial)
	})
}

// newMappedToplevel runs the full map flow: role creation, configure,
// ack, attach, commit.
func (f *shellFixture) newMappedToplevel(t *testing.T) (*Toplevel, *XdgSurface) {
	t.Helper()
	require.NoError(t, f.getXdgSurface(t, 5, 4))
	require.NoError(t, f.getToplevel(t, 5, 6))
	require.NoError(t, f.ack(t, 5, f.serials[len(f.serials)-1]))

	addTestBuffer(t, f.client, 7, 640, 480)
	require.NoError(t, attach(t, f.client, 4, 7))
	require.NoError(t, commit(t, f.client, 4))

	top := f.client.Get(6).(*Toplevel)
	xdg := f.client.Get(5).(*XdgSurface)
	require.True(t, xdg.Mapped())
	return top, xdg
}

func TestToplevelMapFlow(t *testing.T) {
	f := newShellFixture(t)
	_, xdg := f.newMappedToplevel(t)

	assert.True(t, xdg.Mapped())
	require.NoError(t, f.client.Flush())
	methods := f.tr.methods()
	assert.Contains(t, methods, "configure")
}

func TestCommitBeforeAckIsFatal(t *testing.T) {
	f := newShellFixture(t)
	require.NoError(t, f.getXdgSurface(t, 5, 4))
	require.NoError(t, f.getToplevel(t, 5, 6))

	addTestBuffer(t, f.client, 7, 640, 480)
	require.NoError(t, attach(t, f.client, 4, 7))
	err := commit(t, f.client, 4)
	require.Error(t, err)
	assert.True(t, f.client.dead)
}

func TestAckSupersededSerialIsFatal(t *testing.T) {
	f := newShellFixture(t)
	require.NoError(t, f.getXdgSurface(t, 5, 4))
	require.NoError(t, f.getToplevel(t, 5, 6))

	top := f.client.Get(6).(*Toplevel)
	f.server.mu.Lock()
	f.serials = append(f.serials, top.Configure(800, 600, nil))
	f.server.mu.Unlock()
	require.Len(t, f.serials, 2)

	// Only the latest configure may be acknowledged.
	err := f.ack(t, 5, f.serials[0])
	require.Error(t, err)
	assert.True(t, f.client.dead)
}

func TestAckLatestOfSeveralConfigures(t *testing.T) {
	f := newShellFixture(t)
	require.NoError(t, f.getXdgSurface(t, 5, 4))
	require.NoError(t, f.getToplevel(t, 5, 6))

	top := f.client.Get(6).(*Toplevel)
	f.server.mu.Lock()
	f.serials = append(f.serials, top.Configure(800, 600, nil))
	f.server.mu.Unlock()

	require.NoError(t, f.ack(t, 5, f.serials[1]))

	addTestBuffer(t, f.client, 7, 800, 600)
	require.NoError(t, attach(t, f.client, 4, 7))
	require.NoError(t, commit(t, f.client, 4))
	assert.True(t, f.client.Get(5).(*XdgSurface).Mapped())
}

func TestAckBeforeAnyConfigureIsFatal(t *testing.T) {
	f := newShellFixture(t)
	f.server.OnToplevel = func(*Toplevel) {} // suppress the configure
	require.NoError(t, f.getXdgSurface(t, 5, 4))
	require.NoError(t, f.getToplevel(t, 5, 6))

	err := f.ack(t, 5, 1)
	require.Error(t, err)
	assert.True(t, f.client.dead)
}

func TestBufferSizeMismatchIsRejected(t *testing.T) {
	f := newShellFixture(t)
	require.NoError(t, f.getXdgSurface(t, 5, 4))
	require.NoError(t, f.getToplevel(t, 5, 6))
	require.NoError(t, f.ack(t, 5, f.serials[0]))

	// The acked configure said 640x480; this buffer disagrees.
	addTestBuffer(t, f.client, 7, 100, 100)
	require.NoError(t, attach(t, f.client, 4, 7))
	err := commit(t, f.client, 4)
	require.Error(t, err)
	assert.True(t, f.client.dead)
}

func TestZeroSizeConfigureAcceptsAnyBuffer(t *testing.T) {
	f := newShellFixture(t)
	f.server.OnToplevel = func(top *Toplevel) {
		f.serials = append(f.serials, top.Configure(0, 0, nil))
	}
	require.NoError(t, f.getXdgSurface(t, 5, 4))
	require.NoError(t, f.getToplevel(t, 5, 6))
	require.NoError(t, f.ack(t, 5, f.serials[0]))

	addTestBuffer(t, f.client, 7, 123, 456)
	require.NoError(t, attach(t, f.client, 4, 7))
	require.NoError(t, commit(t, f.client, 4))
	assert.True(t, f.client.Get(5).(*XdgSurface).Mapped())
}

func TestNullBufferCommitUnmaps(t *testing.T) {
	f := newShellFixture(t)
	_, xdg := f.newMappedToplevel(t)

	require.NoError(t, attach(t, f.client, 4, 0))
	require.NoError(t, commit(t, f.client, 4))
	assert.False(t, xdg.Mapped())

	// Mapping again requires a fresh configure/ack round trip.
	addTestBuffer(t, f.client, 8, 640, 480)
	require.NoError(t, attach(t, f.client, 4, 8))
	err := commit(t, f.client, 4)
	require.Error(t, err)
	assert.True(t, f.client.dead)
}

func TestToplevelDestroyWithLivePopupIsFatal(t *testing.T) {
	f := newShellFixture(t)
	f.server.OnPopup = func(p *Popup) {
		f.serials = append(f.serials, p.Configure(p.Placement()))
	}
	_, _ = f.newMappedToplevel(t)

	// Build a popup parented onto the toplevel's xdg_surface.
	addTestSurface(t, f.client, 10)
	require.NoError(t, f.getXdgSurface(t, 11, 10))

	err := request(t, f.client, 3, wmBaseRequestCreatePositioner, func(mb *wire.MessageBuilder) {
		mb.WriteUint(12)
	})
	require.NoError(t, err)
	err = request(t, f.client, 12, positionerRequestSetSize, func(mb *wire.MessageBuilder) {
		mb.WriteInt(100)
		mb.WriteInt(50)
	})
	require.NoError(t, err)
	err = request(t, f.client, 12, positionerRequestSetAnchorRect, func(mb *wire.MessageBuilder) {
		mb.WriteInt(0)
		mb.WriteInt(0)
		mb.WriteInt(640)
		mb.WriteInt(480)
	})
	require.NoError(t, err)
	err = request(t, f.client, 11, xdgSurfaceRequestGetPopup, func(mb *wire.MessageBuilder) {
		mb.WriteUint(13)
		mb.WriteUint(5)
		mb.WriteUint(12)
	})
	require.NoError(t, err)

	err = request(t, f.client, 6, toplevelRequestDestroy, nil)
	require.Error(t, err)
	assert.True(t, f.client.dead)
}

func TestPopupThenToplevelDestroyOrder(t *testing.T) {
	f := newShellFixture(t)
	f.server.OnPopup = func(p *Popup) {
		f.serials = append(f.serials, p.Configure(p.Placement()))
	}
	_, _ = f.newMappedToplevel(t)

	addTestSurface(t, f.client, 10)
	require.NoError(t, f.getXdgSurface(t, 11, 10))
	err := request(t, f.client, 3, wmBaseRequestCreatePositioner, func(mb *wire.MessageBuilder) {
		mb.WriteUint(12)
	})
	require.NoError(t, err)
	err = request(t, f.client, 12, positionerRequestSetSize, func(mb *wire.MessageBuilder) {
		mb.WriteInt(100)
		mb.WriteInt(50)
	})
	require.NoError(t, err)
	err = request(t, f.client, 12, positionerRequestSetAnchorRect, func(mb *wire.MessageBuilder) {
		mb.WriteInt(0)
		mb.WriteInt(0)
		mb.WriteInt(640)
		mb.WriteInt(480)
	})
	require.NoError(t, err)
	err = request(t, f.client, 11, xdgSurfaceRequestGetPopup, func(mb *wire.MessageBuilder) {
		mb.WriteUint(13)
		mb.WriteUint(5)
		mb.WriteUint(12)
	})
	require.NoError(t, err)

	// Dependents first: popup, its xdg_surface, then the toplevel.
	require.NoError(t, request(t, f.client, 13, popupRequestDestroy, nil))
	require.NoError(t, request(t, f.client, 11, xdgSurfaceRequestDestroy, nil))
	require.NoError(t, request(t, f.client, 6, toplevelRequestDestroy, nil))
	require.NoError(t, request(t, f.client, 5, xdgSurfaceRequestDestroy, nil))
	assert.False(t, f.client.dead)
}

func TestIncompletePositionerIsFatal(t *testing.T) {
	f := newShellFixture(t)
	require.NoError(t, f.getXdgSurface(t, 5, 4))

	err := request(t, f.client, 3, wmBaseRequestCreatePositioner, func(mb *wire.MessageBuilder) {
		mb.WriteUint(12)
	})
	require.NoError(t, err)

	// No size, no anchor rect.
	err = request(t, f.client, 5, xdgSurfaceRequestGetPopup, func(mb *wire.MessageBuilder) {
		mb.WriteUint(13)
		mb.WriteUint(0)
		mb.WriteUint(12)
	})
	require.Error(t, err)
	assert.True(t, f.client.dead)
}

func TestXdgSurfaceDestroyBeforeRoleIsFatal(t *testing.T) {
	f := newShellFixture(t)
	require.NoError(t, f.getXdgSurface(t, 5, 4))
	require.NoError(t, f.getToplevel(t, 5, 6))

	err := request(t, f.client, 5, xdgSurfaceRequestDestroy, nil)
	require.Error(t, err)
	assert.True(t, f.client.dead)
}

func TestWmBaseDestroyWithLiveSurfacesIsFatal(t *testing.T) {
	f := newShellFixture(t)
	require.NoError(t, f.getXdgSurface(t, 5, 4))

	err := request(t, f.client, 3, wmBaseRequestDestroy, nil)
	require.Error(t, err)
	assert.True(t, f.client.dead)
}

func TestMoveWithStaleSerialIsIgnored(t *testing.T) {
	f := newShellFixture(t)
	var moved bool
	f.server.OnMove = func(*Toplevel, uint32) { moved = true }
	seat := f.server.AddSeat("seat0", SeatCapabilityPointer)
	_ = seat
	top, _ := f.newMappedToplevel(t)
	_ = top

	bindGlobal(t, f.client, seat.global, 20, SeatVersion)
	f.client.RecordInputSerial(100)

	err := request(t, f.client, 6, toplevelRequestMove, func(mb *wire.MessageBuilder) {
		mb.WriteUint(20)
		mb.WriteUint(50)
	})
	require.NoError(t, err)
	assert.False(t, moved)
	assert.False(t, f.client.dead)

	err = request(t, f.client, 6, toplevelRequestMove, func(mb *wire.MessageBuilder) {
		mb.WriteUint(20)
		mb.WriteUint(100)
	})
	require.NoError(t, err)
	assert.True(t, moved)
}

func TestLayerSurfaceSizeWithoutAnchorIsFatal(t *testing.T) {
	server := newTestServer(t)
	var serial uint32
	server.OnLayerSurface = func(ls *LayerSurface) {
		serial = ls.Configure(0, 32)
	}
	layerGlobal := server.AddLayerShell()
	client, _ := addTestClient(t, server)
	bindGlobal(t, client, layerGlobal, 3, LayerShellVersion)
	addTestSurface(t, client, 4)

	err := request(t, client, 3, layerShellRequestGetLayerSurface, func(mb *wire.MessageBuilder) {
		mb.WriteUint(5)
		mb.WriteUint(4)
		mb.WriteUint(0)
		mb.WriteUint(uint32(LayerTop))
		mb.WriteString("panel")
	})
	require.NoError(t, err)

	// Height 32, width 0, but no horizontal anchors: the compositor
	// cannot pick a width.
	err = request(t, client, 5, layerSurfaceRequestSetSize, func(mb *wire.MessageBuilder) {
		mb.WriteUint(0)
		mb.WriteUint(32)
	})
	require.NoError(t, err)
	err = request(t, client, 5, layerSurfaceRequestAckConfigure, func(mb *wire.MessageBuilder) {
		mb.WriteUint(serial)
	})
	require.NoError(t, err)

	addTestBuffer(t, client, 6, 100, 32)
	require.NoError(t, attach(t, client, 4, 6))
	err = commit(t, client, 4)
	require.Error(t, err)
	assert.True(t, client.dead)
}

func TestLayerSurfaceMapFlow(t *testing.T) {
	server := newTestServer(t)
	var serial uint32
	server.OnLayerSurface = func(ls *LayerSurface) {
		serial = ls.Configure(1920, 32)
	}
	layerGlobal := server.AddLayerShell()
	client, _ := addTestClient(t, server)
	bindGlobal(t, client, layerGlobal, 3, LayerShellVersion)
	addTestSurface(t, client, 4)

	err := request(t, client, 3, layerShellRequestGetLayerSurface, func(mb *wire.MessageBuilder) {
		mb.WriteUint(5)
		mb.WriteUint(4)
		mb.WriteUint(0)
		mb.WriteUint(uint32(LayerTop))
		mb.WriteString("panel")
	})
	require.NoError(t, err)
	ls := client.Get(5).(*LayerSurface)
	assert.Equal(t, "panel", ls.Namespace())
	assert.Equal(t, LayerTop, ls.Layer())

	err = request(t, client, 5, layerSurfaceRequestSetAnchor, func(mb *wire.MessageBuilder) {
		mb.WriteUint(uint32(LayerAnchorTop | LayerAnchorLeft | LayerAnchorRight))
	})
	require.NoError(t, err)
	err = request(t, client, 5, layerSurfaceRequestSetExclusiveZone, func(mb *wire.MessageBuilder) {
		mb.WriteInt(32)
	})
	require.NoError(t, err)
	err = request(t, client, 5, layerSurfaceRequestAckConfigure, func(mb *wire.MessageBuilder) {
		mb.WriteUint(serial)
	})
	require.NoError(t, err)

	addTestBuffer(t, client, 6, 1920, 32)
	require.NoError(t, attach(t, client, 4, 6))
	require.NoError(t, commit(t, client, 4))
	assert.True(t, ls.Mapped())
	assert.EqualValues(t, 32, ls.ExclusiveZone())
	assert.Equal(t, LayerAnchorTop|LayerAnchorLeft|LayerAnchorRight, ls.Anchor())
}

func TestLayerSurfaceDefaultConfigureWithoutHook(t *testing.T) {
	server := newTestServer(t)
	layerGlobal := server.AddLayerShell()
	client, tr := addTestClient(t, server)
	bindGlobal(t, client, layerGlobal, 3, LayerShellVersion)
	addTestSurface(t, client, 4)

	err := request(t, client, 3, layerShellRequestGetLayerSurface, func(mb *wire.MessageBuilder) {
		mb.WriteUint(5)
		mb.WriteUint(4)
		mb.WriteUint(0)
		mb.WriteUint(uint32(LayerTop))
		mb.WriteString("panel")
	})
	require.NoError(t, err)

	// A configure goes out even with no listener installed.
	require.NoError(t, client.Flush())
	var serial uint32
	for _, msg := range tr.take() {
		if msg.Sender() == 5 && msg.Method == "configure" {
			serial = msg.Args[0].(uint32)
		}
	}
	require.NotZero(t, serial)

	err = request(t, client, 5, layerSurfaceRequestSetSize, func(mb *wire.MessageBuilder) {
		mb.WriteUint(100)
		mb.WriteUint(32)
	})
	require.NoError(t, err)
	err = request(t, client, 5, layerSurfaceRequestAckConfigure, func(mb *wire.MessageBuilder) {
		mb.WriteUint(serial)
	})
	require.NoError(t, err)

	addTestBuffer(t, client, 6, 100, 32)
	require.NoError(t, attach(t, client, 4, 6))
	require.NoError(t, commit(t, client, 4))
	assert.True(t, client.Get(5).(*LayerSurface).Mapped())
}

func TestDecorationModeNegotiation(t *testing.T) {
	f := newShellFixture(t)
	decoGlobal := f.server.AddDecorationManager()
	require.NoError(t, f.getXdgSurface(t, 5, 4))
	require.NoError(t, f.getToplevel(t, 5, 6))

	bindGlobal(t, f.client, decoGlobal, 20, DecorationManagerVersion)
	err := request(t, f.client, 20, decorationManagerRequestGetToplevelDecoration, func(mb *wire.MessageBuilder) {
		mb.WriteUint(21)
		mb.WriteUint(6)
	})
	require.NoError(t, err)

	d := f.client.Get(21).(*ToplevelDecoration)
	assert.Equal(t, DecorationModeServerSide, d.Mode())

	err = request(t, f.client, 21, decorationRequestSetMode, func(mb *wire.MessageBuilder) {
		mb.WriteUint(uint32(DecorationModeClientSide))
	})
	require.NoError(t, err)
	assert.Equal(t, DecorationModeClientSide, d.Mode())

	// A forced mode overrides the client's preference.
	f.server.ForcedDecorationMode = DecorationModeServerSide
	assert.Equal(t, DecorationModeServerSide, d.Mode())

	// Destroying the toplevel before the decoration is an error.
	err = request(t, f.client, 6, toplevelRequestDestroy, nil)
	require.Error(t, err)
	assert.True(t, f.client.dead)
}
