package wl

import (
	"image"
	"testing"

	"deedles.dev/shoji/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attach(t *testing.T, client *Client, surfaceID, bufferID uint32) error {
	t.Helper()
	return request(t, client, surfaceID, surfaceRequestAttach, func(mb *wire.MessageBuilder) {
		mb.WriteUint(bufferID)
		mb.WriteInt(0)
		mb.WriteInt(0)
	})
}

func commit(t *testing.T, client *Client, surfaceID uint32) error {
	t.Helper()
	return request(t, client, surfaceID, surfaceRequestCommit, nil)
}

func damage(t *testing.T, client *Client, surfaceID uint32, r image.Rectangle) {
	t.Helper()
	err := request(t, client, surfaceID, surfaceRequestDamage, func(mb *wire.MessageBuilder) {
		mb.WriteInt(int32(r.Min.X))
		mb.WriteInt(int32(r.Min.Y))
		mb.WriteInt(int32(r.Dx()))
		mb.WriteInt(int32(r.Dy()))
	})
	require.NoError(t, err)
}

func TestSurfacePendingStateIsInvisibleUntilCommit(t *testing.T) {
	server := newTestServer(t)
	client, _ := addTestClient(t, server)
	s := addTestSurface(t, client, 3)
	buf, _ := addTestBuffer(t, client, 4, 64, 64)

	require.NoError(t, attach(t, client, 3, 4))
	damage(t, client, 3, image.Rect(0, 0, 10, 10))
	assert.Nil(t, s.CurrentBuffer())
	surfaceDamage, _ := s.TakeDamage()
	assert.Empty(t, surfaceDamage)

	require.NoError(t, commit(t, client, 3))
	assert.Same(t, buf, s.CurrentBuffer())
	surfaceDamage, _ = s.TakeDamage()
	assert.Equal(t, []image.Rectangle{image.Rect(0, 0, 10, 10)}, surfaceDamage)
}

func TestSurfacePendingClearsAfterCommit(t *testing.T) {
	server := newTestServer(t)
	client, _ := addTestClient(t, server)
	s := addTestSurface(t, client, 3)
	buf, _ := addTestBuffer(t, client, 4, 64, 64)

	require.NoError(t, attach(t, client, 3, 4))
	damage(t, client, 3, image.Rect(0, 0, 10, 10))
	require.NoError(t, commit(t, client, 3))

	// A commit with nothing pending keeps the buffer and adds no
	// damage: an attach never carries over.
	s.TakeDamage()
	require.NoError(t, commit(t, client, 3))
	assert.Same(t, buf, s.CurrentBuffer())
	surfaceDamage, _ := s.TakeDamage()
	assert.Empty(t, surfaceDamage)
}

func TestSurfaceDamageAccumulatesAcrossCommits(t *testing.T) {
	server := newTestServer(t)
	client, _ := addTestClient(t, server)
	s := addTestSurface(t, client, 3)
	addTestBuffer(t, client, 4, 64, 64)

	require.NoError(t, attach(t, client, 3, 4))
	damage(t, client, 3, image.Rect(0, 0, 10, 10))
	require.NoError(t, commit(t, client, 3))
	damage(t, client, 3, image.Rect(20, 20, 30, 30))
	require.NoError(t, commit(t, client, 3))

	surfaceDamage, _ := s.TakeDamage()
	assert.Len(t, surfaceDamage, 2)
	surfaceDamage, _ = s.TakeDamage()
	assert.Empty(t, surfaceDamage)
}

func TestBufferReleaseAfterCurrentStateOnly(t *testing.T) {
	server := newTestServer(t)
	client, tr := addTestClient(t, server)
	addTestSurface(t, client, 3)
	addTestBuffer(t, client, 4, 64, 64)
	addTestBuffer(t, client, 5, 64, 64)

	require.NoError(t, attach(t, client, 3, 4))
	require.NoError(t, commit(t, client, 3))
	require.NoError(t, client.Flush())
	tr.take()

	// Replacing the buffer ends the first one's only use.
	require.NoError(t, attach(t, client, 3, 5))
	require.NoError(t, commit(t, client, 3))
	require.NoError(t, client.Flush())

	var releases []uint32
	for _, msg := range tr.take() {
		if msg.Method == "release" {
			releases = append(releases, msg.Sender())
		}
	}
	assert.Equal(t, []uint32{4}, releases)
}

func TestBufferReleaseWaitsForBackend(t *testing.T) {
	server := newTestServer(t)
	backend := &fakeBackend{acquire: true}
	server.Backend = backend
	client, tr := addTestClient(t, server)
	addTestSurface(t, client, 3)
	addTestBuffer(t, client, 4, 64, 64)
	addTestBuffer(t, client, 5, 64, 64)

	require.NoError(t, attach(t, client, 3, 4))
	require.NoError(t, commit(t, client, 3))
	require.NoError(t, attach(t, client, 3, 5))
	require.NoError(t, commit(t, client, 3))
	require.NoError(t, client.Flush())

	// The backend still holds the first buffer, so no release may
	// reach the client yet.
	assert.NotContains(t, tr.methods(), "release")

	backend.releases[0]()
	require.NoError(t, client.Flush())
	var releases []uint32
	for _, msg := range tr.take() {
		if msg.Method == "release" {
			releases = append(releases, msg.Sender())
		}
	}
	assert.Equal(t, []uint32{4}, releases)
}

func TestBackendReleaseIsIdempotent(t *testing.T) {
	server := newTestServer(t)
	backend := &fakeBackend{acquire: true}
	server.Backend = backend
	client, _ := addTestClient(t, server)
	s := addTestSurface(t, client, 3)
	buf, backing := addTestBuffer(t, client, 4, 64, 64)

	require.NoError(t, attach(t, client, 3, 4))
	require.NoError(t, commit(t, client, 3))

	release := backend.releases[0]
	release()
	release()
	assert.Equal(t, 1, buf.locks)
	assert.Same(t, buf, s.CurrentBuffer())
	assert.False(t, backing.destroyed)
}

func TestBufferDestroyDefersBackingTeardownWhileLocked(t *testing.T) {
	server := newTestServer(t)
	client, tr := addTestClient(t, server)
	addTestSurface(t, client, 3)
	_, backing := addTestBuffer(t, client, 4, 64, 64)

	require.NoError(t, attach(t, client, 3, 4))
	require.NoError(t, commit(t, client, 3))

	require.NoError(t, request(t, client, 4, bufferRequestDestroy, nil))
	assert.False(t, backing.destroyed)
	require.NoError(t, client.Flush())
	assert.Contains(t, tr.methods(), "delete_id")

	// A null attach drops the last use of the contents.
	require.NoError(t, attach(t, client, 3, 0))
	require.NoError(t, commit(t, client, 3))
	assert.True(t, backing.destroyed)
}

func TestAttachOutOfBoundsIsRecoverable(t *testing.T) {
	server := newTestServer(t)
	var reported []error
	server.OnError = func(_ *Client, err error) { reported = append(reported, err) }
	client, _ := addTestClient(t, server)
	s := addTestSurface(t, client, 3)
	_, backing := addTestBuffer(t, client, 4, 64, 64)
	backing.validateErr = OutOfBoundsError{Offset: 0, Stride: 256, Height: 64, PoolSize: 4096}

	err := attach(t, client, 3, 4)
	require.NoError(t, err)
	assert.False(t, client.dead)
	assert.Len(t, reported, 1)
	assert.Nil(t, s.CurrentBuffer())

	require.NoError(t, commit(t, client, 3))
	assert.Nil(t, s.CurrentBuffer())
}

func TestFrameCallbacksFireInCommitOrder(t *testing.T) {
	server := newTestServer(t)
	client, tr := addTestClient(t, server)
	s := addTestSurface(t, client, 3)

	for _, id := range []uint32{10, 11} {
		err := request(t, client, 3, surfaceRequestFrame, func(mb *wire.MessageBuilder) {
			mb.WriteUint(id)
		})
		require.NoError(t, err)
	}
	require.NoError(t, commit(t, client, 3))

	s.Frame(1234)
	require.NoError(t, client.Flush())

	var dones []uint32
	for _, msg := range tr.take() {
		if msg.Method == "done" {
			dones = append(dones, msg.Sender())
		}
	}
	assert.Equal(t, []uint32{10, 11}, dones)
	assert.Nil(t, client.Get(10))
	assert.Nil(t, client.Get(11))

	// Uncommitted callbacks do not fire.
	s.Frame(1235)
	require.NoError(t, client.Flush())
	for _, msg := range tr.take() {
		assert.NotEqual(t, "done", msg.Method)
	}
}

func TestSurfaceRoleIsSticky(t *testing.T) {
	server := newTestServer(t)
	wmGlobal := server.AddWmBase()
	layerGlobal := server.AddLayerShell()
	client, _ := addTestClient(t, server)
	bindGlobal(t, client, wmGlobal, 3, WmBaseVersion)
	bindGlobal(t, client, layerGlobal, 4, LayerShellVersion)
	addTestSurface(t, client, 5)

	err := request(t, client, 3, wmBaseRequestGetXdgSurface, func(mb *wire.MessageBuilder) {
		mb.WriteUint(6)
		mb.WriteUint(5)
	})
	require.NoError(t, err)
	err = request(t, client, 6, xdgSurfaceRequestGetToplevel, func(mb *wire.MessageBuilder) {
		mb.WriteUint(7)
	})
	require.NoError(t, err)

	// The same surface cannot take a second role, even through a
	// different shell.
	err = request(t, client, 4, layerShellRequestGetLayerSurface, func(mb *wire.MessageBuilder) {
		mb.WriteUint(8)
		mb.WriteUint(5)
		mb.WriteUint(0)
		mb.WriteUint(uint32(LayerTop))
		mb.WriteString("panel")
	})
	require.Error(t, err)
	assert.True(t, client.dead)
}

func TestInputAndOpaqueRegions(t *testing.T) {
	server := newTestServer(t)
	client, _ := addTestClient(t, server)
	s := addTestSurface(t, client, 3)

	// Defaults: infinite input, empty opaque.
	assert.True(t, s.InputAt(1000, 1000))
	assert.False(t, s.OpaqueAt(0, 0))

	server.mu.Lock()
	region := &Region{object: object{version: RegionVersion, client: client}}
	require.NoError(t, client.store.AddClient(4, region))
	server.mu.Unlock()

	err := request(t, client, 4, regionRequestAdd, func(mb *wire.MessageBuilder) {
		mb.WriteInt(0)
		mb.WriteInt(0)
		mb.WriteInt(10)
		mb.WriteInt(10)
	})
	require.NoError(t, err)
	err = request(t, client, 4, regionRequestSubtract, func(mb *wire.MessageBuilder) {
		mb.WriteInt(5)
		mb.WriteInt(5)
		mb.WriteInt(5)
		mb.WriteInt(5)
	})
	require.NoError(t, err)

	err = request(t, client, 3, surfaceRequestSetInputRegion, func(mb *wire.MessageBuilder) {
		mb.WriteUint(4)
	})
	require.NoError(t, err)
	require.NoError(t, commit(t, client, 3))

	assert.True(t, s.InputAt(2, 2))
	assert.False(t, s.InputAt(7, 7))
	assert.False(t, s.InputAt(1000, 1000))

	// Copy semantics: mutating the region after commit changes
	// nothing.
	err = request(t, client, 4, regionRequestSubtract, func(mb *wire.MessageBuilder) {
		mb.WriteInt(0)
		mb.WriteInt(0)
		mb.WriteInt(10)
		mb.WriteInt(10)
	})
	require.NoError(t, err)
	assert.True(t, s.InputAt(2, 2))
}
