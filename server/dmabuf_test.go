package wl

import (
	"os"
	"testing"

	"deedles.dev/shoji/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dmabufFixture(t *testing.T, formats []DMABufFormat) (*Server, *Client, *fakeTransport) {
	t.Helper()
	server := newTestServer(t)
	g := server.AddLinuxDMABuf(formats)
	client, tr := addTestClient(t, server)
	bindGlobal(t, client, g, 3, LinuxDMABufVersion)
	return server, client, tr
}

func planeFile(t *testing.T, size int64) *os.File {
	t.Helper()
	file, err := os.CreateTemp(t.TempDir(), "plane")
	require.NoError(t, err)
	t.Cleanup(func() { file.Close() })
	require.NoError(t, file.Truncate(size))
	return file
}

func createParams(t *testing.T, client *Client, id uint32) {
	t.Helper()
	err := request(t, client, 3, dmabufRequestCreateParams, func(mb *wire.MessageBuilder) {
		mb.WriteUint(id)
	})
	require.NoError(t, err)
}

func addPlane(t *testing.T, client *Client, paramsID uint32, file *os.File, idx, offset, stride uint32, modifier uint64) error {
	t.Helper()
	return request(t, client, paramsID, paramsRequestAdd, func(mb *wire.MessageBuilder) {
		mb.WriteFile(file)
		mb.WriteUint(idx)
		mb.WriteUint(offset)
		mb.WriteUint(stride)
		mb.WriteUint(uint32(modifier >> 32))
		mb.WriteUint(uint32(modifier & 0xFFFFFFFF))
	})
}

func TestDMABufFormatsAdvertisedOnBind(t *testing.T) {
	_, client, tr := dmabufFixture(t, []DMABufFormat{{Format: FormatARGB8888, Modifier: ModifierLinear}})
	require.NoError(t, client.Flush())
	methods := tr.methods()
	assert.Contains(t, methods, "format")
	assert.Contains(t, methods, "modifier")
}

func TestDMABufCreateSuccess(t *testing.T) {
	_, client, tr := dmabufFixture(t, []DMABufFormat{{Format: FormatARGB8888, Modifier: ModifierLinear}})
	createParams(t, client, 5)

	file := planeFile(t, 4*4*4)
	require.NoError(t, addPlane(t, client, 5, file, 0, 0, 16, ModifierLinear))
	err := request(t, client, 5, paramsRequestCreate, func(mb *wire.MessageBuilder) {
		mb.WriteInt(4)
		mb.WriteInt(4)
		mb.WriteUint(FormatARGB8888)
		mb.WriteUint(0)
	})
	require.NoError(t, err)

	require.NoError(t, client.Flush())
	var created *wire.MessageBuilder
	for _, msg := range tr.take() {
		if msg.Method == "created" {
			created = msg
		}
	}
	require.NotNil(t, created)

	buf, ok := client.Get(created.Args[0].(uint32)).(*Buffer)
	require.True(t, ok)
	assert.Equal(t, FormatARGB8888, buf.Format())
	assert.Len(t, buf.Planes(), 1)
	assert.Equal(t, 4, buf.Size().X)
}

func TestDMABufPlaneCountMismatchIsRecoverable(t *testing.T) {
	server, client, tr := dmabufFixture(t, []DMABufFormat{{Format: FormatARGB8888, Modifier: ModifierLinear}})
	var reported []error
	server.OnError = func(_ *Client, err error) { reported = append(reported, err) }

	createParams(t, client, 5)
	file := planeFile(t, 4*4*4)
	require.NoError(t, addPlane(t, client, 5, file, 0, 0, 16, ModifierLinear))
	require.NoError(t, addPlane(t, client, 5, file, 1, 0, 16, ModifierLinear))

	err := request(t, client, 5, paramsRequestCreate, func(mb *wire.MessageBuilder) {
		mb.WriteInt(4)
		mb.WriteInt(4)
		mb.WriteUint(FormatARGB8888)
		mb.WriteUint(0)
	})
	require.NoError(t, err)
	assert.False(t, client.dead)
	assert.Len(t, reported, 1)

	require.NoError(t, client.Flush())
	assert.Contains(t, tr.methods(), "failed")
}

func TestDMABufUnsupportedModifierFailsImport(t *testing.T) {
	server, client, tr := dmabufFixture(t, []DMABufFormat{{Format: FormatARGB8888, Modifier: ModifierLinear}})
	server.OnError = func(*Client, error) {}

	createParams(t, client, 5)
	file := planeFile(t, 4*4*4)
	require.NoError(t, addPlane(t, client, 5, file, 0, 0, 16, 0xDEADBEEF))
	err := request(t, client, 5, paramsRequestCreate, func(mb *wire.MessageBuilder) {
		mb.WriteInt(4)
		mb.WriteInt(4)
		mb.WriteUint(FormatARGB8888)
		mb.WriteUint(0)
	})
	require.NoError(t, err)
	assert.False(t, client.dead)

	require.NoError(t, client.Flush())
	assert.Contains(t, tr.methods(), "failed")
}

func TestDMABufCreateImmedFailureIsFatal(t *testing.T) {
	_, client, _ := dmabufFixture(t, []DMABufFormat{{Format: FormatARGB8888, Modifier: ModifierLinear}})
	createParams(t, client, 5)

	// No planes at all.
	err := request(t, client, 5, paramsRequestCreateImmed, func(mb *wire.MessageBuilder) {
		mb.WriteUint(6)
		mb.WriteInt(4)
		mb.WriteInt(4)
		mb.WriteUint(FormatARGB8888)
		mb.WriteUint(0)
	})
	require.Error(t, err)
	assert.True(t, client.dead)
}

func TestDMABufBackendVeto(t *testing.T) {
	server, client, tr := dmabufFixture(t, []DMABufFormat{{Format: FormatARGB8888, Modifier: ModifierLinear}})
	server.Backend = &fakeBackend{importErr: ImportError{Reason: "no suitable plane layout"}}
	server.OnError = func(*Client, error) {}

	createParams(t, client, 5)
	file := planeFile(t, 4*4*4)
	require.NoError(t, addPlane(t, client, 5, file, 0, 0, 16, ModifierLinear))
	err := request(t, client, 5, paramsRequestCreate, func(mb *wire.MessageBuilder) {
		mb.WriteInt(4)
		mb.WriteInt(4)
		mb.WriteUint(FormatARGB8888)
		mb.WriteUint(0)
	})
	require.NoError(t, err)
	assert.False(t, client.dead)

	require.NoError(t, client.Flush())
	assert.Contains(t, tr.methods(), "failed")
}

func TestDMABufParamsAreSingleUse(t *testing.T) {
	_, client, _ := dmabufFixture(t, []DMABufFormat{{Format: FormatARGB8888, Modifier: ModifierLinear}})
	createParams(t, client, 5)

	file := planeFile(t, 4*4*4)
	require.NoError(t, addPlane(t, client, 5, file, 0, 0, 16, ModifierLinear))
	err := request(t, client, 5, paramsRequestCreate, func(mb *wire.MessageBuilder) {
		mb.WriteInt(4)
		mb.WriteInt(4)
		mb.WriteUint(FormatARGB8888)
		mb.WriteUint(0)
	})
	require.NoError(t, err)

	err = request(t, client, 5, paramsRequestCreate, func(mb *wire.MessageBuilder) {
		mb.WriteInt(4)
		mb.WriteInt(4)
		mb.WriteUint(FormatARGB8888)
		mb.WriteUint(0)
	})
	require.Error(t, err)
	assert.True(t, client.dead)
}

func TestDMABufDuplicatePlaneIndexIsFatal(t *testing.T) {
	_, client, _ := dmabufFixture(t, []DMABufFormat{{Format: FormatARGB8888, Modifier: ModifierLinear}})
	createParams(t, client, 5)

	file := planeFile(t, 4*4*4)
	require.NoError(t, addPlane(t, client, 5, file, 0, 0, 16, ModifierLinear))
	err := addPlane(t, client, 5, file, 0, 0, 16, ModifierLinear)
	require.Error(t, err)
	assert.True(t, client.dead)
}

func TestDMABufFailedImportLeavesSurfaceIntact(t *testing.T) {
	server, client, _ := dmabufFixture(t, []DMABufFormat{{Format: FormatARGB8888, Modifier: ModifierLinear}})
	server.OnError = func(*Client, error) {}
	s := addTestSurface(t, client, 4)
	committed, _ := addTestBuffer(t, client, 7, 64, 64)

	require.NoError(t, attach(t, client, 4, 7))
	require.NoError(t, commit(t, client, 4))
	require.Same(t, committed, s.CurrentBuffer())

	// A failed import later must not disturb what is on screen.
	createParams(t, client, 5)
	err := request(t, client, 5, paramsRequestCreate, func(mb *wire.MessageBuilder) {
		mb.WriteInt(4)
		mb.WriteInt(4)
		mb.WriteUint(FormatARGB8888)
		mb.WriteUint(0)
	})
	require.NoError(t, err)
	assert.False(t, client.dead)
	assert.Same(t, committed, s.CurrentBuffer())
}
