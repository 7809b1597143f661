package wl

import (
	"os"
	"testing"

	"deedles.dev/shoji/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shmFixture(t *testing.T) (*Server, *Client, *fakeTransport) {
	t.Helper()
	server := newTestServer(t)
	g := server.AddShm()
	client, tr := addTestClient(t, server)
	bindGlobal(t, client, g, 3, ShmVersion)
	return server, client, tr
}

func poolFile(t *testing.T, size int64) *os.File {
	t.Helper()
	file, err := os.CreateTemp(t.TempDir(), "pool")
	require.NoError(t, err)
	t.Cleanup(func() { file.Close() })
	require.NoError(t, file.Truncate(size))
	return file
}

func createPool(t *testing.T, client *Client, id uint32, file *os.File, size int32) error {
	t.Helper()
	return request(t, client, 3, shmRequestCreatePool, func(mb *wire.MessageBuilder) {
		mb.WriteUint(id)
		mb.WriteFile(file)
		mb.WriteInt(size)
	})
}

func createShmBuffer(t *testing.T, client *Client, poolID, id uint32, offset, width, height, stride int32, format ShmFormat) error {
	t.Helper()
	return request(t, client, poolID, shmPoolRequestCreateBuffer, func(mb *wire.MessageBuilder) {
		mb.WriteUint(id)
		mb.WriteInt(offset)
		mb.WriteInt(width)
		mb.WriteInt(height)
		mb.WriteInt(stride)
		mb.WriteUint(uint32(format))
	})
}

func TestShmFormatsAdvertisedOnBind(t *testing.T) {
	_, client, tr := shmFixture(t)
	require.NoError(t, client.Flush())
	count := 0
	for _, m := range tr.methods() {
		if m == "format" {
			count++
		}
	}
	assert.Equal(t, len(shmFormats), count)
}

func TestShmPoolAndBuffer(t *testing.T) {
	_, client, _ := shmFixture(t)
	file := poolFile(t, 4*4*4)
	require.NoError(t, createPool(t, client, 4, file, 4*4*4))
	require.NoError(t, createShmBuffer(t, client, 4, 5, 0, 4, 4, 16, ShmFormatArgb8888))

	buf, ok := client.Get(5).(*Buffer)
	require.True(t, ok)
	assert.Equal(t, 4, buf.Size().X)
	assert.Equal(t, 4, buf.Size().Y)

	img := buf.Image()
	require.NotNil(t, img)
	assert.Equal(t, 4, img.Bounds().Dx())
}

func TestShmPoolSizeLargerThanFileIsFatal(t *testing.T) {
	_, client, _ := shmFixture(t)
	file := poolFile(t, 16)
	err := createPool(t, client, 4, file, 4096)
	require.Error(t, err)
	assert.True(t, client.dead)
}

func TestShmBufferOutOfBoundsAtCreationIsFatal(t *testing.T) {
	_, client, _ := shmFixture(t)
	file := poolFile(t, 4*4*4)
	require.NoError(t, createPool(t, client, 4, file, 4*4*4))

	// 8x8 at stride 32 needs 256 bytes; the pool has 64.
	err := createShmBuffer(t, client, 4, 5, 0, 8, 8, 32, ShmFormatArgb8888)
	require.Error(t, err)
	assert.True(t, client.dead)
}

func TestShmBufferExtentsOverflowIsFatal(t *testing.T) {
	_, client, _ := shmFixture(t)
	file := poolFile(t, 64)
	require.NoError(t, createPool(t, client, 4, file, 64))

	// stride*height wraps a 32-bit product to zero; the bound must
	// still hold.
	err := createShmBuffer(t, client, 4, 5, 0, 16384, 65536, 65536, ShmFormatArgb8888)
	require.Error(t, err)
	assert.True(t, client.dead)
}

func TestShmBufferBadStrideIsFatal(t *testing.T) {
	_, client, _ := shmFixture(t)
	file := poolFile(t, 4*4*4)
	require.NoError(t, createPool(t, client, 4, file, 4*4*4))

	err := createShmBuffer(t, client, 4, 5, 0, 4, 4, 8, ShmFormatArgb8888)
	require.Error(t, err)
	assert.True(t, client.dead)
}

func TestShmBufferUnknownFormatIsFatal(t *testing.T) {
	_, client, _ := shmFixture(t)
	file := poolFile(t, 4*4*4)
	require.NoError(t, createPool(t, client, 4, file, 4*4*4))

	err := createShmBuffer(t, client, 4, 5, 0, 4, 4, 16, ShmFormat(0x12345678))
	require.Error(t, err)
	assert.True(t, client.dead)
}

func TestShmPoolResize(t *testing.T) {
	_, client, _ := shmFixture(t)
	file := poolFile(t, 256)
	require.NoError(t, createPool(t, client, 4, file, 64))

	err := request(t, client, 4, shmPoolRequestResize, func(mb *wire.MessageBuilder) {
		mb.WriteInt(256)
	})
	require.NoError(t, err)

	// The grown pool admits a buffer the old size would not.
	require.NoError(t, createShmBuffer(t, client, 4, 5, 0, 8, 8, 32, ShmFormatArgb8888))
}

func TestShmPoolShrinkIsFatal(t *testing.T) {
	_, client, _ := shmFixture(t)
	file := poolFile(t, 256)
	require.NoError(t, createPool(t, client, 4, file, 256))

	err := request(t, client, 4, shmPoolRequestResize, func(mb *wire.MessageBuilder) {
		mb.WriteInt(64)
	})
	require.Error(t, err)
	assert.True(t, client.dead)
}

func TestShmPoolOutlivesProtocolObject(t *testing.T) {
	_, client, _ := shmFixture(t)
	file := poolFile(t, 4*4*4)
	require.NoError(t, createPool(t, client, 4, file, 4*4*4))
	require.NoError(t, createShmBuffer(t, client, 4, 5, 0, 4, 4, 16, ShmFormatArgb8888))

	// Destroying the pool object leaves buffers created from it
	// usable.
	require.NoError(t, request(t, client, 4, shmPoolRequestDestroy, nil))
	buf := client.Get(5).(*Buffer)
	assert.NotNil(t, buf.Image())

	require.NoError(t, request(t, client, 5, bufferRequestDestroy, nil))
	assert.Nil(t, client.Get(5))
}
