package wl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputDescribedOnBind(t *testing.T) {
	server := newTestServer(t)
	g := server.AddOutput(OutputConfig{
		Make:        "Example",
		Model:       "Display",
		Width:       1920,
		Height:      1080,
		Refresh:     60000,
		Scale:       2,
		Name:        "DP-1",
		Description: "Example Display",
	})
	client, tr := addTestClient(t, server)
	bindGlobal(t, client, g, 3, OutputVersion)
	require.NoError(t, client.Flush())

	methods := tr.methods()
	for _, want := range []string{"geometry", "mode", "scale", "name", "description", "done"} {
		assert.Contains(t, methods, want)
	}

	// done must come last.
	assert.Equal(t, "done", methods[len(methods)-1])
}

func TestOutputOldVersionSkipsNewerEvents(t *testing.T) {
	server := newTestServer(t)
	g := server.AddOutput(OutputConfig{Width: 800, Height: 600, Refresh: 60000})
	client, tr := addTestClient(t, server)
	bindGlobal(t, client, g, 3, 1)
	require.NoError(t, client.Flush())

	methods := tr.methods()
	assert.Contains(t, methods, "geometry")
	assert.Contains(t, methods, "mode")
	assert.NotContains(t, methods, "name")
	assert.NotContains(t, methods, "scale")
	assert.NotContains(t, methods, "done")
}

func TestOutputHotplug(t *testing.T) {
	server := newTestServer(t)
	client, tr := addTestClient(t, server)
	getRegistry(t, client)

	g := server.AddOutput(OutputConfig{Width: 1280, Height: 1024, Refresh: 60000})
	require.NoError(t, client.Flush())
	assert.Contains(t, tr.methods(), "global")

	bindGlobal(t, client, g, 3, OutputVersion)
	_, ok := client.Get(3).(*Output)
	require.True(t, ok)

	tr.take()
	server.RemoveGlobal(g)
	require.NoError(t, client.Flush())
	assert.Contains(t, tr.methods(), "global_remove")

	// The bound object keeps working until released.
	require.NoError(t, request(t, client, 3, outputRequestRelease, nil))
	assert.Nil(t, client.Get(3))
}
