package wl

import (
	"image"
	"net"
	"sync"
	"testing"

	"deedles.dev/shoji/wire"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-process Transport. Tests inject requests by
// calling Client.Dispatch directly, so ReadMessage only blocks until
// the transport is closed; WriteMessage records everything the server
// sends.
type fakeTransport struct {
	done  chan struct{}
	close sync.Once

	mu   sync.Mutex
	sent []*wire.MessageBuilder
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{done: make(chan struct{})}
}

func (tr *fakeTransport) ReadMessage() (*wire.MessageBuffer, error) {
	<-tr.done
	return nil, net.ErrClosed
}

func (tr *fakeTransport) WriteMessage(msg *wire.MessageBuilder) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.sent = append(tr.sent, msg)
	return nil
}

func (tr *fakeTransport) Close() error {
	tr.close.Do(func() { close(tr.done) })
	return nil
}

// take returns and clears the messages written so far.
func (tr *fakeTransport) take() []*wire.MessageBuilder {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	sent := tr.sent
	tr.sent = nil
	return sent
}

// methods returns the method names of the messages written so far,
// without clearing them.
func (tr *fakeTransport) methods() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	names := make([]string, 0, len(tr.sent))
	for _, msg := range tr.sent {
		names = append(names, msg.Method)
	}
	return names
}

// fakeBackend records commits. With acquire set it holds on to every
// committed buffer until the test releases it.
type fakeBackend struct {
	acquire   bool
	importErr error

	commits  []*Surface
	releases []func()
}

func (b *fakeBackend) Commit(s *Surface) {
	b.commits = append(b.commits, s)
	if b.acquire && s.CurrentBuffer() != nil {
		b.releases = append(b.releases, s.CurrentBuffer().Acquire())
	}
}

func (b *fakeBackend) ImportDMABuf(width, height int32, format uint32, planes []DMABufPlane) error {
	return b.importErr
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	server := newServer()
	t.Cleanup(func() { server.Close() })
	return server
}

func addTestClient(t *testing.T, server *Server) (*Client, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	server.mu.Lock()
	client := newClient(server, tr)
	server.clients.Add(client)
	server.mu.Unlock()
	return client, tr
}

// reqSender satisfies wire.Object just enough to stamp a sender ID
// onto an outgoing request.
type reqSender uint32

func (s reqSender) ID() uint32                       { return uint32(s) }
func (reqSender) SetID(uint32)                       {}
func (reqSender) Interface() string                  { return "test" }
func (reqSender) Version() uint32                    { return 0 }
func (reqSender) MethodName(uint16) string           { return "test" }
func (reqSender) Dispatch(*wire.MessageBuffer) error { return nil }
func (reqSender) Delete()                            {}

// request builds a request as a client would send it and dispatches
// it.
func request(t *testing.T, client *Client, sender uint32, op uint16, args func(*wire.MessageBuilder)) error {
	t.Helper()
	mb := wire.NewMessage(reqSender(sender), op)
	if args != nil {
		args(mb)
	}
	msg, err := mb.Message()
	require.NoError(t, err)
	return client.Dispatch(msg)
}

const testRegistryID = 2

// getRegistry binds the client's registry at testRegistryID.
func getRegistry(t *testing.T, client *Client) {
	t.Helper()
	err := request(t, client, 1, displayRequestGetRegistry, func(mb *wire.MessageBuilder) {
		mb.WriteUint(testRegistryID)
	})
	require.NoError(t, err)
}

// bindGlobal binds g at the given object ID, creating the registry
// first if the test has not yet.
func bindGlobal(t *testing.T, client *Client, g *Global, id, version uint32) {
	t.Helper()
	if client.Get(testRegistryID) == nil {
		getRegistry(t, client)
	}
	err := request(t, client, testRegistryID, registryRequestBind, func(mb *wire.MessageBuilder) {
		mb.WriteUint(g.Name())
		mb.WriteNewID(wire.NewID{Interface: g.Interface().Name, Version: version, ID: id})
	})
	require.NoError(t, err)
}

// testBacking is a buffer backing with settable geometry and an
// injectable validation failure.
type testBacking struct {
	w, h        int32
	validateErr error
	destroyed   bool
}

func (b *testBacking) size() image.Point { return image.Pt(int(b.w), int(b.h)) }
func (b *testBacking) validate() error   { return b.validateErr }
func (b *testBacking) destroy()          { b.destroyed = true }

// addTestBuffer registers a wl_buffer with a testBacking directly in
// the client's object table.
func addTestBuffer(t *testing.T, client *Client, id uint32, w, h int32) (*Buffer, *testBacking) {
	t.Helper()
	backing := &testBacking{w: w, h: h}
	buf := &Buffer{
		object:  object{version: BufferVersion, client: client},
		backing: backing,
	}
	client.server.mu.Lock()
	err := client.store.AddClient(id, buf)
	client.server.mu.Unlock()
	require.NoError(t, err)
	return buf, backing
}

// addTestSurface registers a bare wl_surface directly in the client's
// object table.
func addTestSurface(t *testing.T, client *Client, id uint32) *Surface {
	t.Helper()
	s := newSurface(client, SurfaceVersion)
	client.server.mu.Lock()
	err := client.store.AddClient(id, s)
	client.server.mu.Unlock()
	require.NoError(t, err)
	return s
}
