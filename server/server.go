package wl

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"deedles.dev/shoji/internal/ev"
	"deedles.dev/shoji/internal/set"
	"deedles.dev/shoji/wire"
)

// Server is a compositor-side protocol endpoint. It accepts client
// connections, owns the process-wide global advertisement table, and
// serializes all cross-client state behind a single lock.
//
// The function fields are policy hooks for the embedding compositor.
// They are all optional and must be set before the first client
// connects. Every hook is invoked with the server's shared-state lock
// held; hooks must not block, call Flush, or re-enter methods that
// take the lock, such as WmBase.Ping, Client.RecordInputSerial, or the
// seat's event methods. NextSerial and the configure methods are safe.
type Server struct {
	// OnClient and OnClientRemove observe connection lifetimes.
	OnClient       func(*Client)
	OnClientRemove func(*Client)

	// OnToplevel, OnPopup, and OnLayerSurface announce new shell
	// roles. The hook is expected to issue the initial configure; if
	// the hook is nil the core sends a default one so that the
	// configure state machine always advances.
	OnToplevel     func(*Toplevel)
	OnPopup        func(*Popup)
	OnLayerSurface func(*LayerSurface)

	// Interactive toplevel requests, forwarded verbatim to policy.
	OnMaximizeRequest   func(*Toplevel, bool)
	OnFullscreenRequest func(*Toplevel, bool)
	OnMinimizeRequest   func(*Toplevel)
	OnMove              func(*Toplevel, uint32)
	OnResize            func(*Toplevel, uint32, ResizeEdge)

	// OnError observes recoverable resource errors, such as rejected
	// buffer imports. Fatal protocol errors are not reported here;
	// they tear the offending connection down.
	OnError func(*Client, error)

	// Backend consumes committed state and signals buffer release. A
	// nil backend releases buffers as soon as they leave a surface's
	// current state.
	Backend Backend

	// ForcedDecorationMode, if nonzero, overrides every client's
	// decoration preference. DefaultDecorationMode is used when the
	// client expresses none; zero means server-side.
	ForcedDecorationMode  DecorationMode
	DefaultDecorationMode DecorationMode

	done   chan struct{}
	close  sync.Once
	lis    *net.UnixListener
	queue  *ev.Queue
	serial atomic.Uint32

	mu             sync.Mutex
	clients        set.Set[*Client]
	globals        map[uint32]*Global
	globalsVersion uint64
	nextGlobalName uint32
	idleInhibitors int
}

// ListenAndServe creates a server listening on a fresh Wayland socket
// chosen from the runtime directory.
func ListenAndServe() (*Server, error) {
	lis, err := wire.Listen()
	if err != nil {
		return nil, err
	}
	return NewServer(lis), nil
}

func NewServer(lis *net.UnixListener) *Server {
	server := newServer()
	server.lis = lis
	go server.listen()

	return server
}

func newServer() *Server {
	return &Server{
		done:           make(chan struct{}),
		clients:        make(set.Set[*Client]),
		globals:        make(map[uint32]*Global),
		nextGlobalName: 1,
		queue:          ev.NewQueue(),
	}
}

func (server *Server) listen() {
	for {
		c, err := server.lis.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			select {
			case <-server.done:
				return
			case server.queue.Add() <- func() error { return err }:
				continue
			}
		}

		select {
		case <-server.done:
			return
		case server.queue.Add() <- func() error { server.accept(wire.NewConn(c)); return nil }:
		}
	}
}

func (server *Server) accept(tr Transport) {
	server.mu.Lock()
	client := newClient(server, tr)
	server.clients.Add(client)
	if server.OnClient != nil {
		server.OnClient(client)
	}
	server.mu.Unlock()
}

// Close stops accepting connections and disconnects every client.
func (server *Server) Close() error {
	server.close.Do(func() { close(server.done) })

	var err error
	if server.lis != nil {
		err = server.lis.Close()
	}

	server.mu.Lock()
	clients := make([]*Client, 0, len(server.clients))
	for client := range server.clients {
		clients = append(clients, client)
	}
	server.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
	server.queue.Stop()
	return err
}

// Flush processes everything queued since the last flush: new
// connections, received requests, and outgoing events, in per-client
// FIFO order. A compositor typically calls this once per frame.
func (server *Server) Flush() error {
	var errs []error

	select {
	case queue := <-server.queue.Get():
		errs = append(errs, queue.Flush())
	default:
	}

	server.mu.Lock()
	clients := make([]*Client, 0, len(server.clients))
	for client := range server.clients {
		clients = append(clients, client)
	}
	server.mu.Unlock()

	for _, client := range clients {
		errs = append(errs, client.Flush())
	}
	return errors.Join(errs...)
}

// NextSerial returns the next serial from the server's monotonic
// serial counter. Configure events and the input subsystem share it.
// It is safe to call from anywhere, including shell hooks.
func (server *Server) NextSerial() uint32 {
	return server.serial.Add(1)
}

// IdleInhibited reports whether any live idle inhibitor exists on any
// surface of any client.
func (server *Server) IdleInhibited() bool {
	server.mu.Lock()
	defer server.mu.Unlock()
	return server.idleInhibitors > 0
}

// Global is an interface instance advertised to every connecting
// client.
type Global struct {
	server  *Server
	name    uint32
	iface   string
	version uint32
	bind    func(client *Client, id wire.NewID) error
}

// Name is the global's advertisement name, unique for the lifetime of
// the process.
func (g *Global) Name() uint32 {
	return g.name
}

// Interface returns the global's interface identity.
func (g *Global) Interface() wire.Interface {
	return wire.Interface{Name: g.iface, Version: g.version}
}

// AddGlobal advertises a new global to all current and future
// clients. Most callers use the typed helpers (AddCompositor, AddShm,
// AddSeat, ...) instead.
func (server *Server) AddGlobal(iface string, version uint32, bind func(*Client, wire.NewID) error) *Global {
	server.mu.Lock()
	defer server.mu.Unlock()

	g := &Global{
		server:  server,
		name:    server.nextGlobalName,
		iface:   iface,
		version: version,
		bind:    bind,
	}
	server.nextGlobalName++
	server.globals[g.name] = g
	server.globalsVersion++

	for client := range server.clients {
		for _, registry := range client.registries {
			registry.Global(g.name, g.iface, g.version)
		}
	}
	return g
}

// RemoveGlobal retracts a global from the advertisement table and
// broadcasts the removal. Objects already bound from it stay alive.
func (server *Server) RemoveGlobal(g *Global) {
	server.mu.Lock()
	defer server.mu.Unlock()

	if _, ok := server.globals[g.name]; !ok {
		return
	}
	delete(server.globals, g.name)
	server.globalsVersion++

	for client := range server.clients {
		for _, registry := range client.registries {
			registry.GlobalRemove(g.name)
		}
	}
}

// GlobalsVersion is the monotonic version counter of the
// advertisement table. It changes on every addition or removal.
func (server *Server) GlobalsVersion() uint64 {
	server.mu.Lock()
	defer server.mu.Unlock()
	return server.globalsVersion
}
