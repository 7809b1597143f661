package wl

import (
	"errors"
	"io"
	"net"
	"sync"

	"deedles.dev/shoji/internal/debug"
	"deedles.dev/shoji/internal/ev"
	"deedles.dev/shoji/internal/objstore"
	"deedles.dev/shoji/wire"
)

// Transport carries decoded messages between the core and one client.
// ReadMessage delivers requests in arrival order; WriteMessage accepts
// events for delivery in emission order. wire.Conn is the production
// implementation.
type Transport interface {
	ReadMessage() (*wire.MessageBuffer, error)
	WriteMessage(*wire.MessageBuilder) error
	Close() error
}

// Client is one connected peer. It exclusively owns a set of protocol
// objects; disconnecting destroys all of them, dependents first.
type Client struct {
	server *Server
	done   chan struct{}
	close  sync.Once
	tr     Transport
	store  *objstore.Store
	queue  *ev.Queue

	// The fields below are guarded by server.mu, like all per-client
	// protocol state. Request handlers run with it held.
	dead        bool
	registries  []*Registry
	inputSerial uint32
}

// newClient is called with server.mu held.
func newClient(server *Server, tr Transport) *Client {
	client := Client{
		server: server,
		done:   make(chan struct{}),
		tr:     tr,
		store:  objstore.New(),
		queue:  ev.NewQueue(),
	}

	display := &Display{object: object{version: DisplayVersion, client: &client}}
	client.store.AddClient(1, display)

	go client.listen()

	return &client
}

func (client *Client) listen() {
	for {
		msg, err := client.tr.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				client.Close()
				return
			}

			select {
			case <-client.done:
				return
			case client.queue.Add() <- func() error { return err }:
				continue
			}
		}

		select {
		case <-client.done:
			return
		case client.queue.Add() <- func() error { return client.Dispatch(msg) }:
		}
	}
}

// Server returns the server that accepted the client.
func (client *Client) Server() *Server {
	return client.server
}

// Display returns the client's wl_display, object 1.
func (client *Client) Display() *Display {
	return client.store.Get(1).(*Display)
}

// Get looks an object up by ID in the client's namespace.
func (client *Client) Get(id uint32) wire.Object {
	return client.store.Get(id)
}

// RecordInputSerial informs the core of the most recent input-derived
// serial delivered to this client. Selection and interactive-move
// requests are validated against it. It takes the server's
// shared-state lock and must not be called from listener hooks, which
// already hold it; the seat's event methods call it on the
// compositor's behalf.
func (client *Client) RecordInputSerial(serial uint32) {
	client.server.mu.Lock()
	defer client.server.mu.Unlock()
	if serial > client.inputSerial {
		client.inputSerial = serial
	}
}

// Dispatch routes a single decoded request to the object it names and
// runs the object's handler. It is the entry point the transport
// feeds; all object, surface, shell, and seat mutation happens under
// it, serialized by the server's shared-state lock.
//
// Fatal protocol errors emit a wl_display.error event and tear the
// connection down. Recoverable resource errors are reported to
// Server.OnError and the connection survives.
func (client *Client) Dispatch(msg *wire.MessageBuffer) error {
	client.server.mu.Lock()
	defer client.server.mu.Unlock()

	if client.dead {
		return net.ErrClosed
	}

	obj := client.store.Get(msg.Sender())
	if obj == nil {
		err := wire.UnknownSenderIDError{Msg: msg}
		client.fatal(&ProtocolError{
			ObjectID:  msg.Sender(),
			Interface: DisplayInterface,
			Code:      DisplayErrorInvalidObject,
			Message:   err.Error(),
		})
		return err
	}

	err := obj.Dispatch(msg)
	debug.Printf("%v", msg.Debug(obj))
	if err == nil {
		if derr := msg.Err(); derr != nil {
			// The handler read past the arguments without noticing.
			client.fatal(protoErr(obj, DisplayErrorInvalidMethod, "malformed request: %v", derr))
			return derr
		}
		return nil
	}

	switch {
	case recoverable(err):
		debug.Printf("recoverable error on %v@%v: %v", obj.Interface(), obj.ID(), err)
		if client.server.OnError != nil {
			client.server.OnError(client, err)
		}
		return nil

	default:
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			code := DisplayErrorImplementation
			var vererr UnsupportedVersionError
			var operr wire.UnknownOpError
			if errors.As(err, &vererr) || errors.As(err, &operr) {
				code = DisplayErrorInvalidMethod
			}
			perr = protoErr(obj, code, "%v", err)
		}
		client.fatal(perr)
		return err
	}
}

// fatal emits the error event naming the offending object, then tears
// the connection down. Called with server.mu held.
func (client *Client) fatal(err *ProtocolError) {
	if client.dead {
		return
	}
	debug.Printf("fatal: %v", err)
	client.Display().Error(err.ObjectID, err.Code, err.Message)
	client.teardown()

	// Let the error event drain before the transport goes away.
	client.enqueue(func() error {
		client.close.Do(func() { close(client.done) })
		return client.tr.Close()
	})
}

// Close disconnects the client, synchronously invalidating all of its
// dependent state. The backend is informed only through buffer
// teardown; the core does not wait for it.
func (client *Client) Close() error {
	client.server.mu.Lock()
	if !client.dead {
		client.teardown()
	}
	client.server.mu.Unlock()
	client.close.Do(func() { close(client.done) })
	return client.tr.Close()
}

// teardown destroys the client's objects, dependents before parents,
// and removes it from the server. Called with server.mu held.
func (client *Client) teardown() {
	client.dead = true

	for _, obj := range client.store.All() {
		if obj.ID() == 1 {
			continue
		}
		client.store.Delete(obj.ID())
	}
	client.registries = nil

	client.server.clients.Delete(client)
	if client.server.OnClientRemove != nil {
		client.server.OnClientRemove(client)
	}
}

// destroy removes an object in response to a destructor request and
// schedules the ID acknowledgment. The ID is not reusable until the
// wl_display.delete_id event has drained past every earlier event
// that might still reference it.
func (client *Client) destroy(obj wire.Object) {
	id := obj.ID()
	client.store.Delete(id)

	if id >= objstore.ServerIDStart {
		// Server-allocated IDs are never handed out twice.
		client.store.Release(id)
		return
	}

	client.Display().DeleteID(id)
	client.enqueue(func() error {
		client.server.mu.Lock()
		client.store.Release(id)
		client.server.mu.Unlock()
		return nil
	})
}

// Enqueue appends an event to the client's outgoing queue. Events are
// written to the transport in emission order on the next flush.
func (client *Client) Enqueue(msg *wire.MessageBuilder) {
	client.enqueue(func() error {
		debug.Printf(" -> %v", msg)
		return client.tr.WriteMessage(msg)
	})
}

func (client *Client) enqueue(f func() error) {
	select {
	case client.queue.Add() <- f:
	case <-client.done:
	}
}

// Flush flushes the event queue, sending all enqueued events and
// processing all requests received since the last flush. It returns
// all errors encountered.
func (client *Client) Flush() error {
	select {
	case queue := <-client.queue.Get():
		return queue.Flush()
	default:
		return nil
	}
}
