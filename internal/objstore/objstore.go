// Package objstore implements the per-connection table of live
// protocol objects.
package objstore

import (
	"errors"

	"deedles.dev/shoji/internal/set"
	"deedles.dev/shoji/wire"
)

// ServerIDStart is the first object ID in the server-allocated range.
// IDs below it may only be allocated by the client.
const ServerIDStart uint32 = 0xFF000000

var (
	// ErrIDInUse indicates an attempt to register an object under an
	// ID that is either live or still referenced by events that have
	// not drained yet.
	ErrIDInUse = errors.New("object ID already in use")

	// ErrIDOutOfRange indicates an attempt to register an object under
	// an ID outside of the allocator's range.
	ErrIDOutOfRange = errors.New("object ID out of range")
)

// Store is a table of live protocol objects for a single connection.
// Object IDs are partitioned into a client-allocated and a
// server-allocated range. A deleted ID is quarantined until Release
// is called for it, which happens only after every event referencing
// the ID has drained from the connection's queue.
type Store struct {
	objects map[uint32]wire.Object
	order   []uint32
	zombies set.Set[uint32]
	nextID  uint32
}

func New() *Store {
	return &Store{
		objects: make(map[uint32]wire.Object),
		zombies: make(set.Set[uint32]),
		nextID:  ServerIDStart,
	}
}

// Add registers obj under the next free server-allocated ID.
func (s *Store) Add(obj wire.Object) {
	id := s.nextID
	s.nextID++
	obj.SetID(id)
	s.objects[id] = obj
	s.order = append(s.order, id)
}

// AddClient registers obj under id, which must be in the
// client-allocated range and must not be live or quarantined.
func (s *Store) AddClient(id uint32, obj wire.Object) error {
	if id == 0 || id >= ServerIDStart {
		return ErrIDOutOfRange
	}
	if _, ok := s.objects[id]; ok {
		return ErrIDInUse
	}
	if s.zombies.Has(id) {
		return ErrIDInUse
	}

	obj.SetID(id)
	s.objects[id] = obj
	s.order = append(s.order, id)
	return nil
}

func (s *Store) Get(id uint32) wire.Object {
	return s.objects[id]
}

// Delete runs the object's teardown and removes it from the table.
// The ID stays quarantined until Release.
func (s *Store) Delete(id uint32) {
	obj := s.objects[id]
	if obj == nil {
		return
	}
	delete(s.objects, id)
	s.zombies.Add(id)
	obj.Delete()
}

// Release makes id available for reuse again. It must not be called
// before all previously enqueued events referencing id have been
// delivered.
func (s *Store) Release(id uint32) {
	s.zombies.Delete(id)
}

// All returns the live objects in reverse insertion order. Dependent
// objects are always created after the objects they depend on, so
// tearing down in this order destroys dependents before parents.
func (s *Store) All() []wire.Object {
	objs := make([]wire.Object, 0, len(s.objects))
	for i := len(s.order) - 1; i >= 0; i-- {
		if obj, ok := s.objects[s.order[i]]; ok {
			objs = append(objs, obj)
		}
	}
	return objs
}

// Len is the number of live objects in the store.
func (s *Store) Len() int {
	return len(s.objects)
}
