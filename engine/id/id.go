// Package id provides the interned string identifiers used for every named
// asset, plus the nominal wrapper types that keep the different ID spaces
// from mixing.
package id

import "sync"

// Id is an opaque handle into an Interner. The zero Id is never interned
// and acts as the "no id" sentinel.
type Id uint32

// Nominal sub-types over the shared handle space. Conversions are explicit
// so a tile ID can never silently stand in for a model ID.
type (
	// TileId identifies a tile definition.
	TileId Id
	// ModelId identifies a renderable model.
	ModelId Id
	// RenderId tags one tracked render entry of a tile. A tile may track
	// several models under distinct render IDs.
	RenderId Id
)

// Interner is a two-way symbol table assigning stable handles to strings.
// Interning is idempotent: equal strings share a handle. Safe for
// concurrent use; in practice it is write-locked only during startup
// loading and read-shared afterwards.
type Interner struct {
	mu      sync.RWMutex
	handles map[string]Id
	strings []string
}

// NewInterner creates an empty interner.
func NewInterner() *Interner {
	return &Interner{
		handles: make(map[string]Id),
		strings: []string{""}, // reserve handle 0
	}
}

// Intern returns the handle for s, assigning a new one on first use.
func (i *Interner) Intern(s string) Id {
	i.mu.Lock()
	defer i.mu.Unlock()

	if h, ok := i.handles[s]; ok {
		return h
	}
	h := Id(len(i.strings))
	i.strings = append(i.strings, s)
	i.handles[s] = h
	return h
}

// Get returns the handle for s without interning. The second result is
// false if s was never interned.
func (i *Interner) Get(s string) (Id, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	h, ok := i.handles[s]
	return h, ok
}

// Resolve returns the string for a handle, or "" if the handle is unknown.
func (i *Interner) Resolve(h Id) string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if int(h) >= len(i.strings) {
		return ""
	}
	return i.strings[h]
}

// Len returns the number of interned strings, excluding the reserved
// zero handle.
func (i *Interner) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.strings) - 1
}
