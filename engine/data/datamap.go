package data

import "github.com/Carmen-Shannon/hexfab/engine/id"

// DataMap is the per-tile and per-map key→value store.
type DataMap map[id.Id]Data

// NewDataMap creates an empty data map.
func NewDataMap() DataMap {
	return DataMap{}
}

// Get returns the value bound to key, or nil.
func (m DataMap) Get(key id.Id) Data {
	return m[key]
}

// Set binds key to value.
func (m DataMap) Set(key id.Id, value Data) {
	m[key] = value
}

// Remove unbinds key and returns the prior value, or nil.
func (m DataMap) Remove(key id.Id) Data {
	v, ok := m[key]
	if !ok {
		return nil
	}
	delete(m, key)
	return v
}

// GetOrInsert returns the value bound to key, binding f() first if absent.
func (m DataMap) GetOrInsert(key id.Id, f func() Data) Data {
	if v, ok := m[key]; ok {
		return v
	}
	v := f()
	m[key] = v
	return v
}

// BoolOrDefault reads key as a Bool, returning def when the key is absent
// or bound to another kind.
func (m DataMap) BoolOrDefault(key id.Id, def bool) bool {
	if v, ok := m[key].(Bool); ok {
		return bool(v)
	}
	return def
}

// AmountOrDefault reads key as an Amount, returning def when the key is
// absent or bound to another kind.
func (m DataMap) AmountOrDefault(key id.Id, def int32) int32 {
	if v, ok := m[key].(Amount); ok {
		return int32(v)
	}
	return def
}

// IdOrZero reads key as an Id value, returning the zero Id on any miss.
func (m DataMap) IdOrZero(key id.Id) id.Id {
	if v, ok := m[key].(Id); ok {
		return id.Id(v)
	}
	return 0
}

// CoordOrZero reads key as a Coord value, returning the origin on any miss.
func (m DataMap) CoordOrZero(key id.Id) Coord {
	if v, ok := m[key].(Coord); ok {
		return v
	}
	return Coord{}
}

// ContainsId reports whether the SetId bound to key contains x. False when
// the key is absent or bound to another kind.
func (m DataMap) ContainsId(key, x id.Id) bool {
	if v, ok := m[key].(SetId); ok {
		return v.Contains(x)
	}
	return false
}

// ContainsStack reports whether the Inventory bound to key holds at least
// stack.Amount of stack.Id.
func (m DataMap) ContainsStack(key id.Id, stack ItemStack) bool {
	if v, ok := m[key].(Inventory); ok {
		return v.Get(stack.Id) >= stack.Amount
	}
	return false
}

// InventoryMut returns the Inventory bound to key. If the key is absent or
// bound to a differently-typed value, a fresh empty Inventory is installed
// first, so the result is always usable for mutation.
func (m DataMap) InventoryMut(key id.Id) Inventory {
	if v, ok := m[key].(Inventory); ok {
		return v
	}
	v := Inventory{}
	m[key] = v
	return v
}

// SetIdMut returns the SetId bound to key, installing an empty set over any
// absent or wrong-kind value. Mutations go back through Set since SetId
// insertion reallocates.
func (m DataMap) SetIdMut(key id.Id) SetId {
	if v, ok := m[key].(SetId); ok {
		return v
	}
	v := SetId{}
	m[key] = v
	return v
}

// Clone returns a deep copy of the map.
func (m DataMap) Clone() DataMap {
	out := make(DataMap, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}
