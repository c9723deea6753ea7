// Package data implements the heterogeneous typed store mediating state
// between the actor runtime and the tile handler functions. Handlers are
// allowed to reshape a tile's data freely, so every accessor is tolerant:
// a wrong-kind value reads as the type-specific default instead of failing.
package data

import (
	"slices"

	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/id"
)

// Data is one tagged value of a DataMap.
type Data interface {
	// Clone returns a deep copy; scalar kinds return themselves.
	Clone() Data

	isData()
}

// Bool is a boolean flag value.
type Bool bool

// Amount is a signed counter value.
type Amount int32

// Id is an interned-identifier value.
type Id id.Id

// Coord is a tile-coordinate value.
type Coord coord.TileCoord

func (Bool) isData()   {}
func (Amount) isData() {}
func (Id) isData()     {}
func (Coord) isData()  {}

func (v Bool) Clone() Data   { return v }
func (v Amount) Clone() Data { return v }
func (v Id) Clone() Data     { return v }
func (v Coord) Clone() Data  { return v }

// ItemAmount is the count type of inventories.
type ItemAmount = int64

// ItemStack is one item kind with a transfer amount.
type ItemStack struct {
	Id     id.Id
	Amount ItemAmount
}

// Inventory maps item IDs to held amounts. Reads of absent items yield 0.
type Inventory map[id.Id]ItemAmount

func (Inventory) isData() {}

func (v Inventory) Clone() Data {
	out := make(Inventory, len(v))
	for k, n := range v {
		out[k] = n
	}
	return out
}

// Get returns the held amount of item, 0 if absent.
func (v Inventory) Get(item id.Id) ItemAmount {
	return v[item]
}

// Add increases the held amount of item by n.
func (v Inventory) Add(item id.Id, n ItemAmount) {
	v[item] += n
}

// Take removes up to n of item and returns how much was actually taken.
func (v Inventory) Take(item id.Id, n ItemAmount) ItemAmount {
	stored := v[item]
	if stored <= 0 {
		return 0
	}
	taken := min(n, stored)
	v[item] = stored - taken
	return taken
}

// SetId is an ordered set of IDs.
type SetId []id.Id

func (SetId) isData() {}

func (v SetId) Clone() Data {
	return SetId(slices.Clone(v))
}

// Contains reports set membership.
func (v SetId) Contains(x id.Id) bool {
	_, ok := slices.BinarySearch(v, x)
	return ok
}

// Insert adds x, keeping the set ordered. Returns the updated set.
func (v SetId) Insert(x id.Id) SetId {
	i, ok := slices.BinarySearch(v, x)
	if ok {
		return v
	}
	return slices.Insert(v, i, x)
}

// TileMap maps coordinates to IDs; used by in-game sub-puzzles.
type TileMap map[coord.TileCoord]id.Id

func (TileMap) isData() {}

func (v TileMap) Clone() Data {
	out := make(TileMap, len(v))
	for k, t := range v {
		out[k] = t
	}
	return out
}
