package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/data"
	"github.com/Carmen-Shannon/hexfab/engine/id"
)

func TestSanitizeMapName(t *testing.T) {
	cases := map[string]string{
		"":             "empty",
		"  my map  ":   "my_map",
		"...dots...":   "dots",
		"slash/name":   "slash_name",
		"CON":          "_CON",
		"lpt1":         "_lpt1",
		"Factory2":     "Factory2",
		"héxfab":       "h_xfab",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeMapName(in), "input %q", in)
	}
}

func TestDataMapRawRoundTrip(t *testing.T) {
	in := id.NewInterner()

	keyFlag := in.Intern("test:flag")
	keyAmount := in.Intern("test:amount")
	keyId := in.Intern("test:id")
	keyCoord := in.Intern("test:coord")
	keyInv := in.Intern("test:inventory")
	keySet := in.Intern("test:set")
	keyTiles := in.Intern("test:tiles")
	ore := in.Intern("test:item/ore")
	bar := in.Intern("test:item/bar")
	hexTile := in.Intern("test:tile/hex")

	m := data.NewDataMap()
	m.Set(keyFlag, data.Bool(true))
	m.Set(keyAmount, data.Amount(-7))
	m.Set(keyId, data.Id(ore))
	m.Set(keyCoord, data.Coord(coord.New(-3, 12)))
	inv := m.InventoryMut(keyInv)
	inv.Add(ore, 41)
	inv.Add(bar, 1)
	m.Set(keySet, data.SetId{}.Insert(bar).Insert(ore))
	m.Set(keyTiles, data.TileMap{coord.New(1, -1): hexTile})

	raw := dataMapToRaw(in, m)
	back := rawToDataMap(in, raw)

	assert.Equal(t, data.Bool(true), back.Get(keyFlag))
	assert.Equal(t, data.Amount(-7), back.Get(keyAmount))
	assert.Equal(t, data.Id(ore), back.Get(keyId))
	assert.Equal(t, data.Coord(coord.New(-3, 12)), back.Get(keyCoord))
	assert.Equal(t, data.ItemAmount(41), back.InventoryMut(keyInv).Get(ore))
	assert.True(t, back.ContainsId(keySet, bar))
	tiles, ok := back.Get(keyTiles).(data.TileMap)
	require.True(t, ok)
	assert.Equal(t, hexTile, tiles[coord.New(1, -1)])
}

func TestRawRoundTripSurvivesDifferentInterner(t *testing.T) {
	// Handles may differ across runs; strings are the contract.
	a := id.NewInterner()
	key := a.Intern("test:key")
	ore := a.Intern("test:item/ore")

	m := data.NewDataMap()
	m.InventoryMut(key).Add(ore, 3)
	raw := dataMapToRaw(a, m)

	b := id.NewInterner()
	b.Intern("something:else") // shift handle assignment
	back := rawToDataMap(b, raw)

	key2, ok := b.Get("test:key")
	require.True(t, ok)
	ore2, ok := b.Get("test:item/ore")
	require.True(t, ok)
	assert.Equal(t, data.ItemAmount(3), back.InventoryMut(key2).Get(ore2))
}

func TestRawSkipsUnresolvableKeys(t *testing.T) {
	in := id.NewInterner()
	m := data.NewDataMap()
	m.Set(id.Id(9999), data.Bool(true)) // never interned

	raw := dataMapToRaw(in, m)
	assert.Empty(t, raw)
}

func TestParseCoordKey(t *testing.T) {
	c, err := parseCoordKey("3,-4")
	require.NoError(t, err)
	assert.Equal(t, coord.New(3, -4), c)

	_, err = parseCoordKey("junk")
	assert.Error(t, err)
	_, err = parseCoordKey("1,x")
	assert.Error(t, err)
}
