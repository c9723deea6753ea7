package coord

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArithmetic(t *testing.T) {
	a := New(2, -1)
	b := New(-1, 3)

	assert.Equal(t, New(1, 2), a.Add(b))
	assert.Equal(t, New(3, -4), a.Sub(b))
	assert.Equal(t, New(4, -2), a.Mul(2))
	assert.Equal(t, New(1, 0), a.Div(2))
	assert.Equal(t, New(-2, 1), a.Neg())
	assert.Equal(t, TileUnit(-1), a.S())
}

func TestDistance(t *testing.T) {
	assert.Equal(t, TileUnit(0), Zero.Distance(Zero))
	assert.Equal(t, TileUnit(1), Zero.Distance(Right))
	assert.Equal(t, TileUnit(2), Zero.Distance(DiagTopRight))
	assert.Equal(t, TileUnit(7), New(3, -1).Distance(New(-4, 2)))
}

func TestNeighborsAreUnitDistance(t *testing.T) {
	c := New(5, -3)
	for _, n := range c.Neighbors() {
		assert.Equal(t, TileUnit(1), c.Distance(n), "neighbor %v", n)
	}
	for _, d := range c.Diagonals() {
		assert.Equal(t, TileUnit(2), c.Distance(d), "diagonal %v", d)
	}
}

func TestCompareOrdersByDistanceThenLex(t *testing.T) {
	coords := []TileCoord{New(1, 1), Zero, New(0, 1), New(1, 0), New(0, -2)}
	slices.SortFunc(coords, TileCoord.Compare)

	assert.Equal(t, []TileCoord{Zero, New(0, 1), New(1, 0), New(0, -2), New(1, 1)}, coords)
}

func TestWorldPos(t *testing.T) {
	x, y := Zero.WorldPos()
	assert.Zero(t, x)
	assert.Zero(t, y)

	x, y = BottomRight.WorldPos()
	assert.InDelta(t, sqrt3/2, x, 1e-6)
	assert.InDelta(t, 1.5, y, 1e-6)

	m := New(1, 0).AsTranslation()
	assert.InDelta(t, sqrt3, m.At(0, 3), 1e-6)
	assert.InDelta(t, 0, m.At(1, 3), 1e-6)
}

func TestBoundsContains(t *testing.T) {
	b := NewTileBounds(New(2, 0), 2)

	assert.True(t, b.Contains(New(2, 0)))
	assert.True(t, b.Contains(New(4, 0)))
	assert.False(t, b.Contains(New(5, 0)))
	assert.False(t, EmptyBounds().Contains(Zero))
}

func TestBoundsIteration(t *testing.T) {
	b := NewTileBounds(Zero, 1)

	var got []TileCoord
	for c := range b.All() {
		got = append(got, c)
	}
	require.Len(t, got, b.Size())
	require.Len(t, got, 7)

	for _, c := range got {
		assert.True(t, b.Contains(c))
	}

	seen := map[TileCoord]struct{}{}
	for _, c := range got {
		_, dup := seen[c]
		require.False(t, dup, "duplicate %v", c)
		seen[c] = struct{}{}
	}
}

func TestBoundsIterationOffCenter(t *testing.T) {
	center := New(-3, 5)
	b := NewTileBounds(center, 3)

	n := 0
	for c := range b.All() {
		assert.LessOrEqual(t, center.Distance(c), TileUnit(3))
		n++
	}
	assert.Equal(t, b.Size(), n)
}

func TestBoundsEquality(t *testing.T) {
	assert.Equal(t, EmptyBounds(), EmptyBounds())
	assert.Equal(t, NewTileBounds(Zero, 4), NewTileBounds(Zero, 4))
	assert.NotEqual(t, NewTileBounds(Zero, 4), NewTileBounds(Zero, 5))
	assert.NotEqual(t, NewTileBounds(Zero, 0), EmptyBounds())
}

func TestEmptyBoundsYieldsNothing(t *testing.T) {
	for range EmptyBounds().All() {
		t.Fatal("empty bounds yielded a coordinate")
	}
}
