// Package coord implements axial hex-grid coordinates, the culling bounds
// type, and the deterministic orderings the game world iterates with.
package coord

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// TileUnit is the component type of a tile coordinate.
type TileUnit = int32

// TileCoord is an axial hex coordinate. The third cube component is derived
// as s = -q - r. The zero value is the origin.
type TileCoord struct {
	Q, R TileUnit
}

// Zero is the tile at the origin.
var Zero = TileCoord{}

// New creates a coordinate at (q, r, -q-r).
func New(q, r TileUnit) TileCoord {
	return TileCoord{Q: q, R: r}
}

// S returns the derived cube component.
func (c TileCoord) S() TileUnit {
	return -c.Q - c.R
}

// The six neighbor directions, pointy-top layout.
var (
	Right       = TileCoord{Q: 1, R: 0}
	Left        = TileCoord{Q: -1, R: 0}
	TopRight    = TileCoord{Q: 1, R: -1}
	TopLeft     = TileCoord{Q: 0, R: -1}
	BottomRight = TileCoord{Q: 0, R: 1}
	BottomLeft  = TileCoord{Q: -1, R: 1}
)

// The six diagonal directions.
var (
	DiagTop         = TileCoord{Q: 1, R: -2}
	DiagTopRight    = TileCoord{Q: 2, R: -1}
	DiagBottomRight = TileCoord{Q: 1, R: 1}
	DiagBottom      = TileCoord{Q: -1, R: 2}
	DiagBottomLeft  = TileCoord{Q: -2, R: 1}
	DiagTopLeft     = TileCoord{Q: -1, R: -1}
)

// Neighbors returns the six adjacent coordinates, clockwise from top-right.
func (c TileCoord) Neighbors() [6]TileCoord {
	return [6]TileCoord{
		c.Add(TopRight),
		c.Add(Right),
		c.Add(BottomRight),
		c.Add(BottomLeft),
		c.Add(Left),
		c.Add(TopLeft),
	}
}

// Diagonals returns the six diagonal coordinates, clockwise from the top.
func (c TileCoord) Diagonals() [6]TileCoord {
	return [6]TileCoord{
		c.Add(DiagTop),
		c.Add(DiagTopRight),
		c.Add(DiagBottomRight),
		c.Add(DiagBottom),
		c.Add(DiagBottomLeft),
		c.Add(DiagTopLeft),
	}
}

func (c TileCoord) Add(o TileCoord) TileCoord {
	return TileCoord{Q: c.Q + o.Q, R: c.R + o.R}
}

func (c TileCoord) Sub(o TileCoord) TileCoord {
	return TileCoord{Q: c.Q - o.Q, R: c.R - o.R}
}

func (c TileCoord) Mul(n TileUnit) TileCoord {
	return TileCoord{Q: c.Q * n, R: c.R * n}
}

func (c TileCoord) Div(n TileUnit) TileCoord {
	return TileCoord{Q: c.Q / n, R: c.R / n}
}

func (c TileCoord) Neg() TileCoord {
	return TileCoord{Q: -c.Q, R: -c.R}
}

// Distance returns the hex-metric distance between two coordinates.
func (c TileCoord) Distance(o TileCoord) TileUnit {
	d := c.Sub(o)
	return (abs(d.Q) + abs(d.R) + abs(d.S())) / 2
}

func abs(v TileUnit) TileUnit {
	if v < 0 {
		return -v
	}
	return v
}

// Compare orders coordinates by distance from the origin, then
// lexicographically by (q, r). It reports -1, 0 or 1.
func (c TileCoord) Compare(o TileCoord) int {
	cd, od := c.Distance(Zero), o.Distance(Zero)
	switch {
	case cd < od:
		return -1
	case cd > od:
		return 1
	case c.Q < o.Q:
		return -1
	case c.Q > o.Q:
		return 1
	case c.R < o.R:
		return -1
	case c.R > o.R:
		return 1
	}
	return 0
}

func (c TileCoord) String() string {
	return fmt.Sprintf("[%d, %d]", c.Q, c.R)
}

// MinimalString renders the coordinate as "q,r", used for actor names and
// save keys.
func (c TileCoord) MinimalString() string {
	return fmt.Sprintf("%d,%d", c.Q, c.R)
}

// HexSize is the circumradius of one tile in world units.
const HexSize = 1.0

var sqrt3 = float32(math.Sqrt(3))

// WorldPos converts the coordinate to its world-space center, pointy-top
// layout with +y pointing down the r axis.
func (c TileCoord) WorldPos() (x, y float32) {
	q := float32(c.Q)
	r := float32(c.R)
	return HexSize * (sqrt3*q + sqrt3/2*r), HexSize * (3.0 / 2.0 * r)
}

// AsTranslation returns the model matrix placing a unit tile mesh at this
// coordinate.
func (c TileCoord) AsTranslation() mgl32.Mat4 {
	x, y := c.WorldPos()
	return mgl32.Translate3D(x, y, 0)
}
