// Package camera implements the 2.5D map camera: a world position over the
// hex plane, a zoom-driven height, the combined view-projection matrix the
// renderer feeds to every tile, and the derived hex culling bounds.
package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/hexfab/engine/coord"
)

const (
	// MinZoom and MaxZoom bound the camera height in world units.
	MinZoom float32 = 1
	MaxZoom float32 = 8

	// moveSpeed scales pointer drag into world movement per zoom unit.
	moveSpeed float32 = 0.0015
	// followFactor is the per-frame exponential catch-up rate.
	followFactor float32 = 0.18
)

// cameraImpl is the implementation of the Camera interface.
type cameraImpl struct {
	pos    mgl32.Vec2 // world position the camera hovers over
	target mgl32.Vec2 // position the camera eases toward
	zoom   float32    // current height
	zoomTo float32    // height the camera eases toward

	width  int
	height int
}

// Camera defines the interface for the map camera. All methods are meant
// to be called from the render loop goroutine; the camera is not shared.
type Camera interface {
	// Pos returns the current hovered world position.
	//
	// Returns:
	//   - mgl32.Vec2: the world position
	Pos() mgl32.Vec2

	// Zoom returns the current camera height.
	//
	// Returns:
	//   - float32: the zoom height in world units
	Zoom() float32

	// PointingAt returns the hex coordinate under the camera center.
	//
	// Returns:
	//   - coord.TileCoord: the pointed-at coordinate
	PointingAt() coord.TileCoord

	// Resize informs the camera of the new viewport size in pixels.
	//
	// Parameters:
	//   - width: viewport width
	//   - height: viewport height
	Resize(width, height int)

	// Pan moves the camera target by a pointer delta in pixels.
	//
	// Parameters:
	//   - dx: pointer delta x
	//   - dy: pointer delta y
	Pan(dx, dy float32)

	// ZoomBy adjusts the target zoom by a scroll delta, clamped to the
	// zoom bounds.
	//
	// Parameters:
	//   - delta: scroll delta (positive zooms in)
	ZoomBy(delta float32)

	// Update eases position and zoom toward their targets. Call once per
	// frame.
	Update()

	// Matrix returns the combined view-projection matrix shared by every
	// tile instance this frame.
	//
	// Returns:
	//   - mgl32.Mat4: the world matrix
	Matrix() mgl32.Mat4

	// CullingBounds returns the hex region visible at the current
	// position and zoom, used to cull tile render commands.
	//
	// Returns:
	//   - coord.TileBounds: the culling bounds
	CullingBounds() coord.TileBounds
}

var _ Camera = &cameraImpl{}

// CameraBuilderOption is a functional option for configuring a camera.
type CameraBuilderOption func(*cameraImpl)

// WithPosition sets the initial hovered world position.
//
// Parameters:
//   - x: world x
//   - y: world y
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithPosition(x, y float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.pos = mgl32.Vec2{x, y}
		c.target = c.pos
	}
}

// WithZoom sets the initial camera height, clamped to the zoom bounds.
//
// Parameters:
//   - zoom: the height in world units
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithZoom(zoom float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.zoom = clampZoom(zoom)
		c.zoomTo = c.zoom
	}
}

// NewCamera creates a camera hovering over the origin at middle zoom.
//
// Parameters:
//   - width: initial viewport width in pixels
//   - height: initial viewport height in pixels
//   - options: variadic list of CameraBuilderOption functions
//
// Returns:
//   - Camera: the configured camera
func NewCamera(width, height int, options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		zoom:   3,
		zoomTo: 3,
		width:  width,
		height: height,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func clampZoom(z float32) float32 {
	return min(max(z, MinZoom), MaxZoom)
}

func (c *cameraImpl) Pos() mgl32.Vec2 {
	return c.pos
}

func (c *cameraImpl) Zoom() float32 {
	return c.zoom
}

func (c *cameraImpl) Resize(width, height int) {
	c.width = width
	c.height = height
}

func (c *cameraImpl) Pan(dx, dy float32) {
	scale := moveSpeed * c.zoom
	c.target = c.target.Add(mgl32.Vec2{-dx * scale, -dy * scale})
}

func (c *cameraImpl) ZoomBy(delta float32) {
	c.zoomTo = clampZoom(c.zoomTo - delta*0.5)
}

func (c *cameraImpl) Update() {
	c.pos = c.pos.Add(c.target.Sub(c.pos).Mul(followFactor))
	c.zoom += (c.zoomTo - c.zoom) * followFactor
}

// PointingAt inverts the pointy-top world layout at the camera center.
func (c *cameraImpl) PointingAt() coord.TileCoord {
	x := float64(c.pos.X()) / coord.HexSize
	y := float64(c.pos.Y()) / coord.HexSize

	qf := math.Sqrt(3)/3*x - 1.0/3.0*y
	rf := 2.0 / 3.0 * y

	return roundHex(qf, rf)
}

// roundHex rounds fractional axial coordinates to the nearest hex.
func roundHex(qf, rf float64) coord.TileCoord {
	sf := -qf - rf

	q := math.Round(qf)
	r := math.Round(rf)
	s := math.Round(sf)

	dq := math.Abs(q - qf)
	dr := math.Abs(r - rf)
	ds := math.Abs(s - sf)

	switch {
	case dq > dr && dq > ds:
		q = -r - s
	case dr > ds:
		r = -q - s
	}

	return coord.New(int32(q), int32(r))
}

func (c *cameraImpl) Matrix() mgl32.Mat4 {
	aspect := float32(1)
	if c.height > 0 {
		aspect = float32(c.width) / float32(c.height)
	}

	projection := mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 100)
	view := mgl32.LookAtV(
		mgl32.Vec3{c.pos.X(), c.pos.Y(), c.zoom},
		mgl32.Vec3{c.pos.X(), c.pos.Y(), 0},
		mgl32.Vec3{0, 1, 0},
	)
	return projection.Mul4(view)
}

// CullingBounds derives the visible hex radius from the zoom height and
// viewport aspect, padded by one tile so edge tiles never pop.
func (c *cameraImpl) CullingBounds() coord.TileBounds {
	aspect := float32(1)
	if c.height > 0 {
		aspect = float32(c.width) / float32(c.height)
	}

	// Half-extent of the visible world at z=0 for a 45° vertical fov.
	halfHeight := c.zoom * float32(math.Tan(float64(mgl32.DegToRad(45))/2))
	halfWidth := halfHeight * aspect

	radius := coord.TileUnit(math.Ceil(float64(max(halfWidth, halfHeight))/coord.HexSize)) + 1
	return coord.NewTileBounds(c.PointingAt(), radius)
}
