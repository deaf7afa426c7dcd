// Package playfield maps logical playfield positions to window pixels.
//
// Recorded positions live in a fixed 512x384 unit rectangle. The target draws
// that rectangle scaled to the window height with a 4:3 aspect, centered
// horizontally and pushed down by a fixed HUD offset.
package playfield

import "fmt"

// Logical playfield size.
const (
	Width  float32 = 512
	Height float32 = 384
)

// referenceHeight is the window height at which one unit is one pixel.
const referenceHeight float32 = 480

// Vec2 is a 2D position.
type Vec2 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Point truncates the position toward zero to integer pixels.
func (v Vec2) Point() (int, int) {
	return int(v.X), int(v.Y)
}

func (v Vec2) String() string {
	return fmt.Sprintf("(%g, %g)", v.X, v.Y)
}

// Geometry is the client size of the target window in pixels.
type Geometry struct {
	Width  float32
	Height float32
}

func (g Geometry) String() string {
	return fmt.Sprintf("%gx%g", g.Width, g.Height)
}

// ToScreen converts a playfield position to window coordinates for g.
// All arithmetic is float32 so placement matches the target exactly.
func ToScreen(p Vec2, g Geometry) Vec2 {
	ratio := g.Height / referenceHeight
	scaledW := Width * ratio
	scaledH := Height * ratio

	originX := (g.Width - scaledW) * 0.5
	originY := (g.Height-scaledH)/4*3 + (-16 * ratio)

	return Vec2{
		X: scaledW*(p.X/Width) + originX,
		Y: scaledH*(p.Y/Height) + originY,
	}
}
