// Package arrow turns a dependency link plus the two tasks' on-screen
// rectangles into a renderable curve and arrowhead. Coordinates are pure
// derived geometry, recomputed per render pass and never persisted.
package arrow

import (
	"math"

	"github.com/planwise/schedcore/internal/model"
)

const (
	// controlOffsetRatio places the Bézier control points 25% of the
	// horizontal span away from each endpoint, giving a smooth S-curve
	// instead of a straight diagonal.
	controlOffsetRatio = 0.25
	// arrowheadLength is the wing length in pixel-equivalent units.
	arrowheadLength = 8.0
	// arrowheadAngle is the wing spread off the terminal tangent.
	arrowheadAngle = math.Pi / 6 // 30°
)

// Rect is a task bar's screen rectangle in pixel-equivalent units
// (left/right derived from day-width × calendar offset).
type Rect struct {
	Left   float64
	Right  float64
	Top    float64
	Height float64
}

func (r Rect) midY() float64 {
	return r.Top + r.Height/2
}

type Point struct {
	X float64
	Y float64
}

type Segment struct {
	From Point
	To   Point
}

// Curve is a cubic Bézier from Start to End through two control points.
type Curve struct {
	Start Point
	C1    Point
	C2    Point
	End   Point
}

// Coordinates is everything the presentation layer needs to draw one
// dependency arrow.
type Coordinates struct {
	Start     Point
	End       Point
	Curve     Curve
	Arrowhead [2]Segment
}

// Build computes the arrow for a link. The start point sits on the
// predecessor edge and the end point on the successor edge appropriate to
// the link kind: a finish-to-start arrow exits the predecessor's right
// edge and enters the successor's left edge.
func Build(kind model.LinkKind, predRect, succRect Rect) Coordinates {
	var start, end Point
	switch kind {
	case model.LinkStartToStart:
		start = Point{X: predRect.Left, Y: predRect.midY()}
		end = Point{X: succRect.Left, Y: succRect.midY()}
	case model.LinkFinishToFinish:
		start = Point{X: predRect.Right, Y: predRect.midY()}
		end = Point{X: succRect.Right, Y: succRect.midY()}
	case model.LinkStartToFinish:
		start = Point{X: predRect.Left, Y: predRect.midY()}
		end = Point{X: succRect.Right, Y: succRect.midY()}
	default: // finish_to_start
		start = Point{X: predRect.Right, Y: predRect.midY()}
		end = Point{X: succRect.Left, Y: succRect.midY()}
	}

	dx := (end.X - start.X) * controlOffsetRatio
	curve := Curve{
		Start: start,
		C1:    Point{X: start.X + dx, Y: start.Y},
		C2:    Point{X: end.X - dx, Y: end.Y},
		End:   end,
	}

	return Coordinates{
		Start:     start,
		End:       end,
		Curve:     curve,
		Arrowhead: arrowhead(curve),
	}
}

// arrowhead builds two short wings at ±30° from the curve's terminal
// tangent angle.
func arrowhead(c Curve) [2]Segment {
	tx := c.End.X - c.C2.X
	ty := c.End.Y - c.C2.Y
	if tx == 0 && ty == 0 {
		tx = c.End.X - c.Start.X
		ty = c.End.Y - c.Start.Y
	}
	angle := math.Atan2(ty, tx)

	var wings [2]Segment
	for i, spread := range [2]float64{arrowheadAngle, -arrowheadAngle} {
		wingAngle := angle + math.Pi + spread
		wings[i] = Segment{
			From: Point{
				X: c.End.X + arrowheadLength*math.Cos(wingAngle),
				Y: c.End.Y + arrowheadLength*math.Sin(wingAngle),
			},
			To: c.End,
		}
	}
	return wings
}
