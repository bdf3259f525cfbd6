package render

// Point is a canvas coordinate
type Point struct {
	X, Y float64
}

// Bezier is one cubic segment ending at To; it starts where the previous
// segment ended
type Bezier struct {
	C1, C2, To Point
}

// CardinalSpline converts a polyline into cubic Bézier segments that pass
// through every point. tension scales the tangents: 0 gives straight lines,
// 0.5 a Catmull-Rom curve. End tangents reuse the end points.
func CardinalSpline(points []Point, tension float64) []Bezier {
	if len(points) < 2 {
		return nil
	}

	segments := make([]Bezier, 0, len(points)-1)
	last := len(points) - 1
	for i := 0; i < last; i++ {
		p0 := points[max(i-1, 0)]
		p1 := points[i]
		p2 := points[i+1]
		p3 := points[min(i+2, last)]

		segments = append(segments, Bezier{
			C1: Point{
				X: p1.X + (p2.X-p0.X)*tension/3,
				Y: p1.Y + (p2.Y-p0.Y)*tension/3,
			},
			C2: Point{
				X: p2.X - (p3.X-p1.X)*tension/3,
				Y: p2.Y - (p3.Y-p1.Y)*tension/3,
			},
			To: p2,
		})
	}
	return segments
}
