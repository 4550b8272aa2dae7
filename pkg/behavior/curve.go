package behavior

// Point is a calibration point of a piecewise-linear curve.
type Point struct {
	X float64
	Y float64
}

// Curve is a calibrated lookup table. X values must be increasing. Inputs
// outside the table are clamped to the first or last point.
type Curve []Point

// At interpolates the curve at x.
func (c Curve) At(x float64) float64 {
	if len(c) == 0 {
		return 0
	}
	if x <= c[0].X {
		return c[0].Y
	}
	for i := 1; i < len(c); i++ {
		if x <= c[i].X {
			lo, hi := c[i-1], c[i]
			frac := (x - lo.X) / (hi.X - lo.X)
			return lo.Y + frac*(hi.Y-lo.Y)
		}
	}
	return c[len(c)-1].Y
}

// Calibration curves. Frequency peaks at 2-5 messages/day and decays gently
// above that so help-seeking bursts are not punished.
var (
	frequencyCurve = Curve{
		{0, 0}, {0.5, 0.3}, {1, 0.6}, {2, 1}, {5, 1}, {8, 0.85}, {12, 0.7}, {20, 0.5}, {40, 0.3},
	}
	// minutes until reply
	latencyCurve = Curve{
		{0, 1}, {5, 1}, {30, 0.8}, {120, 0.5}, {480, 0.2}, {1440, 0},
	}
	// average session minutes
	durationCurve = Curve{
		{0, 0}, {2, 0.3}, {5, 0.7}, {10, 1}, {30, 1}, {60, 0.8}, {120, 0.6},
	}
	// content interactions per day
	contentCurve = Curve{
		{0, 0}, {1, 0.5}, {3, 1}, {10, 1}, {20, 0.8},
	}
	// share of conversations the user started
	initiationCurve = Curve{
		{0, 0}, {0.3, 0.7}, {0.5, 1}, {1, 1},
	}
)
