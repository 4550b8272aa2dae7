package effectiveness

import (
	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
)

// DefaultLearningRate is the step size for a fully effective intervention.
const DefaultLearningRate = 0.05

// Weight bounds after an adjustment.
const (
	MinWeight = 0.02
	MaxWeight = 0.5
)

// AdjustWeights moves the weights a step toward the sub-scores that improved
// after an intervention. The step is rate scaled by effectiveness. The result
// is bounded per weight and sums to 1. Without any improvement the weights
// are returned unchanged.
func AdjustWeights(w behavior.Weights, deltas map[string]float64, effectiveness, rate float64) behavior.Weights {
	improved := 0.0
	for _, name := range behavior.SubScoreNames {
		if d := deltas[name]; d > 0 {
			improved += d
		}
	}
	if improved <= 0 || effectiveness <= 0 || rate <= 0 {
		return w
	}

	step := rate * effectiveness
	if step > 1 {
		step = 1
	}
	current := w.Normalized()
	out := make(behavior.Weights, len(behavior.SubScoreNames))
	for _, name := range behavior.SubScoreNames {
		target := 0.0
		if d := deltas[name]; d > 0 {
			target = d / improved
		}
		out[name] = (1-step)*current[name] + step*target
	}
	return boundedNormalize(out)
}

// boundedNormalize scales w to sum to 1 with every weight in
// [MinWeight, MaxWeight]. Weights that hit a bound are pinned and the rest
// rescaled until none moves out of range.
func boundedNormalize(w behavior.Weights) behavior.Weights {
	pinned := make(map[string]float64, len(behavior.SubScoreNames))
	out := make(behavior.Weights, len(behavior.SubScoreNames))

	for range behavior.SubScoreNames {
		pinnedSum, freeSum, free := 0.0, 0.0, 0
		for _, name := range behavior.SubScoreNames {
			if v, ok := pinned[name]; ok {
				pinnedSum += v
				continue
			}
			freeSum += w[name]
			free++
		}
		if free == 0 {
			break
		}

		remaining := 1 - pinnedSum
		changed := false
		for _, name := range behavior.SubScoreNames {
			if v, ok := pinned[name]; ok {
				out[name] = v
				continue
			}
			v := remaining / float64(free)
			if freeSum > 0 {
				v = w[name] * remaining / freeSum
			}
			switch {
			case v < MinWeight:
				pinned[name] = MinWeight
				changed = true
			case v > MaxWeight:
				pinned[name] = MaxWeight
				changed = true
			}
			out[name] = v
		}
		if !changed {
			break
		}
	}
	for name, v := range pinned {
		out[name] = v
	}
	return out
}
