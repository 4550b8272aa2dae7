package trigger

import (
	"fmt"
	"math"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
)

// ConditionKind is the closed set of condition variants.
type ConditionKind string

const (
	// KindThreshold compares a profile metric or sub-score against a value.
	KindThreshold ConditionKind = "threshold"
	// KindDurationSince compares the hours since the last event of a kind.
	KindDurationSince ConditionKind = "duration_since"
	// KindConsecutiveCount compares the number of consecutive days, ending
	// today, with (or without) an event of a kind.
	KindConsecutiveCount ConditionKind = "consecutive_count"
)

// Operator is a comparison operator.
type Operator string

const (
	OpGreaterThan    Operator = "gt"
	OpGreaterOrEqual Operator = "gte"
	OpLessThan       Operator = "lt"
	OpLessOrEqual    Operator = "lte"
	OpEqual          Operator = "eq"
)

const eqTolerance = 1e-9

// Compare applies the operator to measured and threshold.
func (op Operator) Compare(measured, threshold float64) bool {
	switch op {
	case OpGreaterThan:
		return measured > threshold
	case OpGreaterOrEqual:
		return measured >= threshold
	case OpLessThan:
		return measured < threshold
	case OpLessOrEqual:
		return measured <= threshold
	case OpEqual:
		return math.Abs(measured-threshold) <= eqTolerance
	default:
		return false
	}
}

func (op Operator) valid() bool {
	switch op {
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual, OpEqual:
		return true
	}
	return false
}

// Condition is one named predicate of a trigger definition.
type Condition struct {
	Name   string        `yaml:"name"`
	Kind   ConditionKind `yaml:"kind"`
	Op     Operator      `yaml:"op"`
	Value  float64       `yaml:"value"`
	Metric string        `yaml:"metric,omitempty"`
	Event  string        `yaml:"event,omitempty"`
	// Absent flips consecutive_count to count days without the event.
	Absent bool `yaml:"absent,omitempty"`
}

// Validate checks the fields required by the condition's kind.
func (c Condition) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: condition with empty name", intervention.ErrConfiguration)
	}
	if !c.Op.valid() {
		return fmt.Errorf("%w: condition %s has unknown operator %q", intervention.ErrConfiguration, c.Name, c.Op)
	}

	switch c.Kind {
	case KindThreshold:
		if c.Metric == "" {
			return fmt.Errorf("%w: threshold condition %s has no metric", intervention.ErrConfiguration, c.Name)
		}
	case KindDurationSince, KindConsecutiveCount:
		if !activity.Kind(c.Event).Valid() {
			return fmt.Errorf("%w: condition %s has unknown event kind %q", intervention.ErrConfiguration, c.Name, c.Event)
		}
		if c.Value < 0 {
			return fmt.Errorf("%w: condition %s has negative value", intervention.ErrConfiguration, c.Name)
		}
	default:
		return fmt.Errorf("%w: condition %s has unknown kind %q", intervention.ErrConfiguration, c.Name, c.Kind)
	}
	return nil
}

// Input is everything a condition may observe for one user in one cycle.
type Input struct {
	Profile  *behavior.Profile
	Events   activity.Events
	Window   activity.Window
	Now      time.Time
	Location *time.Location
}

// Result is the outcome of evaluating one condition.
type Result struct {
	Matched  bool
	Measured float64
	// Margin is how far the threshold was surpassed, normalized to [0,1].
	Margin float64
}

// Evaluate is the single dispatch point for all condition kinds.
func Evaluate(c Condition, in Input) (Result, error) {
	var measured float64

	switch c.Kind {
	case KindThreshold:
		v, ok := in.Profile.Metric(c.Metric)
		if !ok {
			// A metric the profile does not carry never matches.
			return Result{}, nil
		}
		measured = v
	case KindDurationSince:
		measured = hoursSince(in, activity.Kind(c.Event))
	case KindConsecutiveCount:
		measured = float64(consecutiveDays(in, activity.Kind(c.Event), c.Absent))
	default:
		return Result{}, fmt.Errorf("%w: unknown condition kind %q", intervention.ErrConfiguration, c.Kind)
	}

	if !c.Op.Compare(measured, c.Value) {
		return Result{Measured: measured}, nil
	}
	return Result{Matched: true, Measured: measured, Margin: margin(c.Op, measured, c.Value)}, nil
}

// hoursSince returns the hours since the most recent event of kind. With no
// such event in the window the whole window length is reported.
func hoursSince(in Input, kind activity.Kind) float64 {
	last, ok := in.Events.Last(kind)
	if !ok {
		since := in.Now.Sub(in.Window.Start)
		if since < 0 {
			since = 0
		}
		return since.Hours()
	}
	since := in.Now.Sub(last.OccurredAt)
	if since < 0 {
		return 0
	}
	return since.Hours()
}

// consecutiveDays counts calendar days, walking back from today, that have
// (or lack, when absent) an event of kind. A present-streak does not break on
// a still-running today.
func consecutiveDays(in Input, kind activity.Kind, absent bool) int {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	days := make(map[string]bool)
	for _, e := range in.Events.OfKind(kind) {
		days[e.OccurredAt.In(loc).Format("2006-01-02")] = true
	}

	now := in.Now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	maxDays := int(in.Window.Days())

	count := 0
	for i := 0; i < maxDays; i++ {
		day := today.AddDate(0, 0, -i)
		if day.Add(24 * time.Hour).Before(in.Window.Start) {
			break
		}
		has := days[day.Format("2006-01-02")]
		if has != absent {
			count++
			continue
		}
		if i == 0 && !absent {
			continue
		}
		break
	}
	return count
}

// margin normalizes the distance past the threshold into [0,1].
func margin(op Operator, measured, threshold float64) float64 {
	if op == OpEqual {
		return 1
	}
	scale := math.Abs(threshold)
	if scale == 0 {
		scale = 1
	}
	return math.Min(1, math.Abs(measured-threshold)/scale)
}
