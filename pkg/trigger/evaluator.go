package trigger

import (
	"context"
	"sort"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/sirupsen/logrus"
)

// Evaluator matches profiles against the registered trigger definitions.
type Evaluator struct {
	registry *Registry
	location *time.Location
}

// NewEvaluator creates an evaluator. loc is used for calendar-day conditions.
func NewEvaluator(registry *Registry, loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{
		registry: registry,
		location: loc,
	}
}

// Evaluate returns every fired candidate ordered by priority, then confidence.
// Triggers in cooldown or with a pending intervention are skipped. An
// insufficient-data profile never fires.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	profile *behavior.Profile,
	events activity.Events,
	window activity.Window,
	set *intervention.UserSet,
	now time.Time,
) []*intervention.Candidate {
	if profile == nil || profile.InsufficientData {
		return nil
	}
	if set == nil {
		set = intervention.NewUserSet(profile.UserID)
	}

	in := Input{
		Profile:  profile,
		Events:   events,
		Window:   window,
		Now:      now,
		Location: e.location,
	}

	var candidates []*intervention.Candidate
	for _, def := range e.registry.GetAll() {
		if set.InCooldown(def.Type, def.Cooldown, now) {
			logrus.Debugf("trigger %s in cooldown for user %s", def.Type, profile.UserID)
			continue
		}
		if set.PendingOfType(def.Type) != nil {
			logrus.Debugf("trigger %s already pending for user %s", def.Type, profile.UserID)
			continue
		}

		candidate, err := e.evaluateDefinition(def, in)
		if err != nil {
			logrus.Errorf("trigger %s evaluation failed for user %s: %v", def.Type, profile.UserID, err)
			continue
		}
		if candidate != nil {
			logrus.Infof("trigger %s fired for user %s (confidence %.2f, conditions %v)",
				def.Type, profile.UserID, candidate.Confidence, candidate.Context.FiredConditions)
			candidates = append(candidates, candidate)
		}
	}

	SortCandidates(candidates)
	return candidates
}

func (e *Evaluator) evaluateDefinition(def *Definition, in Input) (*intervention.Candidate, error) {
	fired := make([]string, 0, len(def.Conditions))
	metrics := make(map[string]float64, len(def.Conditions))
	totalMargin := 0.0

	for _, cond := range def.Conditions {
		res, err := Evaluate(cond, in)
		if err != nil {
			return nil, err
		}
		if !res.Matched {
			return nil, nil
		}
		fired = append(fired, cond.Name)
		metrics[cond.Name] = res.Measured
		totalMargin += res.Margin
	}

	return &intervention.Candidate{
		UserID:      in.Profile.UserID,
		TriggerType: def.Type,
		Priority:    def.Priority,
		Urgency:     def.Urgency,
		Confidence:  0.5 + 0.5*totalMargin/float64(len(def.Conditions)),
		Category:    def.Category,
		Cooldown:    def.Cooldown,
		MaxDelay:    def.MaxDelay,
		DetectedAt:  in.Now,
		Context: intervention.Context{
			FiredConditions: fired,
			Metrics:         metrics,
			ProfileScores:   copyScores(in.Profile.SubScores),
			ProfileScore:    in.Profile.Overall,
			BestHours:       def.BestHours,
		},
	}, nil
}

// SortCandidates orders candidates by priority, then confidence, then type.
func SortCandidates(candidates []*intervention.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.TriggerType < b.TriggerType
	})
}

func copyScores(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
