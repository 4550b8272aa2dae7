package risk

import (
	"sort"

	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
)

// Factor names reported in assessments.
const (
	FactorLowEngagement      = "low_engagement"
	FactorMissedGoals        = "missed_goals"
	FactorInconsistentHabits = "inconsistent_habits"
	FactorSlowingResponses   = "slowing_responses"
	FactorNegativeSentiment  = "negative_sentiment"
	FactorIgnoredOutreach    = "ignored_outreach"
)

// Scorer maps features to a risk score in [0,1]. Implementations must be
// deterministic.
type Scorer interface {
	Score(f Features) float64
}

// Contributor is implemented by scorers that can explain their score.
type Contributor interface {
	Contributions(f Features) map[string]float64
}

// HeuristicWeights are the documented weights of the default scorer. Each
// factor is a risk signal in [0,1]; the weights sum to 1.
//
// Factors listed in Features.Missing score zero, so a user who only produces
// sessions and messages is scored on engagement and reply latency alone and
// tops out at 0.4, the bottom of the medium band. Plain inactivity is left to
// the catalog.
var HeuristicWeights = map[string]float64{
	FactorLowEngagement:      0.25, // 1 - overall engagement
	FactorMissedGoals:        0.15, // 1 - goal completion rate
	FactorInconsistentHabits: 0.15, // 1 - habit consistency
	FactorSlowingResponses:   0.15, // positive part of the latency trend
	FactorNegativeSentiment:  0.15, // (1 - sentiment) / 2
	FactorIgnoredOutreach:    0.15, // 1 - historical intervention response rate
}

// HeuristicScorer is a weighted sum of risk signals. Every signal is
// non-decreasing in its underlying risk, so the score is monotonic in each
// factor.
type HeuristicScorer struct{}

// Score implements Scorer.
func (h HeuristicScorer) Score(f Features) float64 {
	contrib := h.Contributions(f)
	score := 0.0
	for _, name := range factorOrder {
		score += contrib[name]
	}
	return clamp(score, 0, 1)
}

// Contributions returns each factor's weighted share of the score.
func (HeuristicScorer) Contributions(f Features) map[string]float64 {
	signals := map[string]float64{
		FactorLowEngagement:      1 - clamp(f.Engagement, 0, 1),
		FactorMissedGoals:        1 - clamp(f.GoalCompletion, 0, 1),
		FactorInconsistentHabits: 1 - clamp(f.HabitConsistency, 0, 1),
		FactorSlowingResponses:   clamp(f.ResponseTimeTrend, 0, 1),
		FactorNegativeSentiment:  (1 - clamp(f.Sentiment, -1, 1)) / 2,
		FactorIgnoredOutreach:    1 - clamp(f.InterventionResponseRate, 0, 1),
	}

	out := make(map[string]float64, len(signals))
	for name, s := range signals {
		if f.Missing[name] {
			s = 0
		}
		out[name] = HeuristicWeights[name] * s
	}
	return out
}

// factorOrder fixes summation order so scores are bit-identical across runs.
var factorOrder = []string{
	FactorLowEngagement,
	FactorMissedGoals,
	FactorInconsistentHabits,
	FactorSlowingResponses,
	FactorNegativeSentiment,
	FactorIgnoredOutreach,
}

// factorCategories maps a dominant factor to the intervention category that
// addresses it.
var factorCategories = map[string]intervention.Category{
	FactorLowEngagement:      intervention.CategoryReEngagement,
	FactorMissedGoals:        intervention.CategoryCheckIn,
	FactorInconsistentHabits: intervention.CategoryCheckIn,
	FactorSlowingResponses:   intervention.CategoryReEngagement,
	FactorNegativeSentiment:  intervention.CategoryCheckIn,
	FactorIgnoredOutreach:    intervention.CategoryEngagementBoost,
}

// RankedFactor is one contributing factor of an assessment.
type RankedFactor struct {
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
}

func rankFactors(contrib map[string]float64) []RankedFactor {
	ranked := make([]RankedFactor, 0, len(contrib))
	for _, name := range factorOrder {
		if c, ok := contrib[name]; ok && c > 0 {
			ranked = append(ranked, RankedFactor{Name: name, Contribution: c})
		}
	}
	for name, c := range contrib {
		if _, known := HeuristicWeights[name]; !known && c > 0 {
			ranked = append(ranked, RankedFactor{Name: name, Contribution: c})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Contribution != ranked[j].Contribution {
			return ranked[i].Contribution > ranked[j].Contribution
		}
		return ranked[i].Name < ranked[j].Name
	})
	return ranked
}
