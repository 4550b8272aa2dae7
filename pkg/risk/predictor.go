package risk

import (
	"context"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/sirupsen/logrus"
)

// Band is the risk tier of an assessment.
type Band string

const (
	BandNone   Band = "none"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// Band thresholds and escalation deadline.
const (
	HighThreshold      = 0.7
	MediumThreshold    = 0.4
	EscalationMaxDelay = 2 * time.Hour
	DefaultCooldown    = 24 * time.Hour
	maxCategoryHints   = 3
)

// BandFor classifies a score. The high band is exclusive of 0.7, the medium
// band inclusive of both 0.4 and 0.7.
func BandFor(score float64) Band {
	switch {
	case score > HighThreshold:
		return BandHigh
	case score >= MediumThreshold:
		return BandMedium
	default:
		return BandNone
	}
}

// Assessment is the predictor's output for one user.
type Assessment struct {
	UserID     string                  `json:"userId"`
	Score      float64                 `json:"score"`
	Band       Band                    `json:"band"`
	Factors    []RankedFactor          `json:"factors"`
	Categories []intervention.Category `json:"categories"`
	Features   Features                `json:"features"`
}

// ResponseRateSource returns a user's historical intervention response rate.
// ok is false when the user has no outcome history.
type ResponseRateSource interface {
	ResponseRate(ctx context.Context, userID string) (rate float64, ok bool, err error)
}

// Predictor scores abandonment risk.
type Predictor struct {
	scorer   Scorer
	rates    ResponseRateSource
	cooldown time.Duration
}

// NewPredictor creates a predictor. A nil scorer selects HeuristicScorer.
func NewPredictor(scorer Scorer, rates ResponseRateSource, cooldown time.Duration) *Predictor {
	if scorer == nil {
		scorer = HeuristicScorer{}
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Predictor{scorer: scorer, rates: rates, cooldown: cooldown}
}

// Assess scores a feature vector. It has no side effects.
func (p *Predictor) Assess(userID string, f Features) Assessment {
	score := clamp(p.scorer.Score(f), 0, 1)
	a := Assessment{
		UserID:   userID,
		Score:    score,
		Band:     BandFor(score),
		Features: f,
	}

	if c, ok := p.scorer.(Contributor); ok {
		a.Factors = rankFactors(c.Contributions(f))
	}
	a.Categories = recommend(a.Band, a.Factors)
	return a
}

// Predict assesses a profile and returns a risk-driven candidate when the
// score falls in the medium or high band. Insufficient-data profiles never
// produce a candidate.
func (p *Predictor) Predict(
	ctx context.Context,
	profile *behavior.Profile,
	events activity.Events,
	window activity.Window,
	now time.Time,
) (*Assessment, *intervention.Candidate) {
	if profile == nil || profile.InsufficientData {
		return nil, nil
	}

	rate := DefaultInterventionResponseRate
	hasHistory := false
	if p.rates != nil {
		r, ok, err := p.rates.ResponseRate(ctx, profile.UserID)
		if err != nil {
			logrus.Warnf("failed to load response rate for user %s, using default: %v", profile.UserID, err)
		} else if ok {
			rate = r
			hasHistory = true
		}
	}

	a := p.Assess(profile.UserID, ExtractFeatures(profile, events, window, rate, hasHistory))
	return &a, p.candidateFor(a, profile, now)
}

func (p *Predictor) candidateFor(a Assessment, profile *behavior.Profile, now time.Time) *intervention.Candidate {
	var (
		priority intervention.Priority
		category intervention.Category
		maxDelay time.Duration
	)
	switch a.Band {
	case BandHigh:
		priority = intervention.PriorityHigh
		category = intervention.CategoryHumanEscalation
		maxDelay = EscalationMaxDelay
	case BandMedium:
		priority = intervention.PriorityMedium
		category = intervention.CategoryEngagementBoost
	default:
		return nil
	}

	factors := make([]string, len(a.Factors))
	for i, f := range a.Factors {
		factors[i] = f.Name
	}

	scores := make(map[string]float64, len(profile.SubScores))
	for k, v := range profile.SubScores {
		scores[k] = v
	}

	return &intervention.Candidate{
		UserID:      a.UserID,
		TriggerType: intervention.TriggerTypeRiskDriven,
		Priority:    priority,
		Urgency:     intervention.UrgencyForPriority(priority),
		Confidence:  a.Score,
		Category:    category,
		Cooldown:    p.cooldown,
		MaxDelay:    maxDelay,
		DetectedAt:  now,
		Context: intervention.Context{
			RiskScore:     a.Score,
			RiskFactors:   factors,
			ProfileScores: scores,
			ProfileScore:  profile.Overall,
		},
	}
}

// recommend lists the band's category followed by categories addressing the
// top factors.
func recommend(band Band, factors []RankedFactor) []intervention.Category {
	var out []intervention.Category
	seen := make(map[intervention.Category]bool)
	add := func(c intervention.Category) {
		if c != "" && !seen[c] && len(out) < maxCategoryHints {
			seen[c] = true
			out = append(out, c)
		}
	}

	switch band {
	case BandHigh:
		add(intervention.CategoryHumanEscalation)
	case BandMedium:
		add(intervention.CategoryEngagementBoost)
	default:
		return nil
	}
	for _, f := range factors {
		add(factorCategories[f.Name])
	}
	return out
}
