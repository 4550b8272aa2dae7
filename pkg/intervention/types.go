package intervention

import (
	"fmt"
	"time"
)

// TriggerTypeRiskDriven is the trigger type used for candidates produced by the
// abandonment predictor rather than by a catalog trigger.
const TriggerTypeRiskDriven = "risk_driven"

// Priority is the tier of a trigger or candidate. Higher values win.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
)

// String returns the YAML/JSON name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParsePriority converts a catalog string into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Urgency controls how soon after detection a message must be sent.
type Urgency int

const (
	UrgencyLow Urgency = iota + 1
	UrgencyMedium
	UrgencyHigh
)

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyMedium:
		return "medium"
	case UrgencyHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseUrgency converts a catalog string into an Urgency.
func ParseUrgency(s string) (Urgency, error) {
	switch s {
	case "low":
		return UrgencyLow, nil
	case "medium":
		return UrgencyMedium, nil
	case "high":
		return UrgencyHigh, nil
	default:
		return 0, fmt.Errorf("unknown urgency %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (u Urgency) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Urgency) UnmarshalText(text []byte) error {
	parsed, err := ParseUrgency(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// UrgencyForPriority is the default urgency class for a priority tier.
func UrgencyForPriority(p Priority) Urgency {
	switch p {
	case PriorityHigh:
		return UrgencyHigh
	case PriorityLow:
		return UrgencyLow
	default:
		return UrgencyMedium
	}
}

// Category is the recommended action category of an intervention.
type Category string

const (
	CategoryCheckIn         Category = "check_in"
	CategoryCelebration     Category = "celebration"
	CategoryReEngagement    Category = "re_engagement"
	CategoryEngagementBoost Category = "engagement_boost"
	CategoryHumanEscalation Category = "human_escalation"
)

// Status is the lifecycle state of a scheduled intervention.
type Status string

const (
	StatusPending         Status = "pending"
	StatusDelivered       Status = "delivered"
	StatusOutcomeRecorded Status = "outcome_recorded"
	StatusCancelled       Status = "cancelled"
	StatusSuperseded      Status = "superseded"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusOutcomeRecorded || s == StatusCancelled || s == StatusSuperseded
}

// Cancel reasons.
const (
	ReasonGenerationFailed = "generation_failed"
	ReasonDeliveryFailed   = "delivery_failed"
	ReasonUserUnsubscribed = "user_unsubscribed"
	ReasonCoachTakeover    = "coach_takeover"
	ReasonManual           = "manual"
)

// Context is the diagnostic payload carried from candidate to schedule.
type Context struct {
	FiredConditions []string           `json:"firedConditions,omitempty"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
	RiskFactors     []string           `json:"riskFactors,omitempty"`
	RiskScore       float64            `json:"riskScore,omitempty"`
	// ProfileScores is the sub-score snapshot at detection time, used as the
	// "before" side of the behavioral delta.
	ProfileScores map[string]float64 `json:"profileScores,omitempty"`
	ProfileScore  float64            `json:"profileScore"`
	BestHours     []int              `json:"bestHours,omitempty"`
}

// Candidate is a proposed, not yet committed, intervention for one user.
// It only lives within one evaluation cycle.
type Candidate struct {
	UserID      string        `json:"userId"`
	TriggerType string        `json:"triggerType"`
	Priority    Priority      `json:"priority"`
	Urgency     Urgency       `json:"urgency"`
	Confidence  float64       `json:"confidence"`
	Category    Category      `json:"category"`
	Cooldown    time.Duration `json:"cooldown"`
	// MaxDelay, when set, caps the delivery delay regardless of urgency.
	MaxDelay   time.Duration `json:"maxDelay,omitempty"`
	Context    Context       `json:"context"`
	DetectedAt time.Time     `json:"detectedAt"`
}

// Proposal pairs a candidate with the timing optimizer's suggestion.
type Proposal struct {
	Candidate  *Candidate
	ProposedAt time.Time
	Weight     float64
	Source     string
}

// Scheduled is the durable intervention record.
type Scheduled struct {
	ID           string        `json:"id"`
	UserID       string        `json:"userId"`
	TriggerType  string        `json:"triggerType"`
	Priority     Priority      `json:"priority"`
	Urgency      Urgency       `json:"urgency"`
	Category     Category      `json:"category"`
	Confidence   float64       `json:"confidence"`
	DeliverAt    time.Time     `json:"deliverAt"`
	Status       Status        `json:"status"`
	CancelReason string        `json:"cancelReason,omitempty"`
	SupersededBy string        `json:"supersededBy,omitempty"`
	ChannelHint  string        `json:"channelHint,omitempty"`
	Receipt      string        `json:"receipt,omitempty"`
	Cooldown     time.Duration `json:"cooldown"`
	Context      Context       `json:"context"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	DeliveredAt  time.Time     `json:"deliveredAt,omitempty"`
}

// Outcome is the effectiveness record attached to a delivered intervention.
type Outcome struct {
	InterventionID   string             `json:"interventionId"`
	UserID           string             `json:"userId"`
	TriggerType      string             `json:"triggerType"`
	Category         Category           `json:"category"`
	DeliveredAt      time.Time          `json:"deliveredAt"`
	ResponseReceived bool               `json:"responseReceived"`
	ResponseLatency  time.Duration      `json:"responseLatency"`
	EngagementDelta  float64            `json:"engagementDelta"`
	SubScoreDeltas   map[string]float64 `json:"subScoreDeltas,omitempty"`
	Effectiveness    float64            `json:"effectiveness"`
	RecordedAt       time.Time          `json:"recordedAt"`
}

// Ref addresses one intervention of one user.
type Ref struct {
	UserID string `json:"userId"`
	ID     string `json:"id"`
}

// OutcomeQuery filters the outcome feed. Zero fields do not filter.
type OutcomeQuery struct {
	UserID string
	Since  time.Time
	Limit  int
}
