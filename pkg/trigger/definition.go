// Package trigger matches engagement profiles against the trigger catalog and
// produces candidate interventions.
package trigger

import (
	"fmt"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
)

// Definition is a compiled, immutable catalog entry.
type Definition struct {
	Type       string
	Conditions []Condition
	Priority   intervention.Priority
	Urgency    intervention.Urgency
	Cooldown   time.Duration
	Category   intervention.Category
	BestHours  []int
	MaxDelay   time.Duration
}

// DefinitionConfig is the YAML form of a catalog entry.
type DefinitionConfig struct {
	Type       string      `yaml:"type"`
	Enabled    *bool       `yaml:"enabled,omitempty"`
	Priority   string      `yaml:"priority"`
	Urgency    string      `yaml:"urgency,omitempty"`
	Cooldown   string      `yaml:"cooldown"`
	Category   string      `yaml:"category"`
	BestHours  []int       `yaml:"best_hours,omitempty"`
	MaxDelay   string      `yaml:"max_delay,omitempty"`
	Conditions []Condition `yaml:"conditions"`
}

// IsEnabled reports whether the entry is active. Entries are enabled unless
// explicitly disabled.
func (c DefinitionConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Compile validates the entry and converts it into a Definition. All
// failures wrap intervention.ErrConfiguration.
func (c DefinitionConfig) Compile() (*Definition, error) {
	if c.Type == "" {
		return nil, fmt.Errorf("%w: trigger with empty type", intervention.ErrConfiguration)
	}
	if c.Type == intervention.TriggerTypeRiskDriven {
		return nil, fmt.Errorf("%w: trigger type %s is reserved", intervention.ErrConfiguration, c.Type)
	}
	if len(c.Conditions) == 0 {
		return nil, fmt.Errorf("%w: trigger %s has no conditions", intervention.ErrConfiguration, c.Type)
	}

	def := &Definition{
		Type:       c.Type,
		Conditions: append([]Condition(nil), c.Conditions...),
		BestHours:  append([]int(nil), c.BestHours...),
	}

	var err error
	if def.Priority, err = intervention.ParsePriority(c.Priority); err != nil {
		return nil, fmt.Errorf("%w: trigger %s: %v", intervention.ErrConfiguration, c.Type, err)
	}

	def.Urgency = intervention.UrgencyForPriority(def.Priority)
	if c.Urgency != "" {
		if def.Urgency, err = intervention.ParseUrgency(c.Urgency); err != nil {
			return nil, fmt.Errorf("%w: trigger %s: %v", intervention.ErrConfiguration, c.Type, err)
		}
	}

	if def.Cooldown, err = time.ParseDuration(c.Cooldown); err != nil || def.Cooldown < 0 {
		return nil, fmt.Errorf("%w: trigger %s has invalid cooldown %q", intervention.ErrConfiguration, c.Type, c.Cooldown)
	}

	if c.MaxDelay != "" {
		if def.MaxDelay, err = time.ParseDuration(c.MaxDelay); err != nil || def.MaxDelay <= 0 {
			return nil, fmt.Errorf("%w: trigger %s has invalid max_delay %q", intervention.ErrConfiguration, c.Type, c.MaxDelay)
		}
	}

	def.Category = intervention.Category(c.Category)
	switch def.Category {
	case intervention.CategoryCheckIn, intervention.CategoryCelebration, intervention.CategoryReEngagement,
		intervention.CategoryEngagementBoost, intervention.CategoryHumanEscalation:
	default:
		return nil, fmt.Errorf("%w: trigger %s has unknown category %q", intervention.ErrConfiguration, c.Type, c.Category)
	}

	for _, h := range c.BestHours {
		if h < 0 || h > 23 {
			return nil, fmt.Errorf("%w: trigger %s has best hour %d outside 0-23", intervention.ErrConfiguration, c.Type, h)
		}
	}

	seen := make(map[string]bool, len(c.Conditions))
	for _, cond := range c.Conditions {
		if err := cond.Validate(); err != nil {
			return nil, fmt.Errorf("trigger %s: %w", c.Type, err)
		}
		if seen[cond.Name] {
			return nil, fmt.Errorf("%w: trigger %s has duplicate condition %s", intervention.ErrConfiguration, c.Type, cond.Name)
		}
		seen[cond.Name] = true
	}

	return def, nil
}
