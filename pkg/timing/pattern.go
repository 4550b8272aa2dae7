// Package timing proposes delivery times for candidate interventions.
package timing

import "context"

// ResponsePattern counts interventions sent and answered per local hour.
type ResponsePattern struct {
	Sent      [24]int `json:"sent"`
	Responded [24]int `json:"responded"`
}

// Record adds one delivery outcome at hour.
func (p *ResponsePattern) Record(hour int, responded bool) {
	if hour < 0 || hour > 23 {
		return
	}
	p.Sent[hour]++
	if responded {
		p.Responded[hour]++
	}
}

// Rate is the Laplace-smoothed response rate at hour.
func (p *ResponsePattern) Rate(hour int) float64 {
	return float64(p.Responded[hour]+1) / float64(p.Sent[hour]+2)
}

// TotalSent returns the number of recorded deliveries.
func (p *ResponsePattern) TotalSent() int {
	total := 0
	for _, n := range p.Sent {
		total += n
	}
	return total
}

// PatternStore persists response patterns per user.
type PatternStore interface {
	Pattern(ctx context.Context, userID string) (*ResponsePattern, error)
	RecordResponse(ctx context.Context, userID string, hour int, responded bool) error
}
