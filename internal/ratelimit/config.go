package ratelimit

import "time"

// Limit bounds request volume for one action type. Zero values mean no
// limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// PrincipalLimits maps action types (or "*") to their limits for one
// principal.
type PrincipalLimits map[string]*Limit

// HasLimits returns true if any action type has a configured limit.
func (p PrincipalLimits) HasLimits() bool {
	for _, l := range p {
		if l != nil && l.MaxRequests > 0 && l.Window > 0 {
			return true
		}
	}
	return false
}

// Config maps principal IDs (or "*") to their per-action limits.
type Config map[string]PrincipalLimits
