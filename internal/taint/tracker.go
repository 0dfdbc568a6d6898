package taint

import (
	"time"

	"github.com/adaptsec/warden/internal/model"
)

// DefaultMaxDepth bounds propagation hops before a label is forced to
// quarantined. Configurable; this is only the fallback.
const DefaultMaxDepth = 16

// Config holds taint tracking parameters.
type Config struct {
	// MaxDepth is the propagation hop limit. Exceeding it forces the
	// label to quarantined rather than surfacing an error.
	MaxDepth int `yaml:"max_depth"`
	// TrustedOrigins lists principal IDs whose data starts trusted.
	// Every other origin starts untrusted.
	TrustedOrigins []string `yaml:"trusted_origins"`
}

// DefaultConfig returns a Config with the fallback depth limit and no
// trusted origins.
func DefaultConfig() Config {
	return Config{MaxDepth: DefaultMaxDepth}
}

// SanitizeRecord documents one explicit taint reduction. Sanitization is
// never silent: every call produces a record.
type SanitizeRecord struct {
	Timestamp string           `json:"ts"`
	Origin    string           `json:"origin"`
	From      model.TaintLevel `json:"from"`
	To        model.TaintLevel `json:"to"`
	Removed   int              `json:"removed"`
}

// Tracker classifies and propagates taint labels across an action's
// inputs and outputs. Taint levels form a total order
// trusted < untrusted < quarantined; combination always takes the
// maximum, so taint can never be lost by omission.
type Tracker struct {
	cfg     Config
	trusted map[string]bool
}

// NewTracker creates a Tracker from the given config.
func NewTracker(cfg Config) *Tracker {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	trusted := make(map[string]bool, len(cfg.TrustedOrigins))
	for _, id := range cfg.TrustedOrigins {
		trusted[id] = true
	}
	return &Tracker{cfg: cfg, trusted: trusted}
}

// Classify assigns an initial label to raw data. Trusted only when the
// declared origin is explicitly configured as trusted.
func (t *Tracker) Classify(origin model.Principal) model.TaintLabel {
	level := model.TaintUntrusted
	if t.trusted[origin.ID] {
		level = model.TaintTrusted
	}
	return model.TaintLabel{Origin: origin.ID, Level: level, Depth: 0}
}

// Propagate combines input labels into the label of derived data: the
// maximum input level, one hop deeper than the deepest input. Inputs
// without a prior label are classified from the origin first. Exceeding
// the depth limit forces quarantined (fail-safe, handled here, never
// surfaced as an error).
func (t *Tracker) Propagate(labels []model.TaintLabel, origin model.Principal) model.TaintLabel {
	out := t.Classify(origin)
	maxDepth := 0
	for _, l := range labels {
		out.Level = model.MaxTaint(out.Level, l.Level)
		if l.Depth > maxDepth {
			maxDepth = l.Depth
		}
	}
	out.Depth = maxDepth + 1
	if out.Depth > t.cfg.MaxDepth {
		out.Level = model.TaintQuarantined
	}
	return out
}

// Scrubber removes offending content from a payload, returning the
// cleaned data and how many segments were removed.
type Scrubber func(data string) (string, int)

// Sanitize is the only operation permitted to reduce a taint level. It
// applies the scrubber, lowers the level by exactly one step, and emits
// a record of the transformation. A nil scrubber leaves data unchanged
// but still lowers and records.
func (t *Tracker) Sanitize(data string, label model.TaintLabel, scrub Scrubber) (string, model.TaintLabel, SanitizeRecord) {
	removed := 0
	if scrub != nil {
		data, removed = scrub(data)
	}

	lowered := label
	switch label.Level {
	case model.TaintQuarantined:
		lowered.Level = model.TaintUntrusted
	case model.TaintUntrusted:
		lowered.Level = model.TaintTrusted
	}

	rec := SanitizeRecord{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Origin:    label.Origin,
		From:      label.Level,
		To:        lowered.Level,
		Removed:   removed,
	}
	return data, lowered, rec
}
