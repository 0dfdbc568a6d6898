package firewall

import "regexp"

// Signature is one injection pattern with a confidence weight in (0,1].
type Signature struct {
	Name       string  `yaml:"name"`
	Pattern    string  `yaml:"pattern"`
	Confidence float64 `yaml:"confidence"`
}

// Finding is one signature hit in a payload.
type Finding struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Matches    int     `json:"matches"`
}

// Detector runs compiled injection signatures against payload content.
// Detection is independent of policy rule matching: even an allowed
// action gets its payload scanned.
type Detector struct {
	patterns []compiled
}

type compiled struct {
	sig Signature
	re  *regexp.Regexp
}

// NewDetector compiles the given signatures. Patterns that fail to
// compile are skipped rather than taking the firewall down.
func NewDetector(sigs []Signature) *Detector {
	d := &Detector{}
	for _, s := range sigs {
		re, err := regexp.Compile("(?i)" + s.Pattern)
		if err != nil {
			continue
		}
		if s.Confidence <= 0 || s.Confidence > 1 {
			s.Confidence = 0.5
		}
		d.patterns = append(d.patterns, compiled{sig: s, re: re})
	}
	return d
}

// NewDefaultDetector compiles the built-in signature set.
func NewDefaultDetector() *Detector {
	return NewDetector(DefaultSignatures)
}

// Scan returns all signature hits in the payload and the highest single
// confidence among them.
func (d *Detector) Scan(payload string) ([]Finding, float64) {
	var findings []Finding
	highest := 0.0
	for _, c := range d.patterns {
		n := len(c.re.FindAllStringIndex(payload, -1))
		if n == 0 {
			continue
		}
		findings = append(findings, Finding{
			Name:       c.sig.Name,
			Confidence: c.sig.Confidence,
			Matches:    n,
		})
		if c.sig.Confidence > highest {
			highest = c.sig.Confidence
		}
	}
	return findings, highest
}

// Scrub replaces every signature match in the payload with the
// replacement marker and returns how many segments were removed.
func (d *Detector) Scrub(payload, replacement string) (string, int) {
	removed := 0
	for _, c := range d.patterns {
		matches := len(c.re.FindAllStringIndex(payload, -1))
		if matches == 0 {
			continue
		}
		payload = c.re.ReplaceAllString(payload, replacement)
		removed += matches
	}
	return payload, removed
}
