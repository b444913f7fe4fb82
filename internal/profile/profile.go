package profile

import (
	"github.com/Skufu/triage/internal/symptom"
)

// Band is a confidence band.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// Bands lists the bands from most to least confident.
var Bands = []Band{BandHigh, BandMedium, BandLow}

// Thresholds are the score cut points of a profile. High > Medium > Low > 0.
type Thresholds struct {
	High   float64 `json:"high" yaml:"high"`
	Medium float64 `json:"medium" yaml:"medium"`
	Low    float64 `json:"low" yaml:"low"`
}

// Weight is the base weight of one symptom for one disease.
type Weight struct {
	Symptom symptom.Name `json:"symptom" yaml:"name"`
	Weight  int          `json:"weight" yaml:"weight"`
}

// RiskFactor is an epidemiological flag and the multiplier it contributes
// when active.
type RiskFactor struct {
	Key         string  `json:"key" yaml:"key"`
	Label       string  `json:"label" yaml:"label"`
	Coefficient float64 `json:"coefficient" yaml:"coefficient"`
}

// Profile is the rule table of one disease. Values are fixed at load time;
// accessors hand out copies.
type Profile struct {
	name       string
	weights    []Weight
	index      map[symptom.Name]int
	critical   []symptom.Name
	thresholds Thresholds
	drugs      map[Band][]string
	advice     map[Band]string
}

func (p *Profile) Name() string { return p.name }

func (p *Profile) Thresholds() Thresholds { return p.thresholds }

// Weights returns the symptom weights in declaration order.
func (p *Profile) Weights() []Weight {
	out := make([]Weight, len(p.weights))
	copy(out, p.weights)
	return out
}

// Weight returns the base weight of s, or false when the profile ignores s.
func (p *Profile) Weight(s symptom.Name) (int, bool) {
	i, ok := p.index[s]
	if !ok {
		return 0, false
	}
	return p.weights[i].Weight, true
}

func (p *Profile) Critical() []symptom.Name {
	out := make([]symptom.Name, len(p.critical))
	copy(out, p.critical)
	return out
}

func (p *Profile) IsCritical(s symptom.Name) bool {
	for _, c := range p.critical {
		if c == s {
			return true
		}
	}
	return false
}

// Drugs returns the ordered treatment list for band.
func (p *Profile) Drugs(b Band) []string {
	ds := p.drugs[b]
	out := make([]string, len(ds))
	copy(out, ds)
	return out
}

func (p *Profile) Advice(b Band) string { return p.advice[b] }

// Set is the full rule configuration: disease profiles in declaration order
// plus the global risk-factor table.
type Set struct {
	profiles    []*Profile
	riskFactors []RiskFactor
	catalog     *symptom.Catalog
}

// Profiles returns the profiles in declaration order.
func (s *Set) Profiles() []*Profile {
	out := make([]*Profile, len(s.profiles))
	copy(out, s.profiles)
	return out
}

// Profile looks a disease up by name.
func (s *Set) Profile(name string) (*Profile, bool) {
	for _, p := range s.profiles {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

// RiskFactors returns the risk-factor table in declaration order.
func (s *Set) RiskFactors() []RiskFactor {
	out := make([]RiskFactor, len(s.riskFactors))
	copy(out, s.riskFactors)
	return out
}

func (s *Set) RiskFactor(key string) (RiskFactor, bool) {
	for _, rf := range s.riskFactors {
		if rf.Key == key {
			return rf, true
		}
	}
	return RiskFactor{}, false
}

func (s *Set) Catalog() *symptom.Catalog { return s.catalog }
