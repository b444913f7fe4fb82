// Package engine scores symptom selections against disease rule profiles and
// assembles ranked results. Everything here is pure: no I/O, no shared state.
package engine

import (
	"math"

	"github.com/Skufu/triage/internal/profile"
	"github.com/Skufu/triage/internal/symptom"
)

const (
	// ReportingFloor is the percentage a disease must exceed to be reported.
	ReportingFloor = 20

	ageMultiplierValue = 1.3
	youngAgeLimit      = 5
	oldAgeLimit        = 65
)

var bandCeiling = map[profile.Band]float64{
	profile.BandHigh:   95,
	profile.BandMedium: 80,
	profile.BandLow:    50,
}

// Scored is one disease that cleared classification and the reporting floor.
type Scored struct {
	Profile       *profile.Profile
	TotalScore    float64
	CriticalCount int
	Band          profile.Band
	Percentage    int
	Matching      []symptom.Name
}

// Evaluate validates req and scores it against every profile in declaration
// order. An empty selection yields no scored diseases.
func Evaluate(req Request, set *profile.Set) ([]Scored, error) {
	if err := Validate(req, set); err != nil {
		return nil, err
	}

	selected := make(map[symptom.Name]bool, len(req.SelectedSymptoms))
	for _, s := range req.SelectedSymptoms {
		selected[s] = true
	}
	if len(selected) == 0 {
		return nil, nil
	}

	risk := riskMultiplier(req.RiskFactors, set)
	age := ageMultiplier(req.PatientAge)

	var out []Scored
	for _, p := range set.Profiles() {
		symptomScore, critical, matching := score(p, selected, req.Observations)
		total := symptomScore * risk * age
		band, ok := classify(total, critical, p.Thresholds())
		if !ok {
			continue
		}
		pct := percentage(band, total, p.Thresholds())
		if pct <= ReportingFloor {
			continue
		}
		out = append(out, Scored{
			Profile:       p,
			TotalScore:    total,
			CriticalCount: critical,
			Band:          band,
			Percentage:    pct,
			Matching:      matching,
		})
	}
	return out, nil
}

// score walks the profile's weights in declaration order so the float sum is
// identical for identical selections.
func score(p *profile.Profile, selected map[symptom.Name]bool, obs map[symptom.Name]Observation) (float64, int, []symptom.Name) {
	var (
		symptomScore float64
		critical     int
		matching     []symptom.Name
	)
	for _, w := range p.Weights() {
		if !selected[w.Symptom] {
			continue
		}
		o := obs[w.Symptom]
		symptomScore += float64(w.Weight) * o.Severity.multiplier() * o.Duration.multiplier()
		matching = append(matching, w.Symptom)
		if p.IsCritical(w.Symptom) {
			critical++
		}
	}
	return symptomScore, critical, matching
}

// riskMultiplier compounds the coefficients of the active flags in table order.
func riskMultiplier(flags map[string]bool, set *profile.Set) float64 {
	m := 1.0
	for _, rf := range set.RiskFactors() {
		if flags[rf.Key] {
			m *= rf.Coefficient
		}
	}
	return m
}

func ageMultiplier(age *int) float64 {
	if age == nil {
		return 1.0
	}
	if *age < youngAgeLimit || *age > oldAgeLimit {
		return ageMultiplierValue
	}
	return 1.0
}

// classify applies the critical-symptom override before the raw thresholds.
// Lower bounds are closed.
func classify(total float64, critical int, th profile.Thresholds) (profile.Band, bool) {
	switch {
	case critical >= 2 || total >= th.High:
		return profile.BandHigh, true
	case critical >= 1 || total >= th.Medium:
		return profile.BandMedium, true
	case total >= th.Low:
		return profile.BandLow, true
	}
	return "", false
}

func percentage(band profile.Band, total float64, th profile.Thresholds) int {
	var raw float64
	switch band {
	case profile.BandHigh:
		raw = 70 + (total - th.High)
	case profile.BandMedium:
		raw = 50 + (total-th.Medium)*3
	case profile.BandLow:
		raw = 30 + (total-th.Low)*4
	}
	pct := int(math.Round(math.Min(bandCeiling[band], raw)))
	if pct < 0 {
		return 0
	}
	return pct
}
