package engine

import (
	"slices"
	"sort"

	"github.com/Skufu/triage/internal/profile"
	"github.com/Skufu/triage/internal/symptom"
)

// FallbackDisease names the synthetic result returned when no disease clears
// the reporting floor.
const FallbackDisease = "Medical Evaluation Needed"

const fallbackAdvice = "The reported symptoms do not match any known disease profile closely enough. " +
	"Refer the patient for a full clinical evaluation and laboratory work-up."

// Result is one ranked, user-facing disease estimate.
type Result struct {
	Disease              string         `json:"disease"`
	ConfidencePercentage int            `json:"confidencePercentage"`
	ConfidenceLevel      profile.Band   `json:"confidenceLevel"`
	TotalScore           float64        `json:"totalScore"`
	MatchingSymptoms     []symptom.Name `json:"matchingSymptoms"`
	CriticalSymptomCount int            `json:"criticalSymptomCount"`
	RequiresLabTests     bool           `json:"requiresLabTests"`
	RecommendedDrugs     []string       `json:"recommendedDrugs"`
	AdvisoryMessage      string         `json:"advisoryMessage"`
}

// Clone returns a copy of r with its own symptom and drug slices.
func (r Result) Clone() Result {
	r.MatchingSymptoms = slices.Clone(r.MatchingSymptoms)
	r.RecommendedDrugs = slices.Clone(r.RecommendedDrugs)
	return r
}

// Assemble ranks scored diseases by descending percentage, keeping input
// order for ties, and builds the results. It never returns an empty list.
func Assemble(scored []Scored) []Result {
	if len(scored) == 0 {
		return []Result{Fallback()}
	}

	ranked := make([]Scored, len(scored))
	copy(ranked, scored)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Percentage > ranked[j].Percentage
	})

	results := make([]Result, 0, len(ranked))
	for _, s := range ranked {
		matching := make([]symptom.Name, len(s.Matching))
		copy(matching, s.Matching)
		results = append(results, Result{
			Disease:              s.Profile.Name(),
			ConfidencePercentage: s.Percentage,
			ConfidenceLevel:      s.Band,
			TotalScore:           s.TotalScore,
			MatchingSymptoms:     matching,
			CriticalSymptomCount: s.CriticalCount,
			RequiresLabTests:     s.Band == profile.BandHigh || s.CriticalCount > 0,
			RecommendedDrugs:     s.Profile.Drugs(s.Band),
			AdvisoryMessage:      s.Profile.Advice(s.Band),
		})
	}
	return results
}

// Fallback is the result used when nothing qualifies.
func Fallback() Result {
	return Result{
		Disease:          FallbackDisease,
		ConfidenceLevel:  profile.BandMedium,
		MatchingSymptoms: []symptom.Name{},
		RequiresLabTests: true,
		RecommendedDrugs: []string{},
		AdvisoryMessage:  fallbackAdvice,
	}
}

// Summary is the quick-display view of a ranked result list.
type Summary struct {
	AnyRequiresLabTests bool   `json:"anyRequiresLabTests"`
	TopDisease          string `json:"topDisease"`
	TopConfidence       int    `json:"topConfidence"`
}

// Summarize derives the summary fields from ranked results.
func Summarize(results []Result) Summary {
	var s Summary
	if len(results) == 0 {
		return s
	}
	s.TopDisease = results[0].Disease
	s.TopConfidence = results[0].ConfidencePercentage
	for _, r := range results {
		if r.RequiresLabTests {
			s.AnyRequiresLabTests = true
			break
		}
	}
	return s
}

// Diagnose runs Evaluate and Assemble.
func Diagnose(req Request, set *profile.Set) ([]Result, error) {
	scored, err := Evaluate(req, set)
	if err != nil {
		return nil, err
	}
	return Assemble(scored), nil
}
