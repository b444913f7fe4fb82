package engine

import (
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/google/uuid"

	"github.com/Skufu/triage/internal/profile"
	"github.com/Skufu/triage/internal/symptom"
)

// Severity modifies a symptom's weight. The zero value and "unset" both
// leave the weight unchanged.
type Severity string

const (
	SeverityUnset     Severity = ""
	SeverityUnsetName Severity = "unset"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

func (s Severity) valid() bool {
	switch s {
	case SeverityUnset, SeverityUnsetName, SeverityMild, SeverityModerate, SeveritySevere:
		return true
	}
	return false
}

func (s Severity) multiplier() float64 {
	switch s {
	case SeveritySevere:
		return 2.0
	case SeverityModerate:
		return 1.5
	default:
		return 1.0
	}
}

// Duration modifies a symptom's weight. The zero value and "unset" both
// leave the weight unchanged.
type Duration string

const (
	DurationUnset     Duration = ""
	DurationUnsetName Duration = "unset"
	DurationRecent    Duration = "recent"
	DurationDays      Duration = "days"
	DurationProlonged Duration = "prolonged"
)

func (d Duration) valid() bool {
	switch d {
	case DurationUnset, DurationUnsetName, DurationRecent, DurationDays, DurationProlonged:
		return true
	}
	return false
}

func (d Duration) multiplier() float64 {
	switch d {
	case DurationProlonged:
		return 1.8
	case DurationDays:
		return 1.3
	default:
		return 1.0
	}
}

// Observation qualifies one selected symptom.
type Observation struct {
	Severity Severity `json:"severity,omitempty"`
	Duration Duration `json:"duration,omitempty"`
}

// Request is the full input of one evaluation.
type Request struct {
	PatientID        *uuid.UUID                   `json:"patientId,omitempty"`
	SelectedSymptoms []symptom.Name               `json:"selectedSymptoms"`
	Observations     map[symptom.Name]Observation `json:"observations,omitempty"`
	RiskFactors      map[string]bool              `json:"riskFactors,omitempty"`
	PatientAge       *int                         `json:"patientAge,omitempty"`
}

// Clone returns a copy of r that shares no slices, maps or pointers with it.
func (r Request) Clone() Request {
	out := Request{
		SelectedSymptoms: slices.Clone(r.SelectedSymptoms),
		Observations:     maps.Clone(r.Observations),
		RiskFactors:      maps.Clone(r.RiskFactors),
	}
	if r.PatientID != nil {
		id := *r.PatientID
		out.PatientID = &id
	}
	if r.PatientAge != nil {
		age := *r.PatientAge
		out.PatientAge = &age
	}
	return out
}

// ValidationError reports malformed input, naming the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate checks req against the rule set. Nothing is scored when it fails.
func Validate(req Request, set *profile.Set) error {
	if i, ok := set.Catalog().Unknown(req.SelectedSymptoms); ok {
		return &ValidationError{
			Field:   fmt.Sprintf("selectedSymptoms[%d]", i),
			Message: fmt.Sprintf("unknown symptom %q", req.SelectedSymptoms[i]),
		}
	}
	selected := make(map[symptom.Name]bool, len(req.SelectedSymptoms))
	for _, s := range req.SelectedSymptoms {
		selected[s] = true
	}

	names := make([]string, 0, len(req.Observations))
	for s := range req.Observations {
		names = append(names, string(s))
	}
	sort.Strings(names)
	for _, n := range names {
		s := symptom.Name(n)
		obs := req.Observations[s]
		field := fmt.Sprintf("observations.%s", n)
		if !selected[s] {
			return &ValidationError{Field: field, Message: "symptom is not selected"}
		}
		if !obs.Severity.valid() {
			return &ValidationError{
				Field:   field + ".severity",
				Message: fmt.Sprintf("%q is not one of mild, moderate, severe, unset", obs.Severity),
			}
		}
		if !obs.Duration.valid() {
			return &ValidationError{
				Field:   field + ".duration",
				Message: fmt.Sprintf("%q is not one of recent, days, prolonged, unset", obs.Duration),
			}
		}
	}

	keys := make([]string, 0, len(req.RiskFactors))
	for k := range req.RiskFactors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := set.RiskFactor(k); !ok {
			return &ValidationError{Field: "riskFactors." + k, Message: "unknown risk factor"}
		}
	}

	if req.PatientAge != nil && *req.PatientAge < 0 {
		return &ValidationError{Field: "patientAge", Message: "must not be negative"}
	}
	return nil
}
