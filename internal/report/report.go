// Package report renders a diagnosis session as a downloadable document.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skufu/triage/internal/engine"
	"github.com/Skufu/triage/internal/session"
	"github.com/Skufu/triage/internal/symptom"
)

type Format string

const (
	FormatText Format = "text"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts text, txt or pdf. An empty value means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unsupported report format %q", s)
}

func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/plain; charset=utf-8"
}

func (f Format) FileName(id uuid.UUID) string {
	ext := "txt"
	if f == FormatPDF {
		ext = "pdf"
	}
	return fmt.Sprintf("diagnosis-%s.%s", id, ext)
}

// Write renders s in format f.
func Write(w io.Writer, f Format, s *session.Session) error {
	if f == FormatPDF {
		return PDF(w, s)
	}
	return Text(w, s)
}

const unset = "not provided"

type line struct {
	heading bool
	text    string
}

// lines is the document content shared by every format.
func lines(s *session.Session) []line {
	var out []line
	head := func(t string) { out = append(out, line{heading: true, text: t}) }
	add := func(format string, args ...any) { out = append(out, line{text: fmt.Sprintf(format, args...)}) }

	req := s.Request
	head("Diagnosis Session Report")
	add("Session ID: %s", s.ID)
	add("Created At: %s", s.CreatedAt.UTC().Format(time.RFC3339))
	if req.PatientID != nil {
		add("Patient ID: %s", req.PatientID)
	} else {
		add("Patient ID: %s", unset)
	}
	if req.PatientAge != nil {
		add("Patient Age: %d", *req.PatientAge)
	} else {
		add("Patient Age: %s", unset)
	}

	head("Selected Symptoms")
	if len(req.SelectedSymptoms) == 0 {
		add("None")
	}
	for _, name := range req.SelectedSymptoms {
		obs := req.Observations[name]
		add("- %s (severity: %s, duration: %s)", name, orUnset(string(obs.Severity)), orUnset(string(obs.Duration)))
	}

	head("Risk Factors")
	keys := make([]string, 0, len(req.RiskFactors))
	for k := range req.RiskFactors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		add("None")
	}
	for _, k := range keys {
		add("- %s: %s", k, yesNo(req.RiskFactors[k]))
	}

	head("Summary")
	add("Top Disease: %s", s.TopDisease)
	add("Top Confidence: %d%%", s.TopConfidence)
	add("Any Requires Lab Tests: %s", yesNo(s.AnyRequiresLabTests))

	head("Results")
	for i, r := range s.Results {
		out = append(out, resultLines(i+1, r)...)
	}
	return out
}

func resultLines(rank int, r engine.Result) []line {
	drugs := "None"
	if len(r.RecommendedDrugs) > 0 {
		drugs = strings.Join(r.RecommendedDrugs, ", ")
	}
	return []line{
		{text: fmt.Sprintf("%d. %s", rank, r.Disease)},
		{text: fmt.Sprintf("   Confidence: %d%% (%s)", r.ConfidencePercentage, r.ConfidenceLevel)},
		{text: "   Total Score: " + strconv.FormatFloat(r.TotalScore, 'f', 2, 64)},
		{text: "   Matching Symptoms: " + joinNames(r.MatchingSymptoms)},
		{text: fmt.Sprintf("   Critical Symptoms: %d", r.CriticalSymptomCount)},
		{text: "   Requires Lab Tests: " + yesNo(r.RequiresLabTests)},
		{text: "   Recommended Drugs: " + drugs},
		{text: "   Advice: " + r.AdvisoryMessage},
	}
}

// Text writes the plain-text export.
func Text(w io.Writer, s *session.Session) error {
	var b strings.Builder
	for i, l := range lines(s) {
		if l.heading {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(strings.ToUpper(l.text))
			b.WriteString("\n")
			b.WriteString(strings.Repeat("=", len(l.text)))
			b.WriteString("\n")
			continue
		}
		b.WriteString(l.text)
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func joinNames(names []symptom.Name) string {
	if len(names) == 0 {
		return "None"
	}
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}

func orUnset(v string) string {
	if v == "" {
		return "unset"
	}
	return v
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
