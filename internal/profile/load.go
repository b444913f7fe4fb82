package profile

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Skufu/triage/internal/symptom"
)

//go:embed profiles.yaml
var defaultProfiles []byte

const (
	minWeight      = 1
	maxWeight      = 4
	minCoefficient = 1.2
	maxCoefficient = 1.6
)

// ConfigurationError reports a malformed rule configuration. It is fatal at
// load time.
type ConfigurationError struct {
	Profile string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Profile == "" {
		return fmt.Sprintf("invalid rule configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid profile %q: %s", e.Profile, e.Reason)
}

type document struct {
	RiskFactors []RiskFactor      `yaml:"risk_factors"`
	Profiles    []profileDocument `yaml:"profiles"`
}

type profileDocument struct {
	Name       string            `yaml:"name"`
	Symptoms   []Weight          `yaml:"symptoms"`
	Critical   []symptom.Name    `yaml:"critical"`
	Thresholds Thresholds        `yaml:"thresholds"`
	Drugs      map[Band][]string `yaml:"drugs"`
	Advice     map[Band]string   `yaml:"advice"`
}

// Default returns the rule set compiled into the binary.
func Default() (*Set, error) {
	return Parse(defaultProfiles)
}

// Load reads the rule set from path, or the compiled-in set when path is empty.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default()
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles %s: %w", path, err)
	}
	return Parse(buf)
}

// Parse decodes and validates a YAML rule set.
func Parse(data []byte) (*Set, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("decode: %v", err)}
	}
	return build(doc)
}

func build(doc document) (*Set, error) {
	if len(doc.Profiles) == 0 {
		return nil, &ConfigurationError{Reason: "no disease profiles"}
	}

	set := &Set{}
	seenFactors := make(map[string]bool)
	for _, rf := range doc.RiskFactors {
		if rf.Key == "" {
			return nil, &ConfigurationError{Reason: "risk factor with empty key"}
		}
		if seenFactors[rf.Key] {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("risk factor %q declared twice", rf.Key)}
		}
		if rf.Coefficient < minCoefficient || rf.Coefficient > maxCoefficient {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("risk factor %q coefficient %.2f outside [%.1f, %.1f]",
				rf.Key, rf.Coefficient, minCoefficient, maxCoefficient)}
		}
		seenFactors[rf.Key] = true
		set.riskFactors = append(set.riskFactors, rf)
	}

	seenProfiles := make(map[string]bool)
	refs := make([]symptom.Reference, 0, len(doc.Profiles))
	for _, pd := range doc.Profiles {
		p, err := newProfile(pd)
		if err != nil {
			return nil, err
		}
		if seenProfiles[p.name] {
			return nil, &ConfigurationError{Profile: p.name, Reason: "declared twice"}
		}
		seenProfiles[p.name] = true
		set.profiles = append(set.profiles, p)

		ref := symptom.Reference{Disease: p.name}
		for _, w := range p.weights {
			ref.Symptoms = append(ref.Symptoms, w.Symptom)
		}
		refs = append(refs, ref)
	}

	catalog, err := symptom.NewCatalog(refs)
	if err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	set.catalog = catalog
	return set, nil
}

func newProfile(pd profileDocument) (*Profile, error) {
	if pd.Name == "" {
		return nil, &ConfigurationError{Reason: "profile with empty name"}
	}
	fail := func(format string, args ...any) error {
		return &ConfigurationError{Profile: pd.Name, Reason: fmt.Sprintf(format, args...)}
	}

	th := pd.Thresholds
	if !(th.High > th.Medium && th.Medium > th.Low && th.Low > 0) {
		return nil, fail("thresholds must satisfy high > medium > low > 0, got %v/%v/%v", th.High, th.Medium, th.Low)
	}
	if len(pd.Symptoms) == 0 {
		return nil, fail("no symptom weights")
	}

	p := &Profile{
		name:       pd.Name,
		index:      make(map[symptom.Name]int, len(pd.Symptoms)),
		thresholds: th,
		drugs:      make(map[Band][]string, len(Bands)),
		advice:     make(map[Band]string, len(Bands)),
	}
	for i, w := range pd.Symptoms {
		if w.Symptom == "" {
			return nil, fail("symptom weight %d has no name", i)
		}
		if w.Weight < minWeight || w.Weight > maxWeight {
			return nil, fail("symptom %q weight %d outside %d..%d", w.Symptom, w.Weight, minWeight, maxWeight)
		}
		if _, dup := p.index[w.Symptom]; dup {
			return nil, fail("symptom %q weighted twice", w.Symptom)
		}
		p.index[w.Symptom] = i
		p.weights = append(p.weights, w)
	}

	for _, c := range pd.Critical {
		if _, ok := p.index[c]; !ok {
			return nil, fail("critical symptom %q has no weight", c)
		}
		if p.IsCritical(c) {
			return nil, fail("critical symptom %q listed twice", c)
		}
		p.critical = append(p.critical, c)
	}

	for band := range pd.Drugs {
		if !knownBand(band) {
			return nil, fail("unknown band %q in drugs", band)
		}
	}
	for band := range pd.Advice {
		if !knownBand(band) {
			return nil, fail("unknown band %q in advice", band)
		}
	}
	for _, band := range Bands {
		drugs, ok := pd.Drugs[band]
		if !ok {
			return nil, fail("no drug list for band %s", band)
		}
		p.drugs[band] = append([]string(nil), drugs...)
		if pd.Advice[band] == "" {
			return nil, fail("no advisory message for band %s", band)
		}
		p.advice[band] = pd.Advice[band]
	}
	return p, nil
}

func knownBand(b Band) bool {
	for _, known := range Bands {
		if b == known {
			return true
		}
	}
	return false
}

// IsConfigurationError reports whether err carries a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
