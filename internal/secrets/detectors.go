package secrets

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/viper"
	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"

	"secretsift/internal/logging"
)

const (
	// GenericDetectorName names the catch-all detector appended after the catalog
	GenericDetectorName = "Generic Password"

	// DefaultGenericMinLength is the shortest run the generic detector reports
	DefaultGenericMinLength = 40

	genericMaxLength = 255
)

// skippedRules are catalog rules superseded by the generic detector
var skippedRules = map[string]struct{}{
	"generic-api-key": {},
}

// Detector is a named pattern indicating a likely credential. The optional
// fields mirror a gitleaks rule and narrow what counts as a hit.
type Detector struct {
	Name    string
	Pattern *regexp.Regexp
	// SecretGroup selects the capture group holding the secret. Zero picks the
	// first non-empty group, or the whole match when the pattern has none.
	SecretGroup int
	// Entropy is the Shannon entropy a secret must exceed, zero disables the check
	Entropy float64
	// Keywords gate the pattern: at least one must appear in the text, ignoring case
	Keywords []string
	// Allowlists reject secrets known not to be credentials
	Allowlists []Allowlist
}

// Allowlist rejects a hit when one of its regexes or stop words applies
type Allowlist struct {
	// Target is what Regexes are matched against: "match", "line", or the secret when empty
	Target    string
	Regexes   []*regexp.Regexp
	StopWords []string
}

// DetectorSet is an ordered, immutable collection of detectors with unique names
type DetectorSet struct {
	detectors []Detector
}

// NewDetectorSet builds a set in the given order
func NewDetectorSet(detectors ...Detector) (*DetectorSet, error) {
	seen := make(map[string]struct{}, len(detectors))
	set := &DetectorSet{detectors: make([]Detector, 0, len(detectors))}

	for _, d := range detectors {
		if d.Name == "" {
			return nil, fmt.Errorf("detector name must not be empty")
		}
		if d.Pattern == nil {
			return nil, fmt.Errorf("detector %q has no pattern", d.Name)
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("duplicate detector %q", d.Name)
		}
		seen[d.Name] = struct{}{}
		set.detectors = append(set.detectors, d)
	}
	return set, nil
}

// Len returns the number of detectors
func (s *DetectorSet) Len() int {
	return len(s.detectors)
}

// Names returns detector names in iteration order
func (s *DetectorSet) Names() []string {
	names := make([]string, len(s.detectors))
	for i, d := range s.detectors {
		names[i] = d.Name
	}
	return names
}

// GenericDetector returns the catch-all detector for runs of at least minLength characters
func GenericDetector(minLength int) (Detector, error) {
	if minLength < 1 || minLength > genericMaxLength {
		return Detector{}, fmt.Errorf("generic detector minimum length must be between 1 and %d, got %d", genericMaxLength, minLength)
	}
	pattern, err := regexp.Compile(fmt.Sprintf(`[A-Za-z0-9+_-]{%d,%d}`, minLength, genericMaxLength))
	if err != nil {
		return Detector{}, err
	}
	return Detector{Name: GenericDetectorName, Pattern: pattern}, nil
}

// DetectorOptions selects the catalog and tunes the generic detector
type DetectorOptions struct {
	// ConfigPath is a gitleaks TOML file replacing the bundled rules when set
	ConfigPath string
	// GenericMinLength defaults to DefaultGenericMinLength when zero
	GenericMinLength int
}

// LoadDetectorSet builds the catalog detectors ordered by rule id, followed by the generic detector
func LoadDetectorSet(opts DetectorOptions) (*DetectorSet, error) {
	rules, err := loadRules(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rules))
	for id := range rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	detectors := make([]Detector, 0, len(ids)+1)
	for _, id := range ids {
		rule := rules[id]
		if _, skip := skippedRules[id]; skip {
			continue
		}
		detector, ok := fromRule(id, rule)
		if !ok {
			logging.Debug("Skipping detector that only applies to file paths", map[string]interface{}{
				"detector": id,
			})
			continue
		}
		detectors = append(detectors, detector)
	}

	minLength := opts.GenericMinLength
	if minLength == 0 {
		minLength = DefaultGenericMinLength
	}
	generic, err := GenericDetector(minLength)
	if err != nil {
		return nil, err
	}
	detectors = append(detectors, generic)

	set, err := NewDetectorSet(detectors...)
	if err != nil {
		return nil, err
	}

	logging.Debug("Loaded detectors", map[string]interface{}{
		"count":              set.Len(),
		"config":             opts.ConfigPath,
		"generic_min_length": minLength,
	})
	return set, nil
}

// loadRules returns the bundled gitleaks rules, or the rules of a custom TOML file
func loadRules(path string) (map[string]gitleaksconfig.Rule, error) {
	if path == "" {
		detector, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load default detector catalog: %w", err)
		}
		return detector.Config.Rules, nil
	}

	// A private viper instance keeps rule files out of the application config
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("detector config not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read detector config %s: %w", path, err)
	}

	var vc gitleaksconfig.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return nil, fmt.Errorf("failed to parse detector config %s: %w", path, err)
	}

	cfg, err := vc.Translate()
	if err != nil {
		return nil, fmt.Errorf("failed to translate detector config %s: %w", path, err)
	}
	if len(cfg.Rules) == 0 {
		logging.Warn("Detector config contains no rules", map[string]interface{}{
			"path": path,
		})
	}
	return cfg.Rules, nil
}

// fromRule converts a gitleaks rule. Allowlists that depend on commits or file
// paths never apply to user data and are dropped.
func fromRule(id string, rule gitleaksconfig.Rule) (Detector, bool) {
	// Path-only rules have nothing to match against content
	if rule.Regex == nil {
		return Detector{}, false
	}

	d := Detector{
		Name:        id,
		Pattern:     rule.Regex,
		SecretGroup: rule.SecretGroup,
		Entropy:     rule.Entropy,
	}
	for _, k := range rule.Keywords {
		d.Keywords = append(d.Keywords, strings.ToLower(k))
	}
	for _, a := range rule.Allowlists {
		if a == nil || len(a.Commits) > 0 || len(a.Paths) > 0 {
			continue
		}
		if len(a.Regexes) == 0 && len(a.StopWords) == 0 {
			continue
		}
		allow := Allowlist{Target: a.RegexTarget, Regexes: a.Regexes}
		for _, w := range a.StopWords {
			allow.StopWords = append(allow.StopWords, strings.ToLower(w))
		}
		d.Allowlists = append(d.Allowlists, allow)
	}
	return d, true
}
