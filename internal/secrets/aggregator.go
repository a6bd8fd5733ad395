package secrets

import (
	"fmt"

	"secretsift/internal/aws"
	"secretsift/internal/logging"
)

// FieldMatch is the match found in one user-data field
type FieldMatch struct {
	Field string
	Match Match
	// Decoded is the field's decoded text, reinterpreted when it is structured
	Decoded Value
}

// InstanceRecord holds the matches found in an instance's user-data
type InstanceRecord struct {
	Instance aws.Instance
	Matches  []FieldMatch
}

// VersionMatch is the match found in one launch-template version
type VersionMatch struct {
	Version int64
	Match   Match
}

// TemplateRecord holds the matches found across a launch template's versions
type TemplateRecord struct {
	Template aws.LaunchTemplate
	Matches  []VersionMatch
}

// Aggregator turns resources and their payloads into match records
type Aggregator struct {
	scanner *Scanner
	region  string
}

// NewAggregator creates an aggregator that logs hits against region
func NewAggregator(scanner *Scanner, region string) *Aggregator {
	return &Aggregator{scanner: scanner, region: region}
}

// AggregateInstance scans fields in order and stops at the first field that
// matches. Fields that do not decode are skipped. It returns nil when nothing matched.
func (a *Aggregator) AggregateInstance(instance aws.Instance, fields []aws.UserDataField) *InstanceRecord {
	for _, field := range fields {
		text, err := DecodeBase64(field.Raw)
		if err != nil {
			logging.Debug("Skipping undecodable user data field", map[string]interface{}{
				"region":   a.region,
				"instance": instance.ID,
				"field":    field.Key,
				"error":    err.Error(),
			})
			continue
		}

		match, ok := a.scanner.Scan(text)
		if !ok {
			continue
		}

		logging.MatchFound(a.region, instance.ID, field.Key, match.Detector, match.Value)
		return &InstanceRecord{
			Instance: instance,
			Matches: []FieldMatch{{
				Field:   field.Key,
				Match:   match,
				Decoded: Reinterpret(text),
			}},
		}
	}
	return nil
}

// AggregateTemplate scans every version and records each one that matches.
// It returns nil when no version matched.
func (a *Aggregator) AggregateTemplate(template aws.LaunchTemplate, versions []aws.TemplateVersion) *TemplateRecord {
	var matches []VersionMatch
	for _, version := range versions {
		doc, err := DecodeTemplateData(version.Data)
		if err != nil {
			logging.Debug("Skipping undecodable launch template version", map[string]interface{}{
				"region":   a.region,
				"template": template.ID,
				"version":  version.Number,
				"error":    err.Error(),
			})
			continue
		}

		match, ok := a.scanner.ScanTemplate(doc)
		if !ok {
			continue
		}

		logging.MatchFound(a.region, template.ID, fmt.Sprintf("version %d", version.Number), match.Detector, match.Value)
		matches = append(matches, VersionMatch{Version: version.Number, Match: match})
	}

	if len(matches) == 0 {
		return nil
	}
	return &TemplateRecord{Template: template, Matches: matches}
}
