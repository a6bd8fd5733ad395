package report

import "secretsift/internal/secrets"

// Entry is a matched resource as persisted in the report
type Entry interface {
	ResourceID() string
}

// InstanceEntry records the user-data secret found on an instance
type InstanceEntry struct {
	ID       string                   `json:"id"`
	Type     string                   `json:"type"`
	State    string                   `json:"state"`
	Name     string                   `json:"name,omitempty"`
	Matches  []map[string]string      `json:"matches"`
	UserData map[string]secrets.Value `json:"userdata"`
}

// ResourceID returns the instance id
func (e InstanceEntry) ResourceID() string { return e.ID }

// TemplateMatch is a secret found in one launch-template version
type TemplateMatch struct {
	Version int64  `json:"version"`
	Match   string `json:"match"`
}

// TemplateEntry records the secrets found across a launch template's versions
type TemplateEntry struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CreatedBy string          `json:"created_by"`
	Matches   []TemplateMatch `json:"matches"`
}

// ResourceID returns the launch template id
func (e TemplateEntry) ResourceID() string { return e.ID }

// NewInstanceEntry converts an aggregated instance record into its report form
func NewInstanceEntry(r *secrets.InstanceRecord) InstanceEntry {
	entry := InstanceEntry{
		ID:       r.Instance.ID,
		Type:     r.Instance.Type,
		State:    r.Instance.State,
		Name:     r.Instance.Name,
		Matches:  make([]map[string]string, 0, len(r.Matches)),
		UserData: make(map[string]secrets.Value, len(r.Matches)),
	}
	for _, m := range r.Matches {
		entry.Matches = append(entry.Matches, map[string]string{m.Field: m.Match.Value})
		entry.UserData[m.Field] = m.Decoded
	}
	return entry
}

// NewTemplateEntry converts an aggregated template record into its report form
func NewTemplateEntry(r *secrets.TemplateRecord) TemplateEntry {
	entry := TemplateEntry{
		ID:        r.Template.ID,
		Name:      r.Template.Name,
		CreatedBy: r.Template.CreatedBy,
		Matches:   make([]TemplateMatch, 0, len(r.Matches)),
	}
	for _, m := range r.Matches {
		entry.Matches = append(entry.Matches, TemplateMatch{Version: m.Version, Match: m.Match.Value})
	}
	return entry
}
