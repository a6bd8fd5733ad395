package aws

import (
	"context"
	"encoding/json"
)

// Instance is an EC2 instance eligible for scanning
type Instance struct {
	ID    string
	Type  string
	State string
	// Name comes from the instance's Name tag and may be empty
	Name string
}

// UserDataField is one raw, base64-encoded field of an instance's user-data attribute
type UserDataField struct {
	Key string
	Raw string
}

// LookupStatus tells a present user-data attribute apart from a vanished instance
type LookupStatus int

const (
	Found LookupStatus = iota
	NotFound
)

// UserDataResult is the outcome of a user-data lookup. Fields are in attribute order.
type UserDataResult struct {
	Status LookupStatus
	Fields []UserDataField
}

// LaunchTemplate is a launch template owned by the account
type LaunchTemplate struct {
	ID        string
	Name      string
	CreatedBy string
}

// TemplateVersion is one version of a launch template. Data is the launch-template data as JSON.
type TemplateVersion struct {
	Number      int64
	Description string
	Data        json.RawMessage
}

// Inventory is the read-only view of a region's compute resources
type Inventory interface {
	// ListRegions returns the regions enabled for the account
	ListRegions(ctx context.Context) ([]string, error)
	// ListInstances returns running and stopped instances
	ListInstances(ctx context.Context) ([]Instance, error)
	// GetUserData returns the user-data fields of an instance
	GetUserData(ctx context.Context, instanceID string) (UserDataResult, error)
	// ListNameTags maps instance ids to their Name tag
	ListNameTags(ctx context.Context) (map[string]string, error)
	// ListLaunchTemplates returns every launch template
	ListLaunchTemplates(ctx context.Context) ([]LaunchTemplate, error)
	// ListTemplateVersions returns every version of a launch template
	ListTemplateVersions(ctx context.Context, templateID string) ([]TemplateVersion, error)
}
