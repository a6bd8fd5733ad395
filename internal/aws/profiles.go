package aws

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws/defaults"
	"gopkg.in/ini.v1"
)

// sharedFiles returns the credentials and config file paths, honoring the SDK overrides
func sharedFiles() (credsPath, configPath string) {
	credsPath = os.Getenv("AWS_SHARED_CREDENTIALS_FILE")
	if credsPath == "" {
		credsPath = defaults.SharedCredentialsFilename()
	}
	configPath = os.Getenv("AWS_CONFIG_FILE")
	if configPath == "" {
		configPath = defaults.SharedConfigFilename()
	}
	return credsPath, configPath
}

// profileSections adds the profile names declared in an ini file to profiles.
// A missing file contributes nothing.
func profileSections(path string, profiles map[string]struct{}) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	for _, section := range file.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		// The config file prefixes every profile except default with "profile "
		profiles[strings.TrimPrefix(section.Name(), "profile ")] = struct{}{}
	}
	return nil
}

// ListProfiles returns the sorted profile names found in the shared credentials and config files
func ListProfiles() ([]string, error) {
	credsPath, configPath := sharedFiles()

	profiles := make(map[string]struct{})
	if err := profileSections(credsPath, profiles); err != nil {
		return nil, err
	}
	if err := profileSections(configPath, profiles); err != nil {
		return nil, err
	}

	result := make([]string, 0, len(profiles))
	for profile := range profiles {
		result = append(result, profile)
	}
	sort.Strings(result)

	return result, nil
}

// IsValidProfile checks if a profile exists
func IsValidProfile(profile string) bool {
	profiles, err := ListProfiles()
	if err != nil {
		return false
	}

	for _, p := range profiles {
		if p == profile {
			return true
		}
	}

	return false
}
