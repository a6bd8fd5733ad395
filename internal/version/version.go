package version

import (
	"fmt"
	"runtime"
)

// Name identifies the tool in the user agent of outgoing API calls
const Name = "secretsift"

var (
	// Version is the current version of secretsift
	Version = "0.1.0"

	// GitCommit is the git commit hash, injected at build time
	GitCommit string

	// BuildTime is the build timestamp, injected at build time
	BuildTime string
)

// String returns the full version string
func String() string {
	if len(GitCommit) >= 8 && BuildTime != "" {
		return fmt.Sprintf("%s (commit: %s, built: %s, %s)",
			Version, GitCommit[:8], BuildTime, runtime.Version())
	}
	return Version
}

// UserAgent returns the product token sent with every inventory request
func UserAgent() (name, version string) {
	if len(GitCommit) >= 8 {
		return Name, Version + "+" + GitCommit[:8]
	}
	return Name, Version
}
