package common

import "fmt"

// Version information (set via -ldflags during build)
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the current version string
func GetVersion() string {
	return Version
}

// GetFullVersion returns version plus build metadata
func GetFullVersion() string {
	return fmt.Sprintf("%s (build %s, commit %s)", Version, Build, GitCommit)
}
