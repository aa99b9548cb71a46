package common

import "fmt"

// Build identity, stamped at link time:
//
//	-ldflags "-X github.com/ternarybob/jobscout/internal/common.Version=..."
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the bare version string.
func GetVersion() string {
	return Version
}

// GetFullVersion returns the version with build timestamp and commit,
// for the -version flag and startup log.
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, Build, GitCommit)
}
