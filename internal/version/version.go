// Package version holds build metadata stamped in via -ldflags.
package version

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// Commit is the short git revision the binary was built from.
	Commit = "unknown"
	// BuildDate is when the binary was built, RFC3339.
	BuildDate = "unknown"
)
