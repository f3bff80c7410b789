// Package version exposes build metadata stamped in at link time.
package version

var (
	// Version is the semantic version, overridden via -ldflags.
	Version = "v0.0.0-dev"

	// GitCommit is the short git commit hash, overridden via -ldflags.
	GitCommit = "unknown"

	// BuildTime is the UTC build timestamp, overridden via -ldflags.
	BuildTime = "unknown"
)

// Info returns a single human-readable version line.
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}
