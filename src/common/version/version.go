// Package version provides common version information structures for crater applications.
package version

import (
	"fmt"
	"runtime"
)

// Info holds version information for a crater application.
// These values are typically set at build time via ldflags.
type Info struct {
	// Version is the full version string: "v0.3.0-9ab41c2"
	Version string

	// ReleaseVersion is the semantic version (e.g., "0.3.0")
	ReleaseVersion string

	// BuildDate is the ISO 8601 build timestamp
	BuildDate string

	// GitCommit is the short git commit hash
	GitCommit string
}

// New returns an Info with development placeholders in every field
func New() *Info {
	return &Info{
		Version:        "dev",
		ReleaseVersion: "0.0.0",
		BuildDate:      "unknown",
		GitCommit:      "unknown",
	}
}

// GoVersion returns the Go runtime version
func GoVersion() string {
	return runtime.Version()
}

// String returns the full version string
func (i *Info) String() string {
	return i.Version
}

// Full returns a detailed multi-line version string
func (i *Info) Full() string {
	return fmt.Sprintf(`%s
  Version:    %s
  Build Date: %s
  Git Commit: %s
  Go Version: %s`,
		i.Version, i.ReleaseVersion, i.BuildDate, i.GitCommit, runtime.Version())
}

// Map returns version info as a map (useful for JSON responses)
func (i *Info) Map() map[string]string {
	return map[string]string{
		"version":         i.Version,
		"release_version": i.ReleaseVersion,
		"build_date":      i.BuildDate,
		"git_commit":      i.GitCommit,
		"go_version":      runtime.Version(),
	}
}
