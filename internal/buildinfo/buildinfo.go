// Package buildinfo holds the version stamp of the docgpt binary. cmd/docgpt copies its
// ldflags-injected values here so that -version and debug logs can report them.
package buildinfo

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// Commit is the git revision the binary was built from.
	Commit = "none"
	// BuildDate is the UTC build timestamp.
	BuildDate = "unknown"
)
