// Package version exposes the build version string.
package version

// Version is set at build time via -ldflags "-X .../internal/version.Version=...".
var Version = "dev"

// String returns the current version.
func String() string {
	return Version
}
