// Package version provides the Cb execution core's version string.
package version

// Version is the current module version, reported by cmd/cb --version.
const Version = "0.1.0"
