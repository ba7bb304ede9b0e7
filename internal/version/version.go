// Package version provides centralized version information for ensembled.
// All versions follow semantic versioning (semver) conventions.
package version

// EnsembledVersion holds the current ensembled daemon version.
// Format: major.minor.patch[-prerelease][+build]
const EnsembledVersion = "0.1.0-dev"
