// Package version carries build metadata, set with -ldflags -X.
package version

var (
	Version   = "0.1.0-dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)
