// Package buildinfo holds values injected at link time.
package buildinfo

import "runtime"

// Set via -ldflags "-X github.com/silver2dream/makerkit/internal/buildinfo.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// String is the one-line version banner.
func String() string {
	return "makerkit " + Version + " (" + GitCommit + ", " + runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
