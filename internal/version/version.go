// Package version reports build metadata for the topicfeed binary.
//
// Values are injected with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/topicfeed/internal/version.Version=1.2.0 \
//	                   -X github.com/rickgao/topicfeed/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/topicfeed/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import "runtime"

// Set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build metadata served on /health.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String formats the build metadata for -version output.
func String() string {
	return "topicfeed " + Version + " (" + Commit + ") built " + BuildTime + " with " + runtime.Version()
}
