// Package version exposes build information stamped in via -ldflags.
package version

import "runtime"

// Overridden at build time:
//
//	go build -ldflags "-X .../internal/version.version=v1.2.3 ..."
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// Get returns the build information for this binary.
func Get() Info {
	return Info{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
}
