// Package version reports build metadata for camscan binaries.
package version

import (
	"fmt"
	"runtime/debug"
)

// Build-time variables set by ldflags, e.g.
// -X github.com/MeKo-Tech/camscan/internal/version.Version=v1.2.0
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

// Current returns the ldflags values. A binary built with `go install`
// has none, so the module version and VCS stamp are used instead.
func Current() Build {
	b := Build{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.GitCommit == "unknown" && s.Value != "" {
				b.GitCommit = s.Value
			}
		case "vcs.time":
			if b.BuildDate == "unknown" && s.Value != "" {
				b.BuildDate = s.Value
			}
		}
	}
	return b
}

func (b Build) String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", b.Version, b.GitCommit, b.BuildDate)
}

// Info returns version, commit and build date.
func Info() (string, string, string) {
	b := Current()
	return b.Version, b.GitCommit, b.BuildDate
}
