// Package version exposes build metadata injected through -ldflags, e.g.
//
//	-X github.com/nslnv/leaddesk/pkg/version.Version=v1.4.0
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	// BuildDate is RFC3339 when set
	BuildDate = "unknown"
	GoVersion = runtime.Version()
	Platform  = runtime.GOOS + "/" + runtime.GOARCH
)

// BuildInfo is served by /api/version and printed by `leaddesk version`
type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"gitCommit"`
	BuildDate string    `json:"buildDate"`
	GoVersion string    `json:"goVersion"`
	Platform  string    `json:"platform"`
	BuildTime time.Time `json:"buildTime,omitempty"`
	Dirty     bool      `json:"dirty,omitempty"`
}

// GetBuildInfo returns build metadata. Values not injected at link time are
// taken from the VCS stamp the go tool embeds, if any.
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
		Platform:  Platform,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromVCS(&info, bi.Settings)
	}
	if t, err := time.Parse(time.RFC3339, info.BuildDate); err == nil {
		info.BuildTime = t
	}
	return info
}

func fillFromVCS(info *BuildInfo, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" && s.Value != "" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "unknown" && s.Value != "" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
}

func (b BuildInfo) String() string {
	commit := b.GitCommit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if b.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("leaddesk %s (commit %s, built %s, %s %s)", b.Version, commit, b.BuildDate, b.GoVersion, b.Platform)
}
