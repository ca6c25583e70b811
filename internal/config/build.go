package config

import "runtime/debug"

// Set with -ldflags "-X iptvpanel/internal/config.version=1.4.0" and
// likewise for commit and buildTime.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo reports the linker values, falling back to the module
// version and VCS stamp the toolchain embeds for `go install` builds.
func NewBuildInfo() BuildInfo {
	bi, _ := debug.ReadBuildInfo()
	return resolveBuildInfo(BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}, bi)
}

func resolveBuildInfo(info BuildInfo, bi *debug.BuildInfo) BuildInfo {
	if bi == nil {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "none":
			info.Commit = s.Value
			if len(info.Commit) > 12 {
				info.Commit = info.Commit[:12]
			}
		case s.Key == "vcs.time" && info.BuildTime == "unknown":
			info.BuildTime = s.Value
		}
	}
	return info
}
