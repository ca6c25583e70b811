package config

import (
	"runtime/debug"
	"testing"
)

func TestResolveBuildInfo(t *testing.T) {
	linkerDefaults := BuildInfo{Version: "dev", Commit: "none", BuildTime: "unknown"}
	stamped := &debug.BuildInfo{
		Main: debug.Module{Path: "iptvpanel", Version: "v1.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "3f9c2a7d81b04e55c0a1"},
			{Key: "vcs.time", Value: "2026-04-30T18:22:05Z"},
		},
	}

	tests := []struct {
		name string
		in   BuildInfo
		bi   *debug.BuildInfo
		want BuildInfo
	}{
		{"no build info", linkerDefaults, nil, linkerDefaults},
		{
			"devel module keeps defaults",
			linkerDefaults,
			&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			linkerDefaults,
		},
		{
			"vcs stamp fills defaults",
			linkerDefaults,
			stamped,
			BuildInfo{Version: "v1.4.0", Commit: "3f9c2a7d81b0", BuildTime: "2026-04-30T18:22:05Z"},
		},
		{
			"linker values win",
			BuildInfo{Version: "1.5.0-rc1", Commit: "abc1234", BuildTime: "2026-05-01"},
			stamped,
			BuildInfo{Version: "1.5.0-rc1", Commit: "abc1234", BuildTime: "2026-05-01"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveBuildInfo(tt.in, tt.bi); got != tt.want {
				t.Errorf("resolveBuildInfo() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
