// Package version reports build metadata.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time via ldflags, e.g.
//
//	go build -ldflags "-X regioncd/app/internal/version.Version=1.4.0 -X regioncd/app/internal/version.Commit=$(git rev-parse HEAD)"
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

// Info is the build metadata served by the version endpoint.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

// Get returns the build metadata, falling back to the VCS stamp of the binary and then to commitFallback.
func Get(commitFallback string) Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}

	if build, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "dev" && build.Main.Version != "" && build.Main.Version != "(devel)" {
			info.Version = build.Main.Version
		}
		for _, setting := range build.Settings {
			switch setting.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = setting.Value
				}
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = setting.Value
				}
			}
		}
	}

	if info.Commit == "" {
		info.Commit = strings.TrimSpace(commitFallback)
	}

	return info
}
