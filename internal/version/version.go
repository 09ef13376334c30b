// Package version reports the build of the running binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/aprsair/aprsgate/internal/version.Version=v1.0.0 \
//	                   -X github.com/aprsair/aprsgate/internal/version.Commit=abc1234"
var (
	Version = ""
	Commit  = ""
)

// Info describes a build.
type Info struct {
	Version   string
	Commit    string
	Dirty     bool
	GoVersion string
}

// Get resolves the build info, falling back to the module's VCS stamp.
func Get() Info {
	bi, _ := debug.ReadBuildInfo()
	return resolve(Version, Commit, bi)
}

func resolve(version, commit string, bi *debug.BuildInfo) Info {
	info := Info{Version: version, Commit: commit, GoVersion: runtime.Version()}

	if bi != nil {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.modified":
				info.Dirty = s.Value == "true"
			}
		}
	}

	if info.Version == "" {
		info.Version = "dev"
	}
	if len(info.Commit) > 7 {
		info.Commit = info.Commit[:7]
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	return info
}

// Short is the version without a leading "v", as announced over mDNS.
func (i Info) Short() string {
	return strings.TrimPrefix(i.Version, "v")
}

// String returns e.g. "v1.0.0 (commit: abc1234-dirty, go1.24.0)".
func (i Info) String() string {
	commit := i.Commit
	if i.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (commit: %s, %s)", i.Version, commit, i.GoVersion)
}
