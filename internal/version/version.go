// Package version reports the cabload build version.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// These variables can be set at build time via ldflags:
//
//	go build -ldflags="-X github.com/muurk/cabload/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/cabload/internal/version.Commit=abc123"
//
// Unset values are taken from the VCS stamp in the build info, or fall
// back to "dev" with a timestamp.
var (
	// Version is the semantic version of the application
	Version = ""
	// Commit is the git commit hash
	Commit = ""
)

func init() {
	if Version == "" || Commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			Version, Commit = fromBuildInfo(info, Version, Commit)
		}
	}

	if Version == "" {
		Version = fmt.Sprintf("dev-%s", time.Now().Format("20060102-150405"))
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fromBuildInfo fills whichever of version and commit is empty from the
// VCS settings in info.
func fromBuildInfo(info *debug.BuildInfo, version, commit string) (string, string) {
	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}

	if rev := settings["vcs.revision"]; commit == "" && rev != "" {
		commit = rev
		if len(commit) > 7 {
			commit = commit[:7]
		}
		if settings["vcs.modified"] == "true" {
			commit += "-dirty"
		}
	}

	// Build info carries no tags, so a module version wins over the commit date
	if version == "" {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			version = v
		} else if t, err := time.Parse(time.RFC3339, settings["vcs.time"]); err == nil {
			version = fmt.Sprintf("dev-%s", t.Format("20060102"))
		}
	}
	return version, commit
}

// Platform returns the OS/architecture the binary was built for
func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// Full returns the version with commit and platform
func Full() string {
	return fmt.Sprintf("%s (commit: %s, %s)", Version, Commit, Platform())
}
