package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildInfo(mainVersion string, settings map[string]string) *debug.BuildInfo {
	info := &debug.BuildInfo{Main: debug.Module{Version: mainVersion}}
	for k, v := range settings {
		info.Settings = append(info.Settings, debug.BuildSetting{Key: k, Value: v})
	}
	return info
}

func TestFromBuildInfo(t *testing.T) {
	tests := []struct {
		name        string
		info        *debug.BuildInfo
		version     string
		commit      string
		wantVersion string
		wantCommit  string
	}{
		{
			name: "vcs stamp",
			info: buildInfo("(devel)", map[string]string{
				"vcs.revision": "0123456789abcdef",
				"vcs.time":     "2026-03-04T10:00:00Z",
			}),
			wantVersion: "dev-20260304",
			wantCommit:  "0123456",
		},
		{
			name: "dirty tree",
			info: buildInfo("", map[string]string{
				"vcs.revision": "abc",
				"vcs.modified": "true",
			}),
			wantCommit: "abc-dirty",
		},
		{
			name:        "module version",
			info:        buildInfo("v0.4.1", map[string]string{"vcs.time": "2026-03-04T10:00:00Z"}),
			wantVersion: "v0.4.1",
		},
		{
			name:        "ldflags win",
			info:        buildInfo("v0.4.1", map[string]string{"vcs.revision": "0123456789"}),
			version:     "v1.0.0",
			commit:      "feed",
			wantVersion: "v1.0.0",
			wantCommit:  "feed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, c := fromBuildInfo(tt.info, tt.version, tt.commit)
			assert.Equal(t, tt.wantVersion, v)
			assert.Equal(t, tt.wantCommit, c)
		})
	}
}

func TestFull(t *testing.T) {
	full := Full()
	assert.True(t, strings.HasPrefix(full, Version+" (commit: "+Commit), full)
	assert.Contains(t, full, runtime.GOOS+"/"+runtime.GOARCH)
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Commit)
}
