package version

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShort(t *testing.T) {
	tests := []struct {
		name string
		info BuildInfo
		want string
	}{
		{"release", BuildInfo{Version: "v1.2.0", GitCommit: "abcdef0123"}, "v1.2.0 (abcdef0)"},
		{"dev", BuildInfo{Version: "dev", GitCommit: "abcdef0123"}, "dev-abcdef0"},
		{"dirty", BuildInfo{Version: "dev", GitCommit: "abcdef0123", Modified: true}, "dev-abcdef0-dirty"},
		{"no commit", BuildInfo{Version: "v1.2.0", GitCommit: "unknown"}, "v1.2.0"},
		{"short commit", BuildInfo{Version: "v1.2.0", GitCommit: "abc"}, "v1.2.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.Short())
		})
	}
}

func TestString(t *testing.T) {
	info := BuildInfo{
		Version:   "v1.0.0",
		GitCommit: "abc1234",
		BuildTime: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		GoVersion: "go1.24",
		Platform:  "linux/amd64",
	}
	assert.Equal(t, "Version: v1.0.0\nCommit: abc1234\nBuilt: 2025-01-02T03:04:05Z\nGo: go1.24\nPlatform: linux/amd64", info.String())

	info.GitCommit = "unknown"
	info.BuildTime = time.Time{}
	assert.Equal(t, "Version: v1.0.0\nGo: go1.24\nPlatform: linux/amd64", info.String())
}

func TestGetBuildInfoUsesLinkerValues(t *testing.T) {
	oldVersion, oldCommit, oldTime := Version, GitCommit, BuildTime
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldVersion, oldCommit, oldTime })

	Version, GitCommit, BuildTime = "v9.9.9", "0123456789", "2025-06-01T00:00:00Z"
	info := GetBuildInfo()
	assert.Equal(t, "v9.9.9", info.Version)
	assert.Equal(t, "0123456789", info.GitCommit)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Contains(t, GetShortVersion(), "v9.9.9 (0123456")
}
