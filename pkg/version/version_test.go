package version

import (
	"runtime/debug"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GitCommit)
	assert.NotEmpty(t, info.BuildDate)
	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.Platform)
}

func TestGetBuildInfo_ParsesValidDate(t *testing.T) {
	original := BuildDate
	defer func() { BuildDate = original }()

	BuildDate = "2025-05-10T09:00:00Z"
	info := GetBuildInfo()
	assert.True(t, info.BuildTime.Equal(time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)))
}

func TestFillFromVCS(t *testing.T) {
	info := BuildInfo{GitCommit: "unknown", BuildDate: "unknown"}
	fillFromVCS(&info, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2025-05-01T10:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	})
	assert.Equal(t, "0123456789abcdef0123", info.GitCommit)
	assert.Equal(t, "2025-05-01T10:00:00Z", info.BuildDate)
	assert.True(t, info.Dirty)
}

func TestFillFromVCS_LdflagsWin(t *testing.T) {
	info := BuildInfo{GitCommit: "abc123", BuildDate: "2025-01-01T00:00:00Z"}
	fillFromVCS(&info, []debug.BuildSetting{{Key: "vcs.revision", Value: "fff"}})
	assert.Equal(t, "abc123", info.GitCommit)
	assert.Equal(t, "2025-01-01T00:00:00Z", info.BuildDate)
}

func TestBuildInfoString(t *testing.T) {
	b := BuildInfo{
		Version:   "v1.0.0",
		GitCommit: "0123456789abcdef",
		BuildDate: "2025-05-10T09:00:00Z",
		GoVersion: "go1.25.0",
		Platform:  "linux/amd64",
		Dirty:     true,
	}
	assert.Equal(t, "leaddesk v1.0.0 (commit 0123456789ab-dirty, built 2025-05-10T09:00:00Z, go1.25.0 linux/amd64)", b.String())
}
