package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildInfo(settings ...debug.BuildSetting) *debug.BuildInfo {
	return &debug.BuildInfo{Settings: settings}
}

func TestResolveVersion_ReleaseBuild(t *testing.T) {
	t.Parallel()
	require.Equal(t, "1.0.0", resolveVersion("1.0.0", "", buildInfo()))
}

func TestResolveVersion_NoBuildInfo(t *testing.T) {
	t.Parallel()
	require.Equal(t, "1.0.0", resolveVersion("1.0.0", "", nil))
}

func TestResolveVersion_VCSRevision(t *testing.T) {
	t.Parallel()
	info := buildInfo(debug.BuildSetting{Key: "vcs.revision", Value: "abcdef0123456789"})
	require.Equal(t, "1.0.0-abcdef0", resolveVersion("1.0.0", "", info))
}

func TestResolveVersion_DirtyWorkingTree(t *testing.T) {
	t.Parallel()
	info := buildInfo(
		debug.BuildSetting{Key: "vcs.revision", Value: "abcdef0123456789"},
		debug.BuildSetting{Key: "vcs.modified", Value: "true"},
	)
	require.Equal(t, "1.0.0-abcdef0-dirty", resolveVersion("1.0.0", "", info))
}

func TestResolveVersion_LinkerCommitWins(t *testing.T) {
	t.Parallel()
	info := buildInfo(debug.BuildSetting{Key: "vcs.revision", Value: "abcdef0123456789"})
	require.Equal(t, "1.0.0-1234567", resolveVersion("1.0.0", "1234567", info))
}

func TestResolveVersion_EmptyBaseFallsBackToZero(t *testing.T) {
	t.Parallel()
	require.Equal(t, "0.0.0", resolveVersion("", "", nil))
}
