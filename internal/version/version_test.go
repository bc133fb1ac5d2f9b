package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setBuild overrides the ldflags variables for one test.
func setBuild(t *testing.T, version, commit, branch, treeState string) {
	t.Helper()
	oldVersion, oldCommit, oldBranch, oldTree, oldDate := Version, Commit, Branch, TreeState, Date
	t.Cleanup(func() {
		Version, Commit, Branch, TreeState, Date = oldVersion, oldCommit, oldBranch, oldTree, oldDate
	})
	Version, Commit, Branch, TreeState = version, commit, branch, treeState
	Date = "2026-10-01T12:00:00Z"
}

const testCommit = "0123456789abcdef0123456789abcdef01234567"

func TestGetInfo_BuildVariables(t *testing.T) {
	setBuild(t, "1.4.0", testCommit, "main", "clean")

	info := GetInfo()
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, testCommit, info.Commit)
	assert.Equal(t, "01234567", info.CommitSHA)
	assert.Equal(t, "main", info.Branch)
	assert.Equal(t, "clean", info.TreeState)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.True(t, info.Release)
}

func TestGetInfo_ShortCommitOmittedWhenUnknown(t *testing.T) {
	for _, commit := range []string{"unknown", "abc123"} {
		setBuild(t, "dev", commit, "unknown", "unknown")
		assert.Empty(t, GetInfo().CommitSHA, commit)
	}
}

func TestString(t *testing.T) {
	t.Run("without commit", func(t *testing.T) {
		setBuild(t, "dev", "unknown", "unknown", "unknown")
		s := String()
		assert.Equal(t, "m3uclean version dev ("+GoVersion+", "+runtime.GOOS+"/"+runtime.GOARCH+")", s)
	})

	t.Run("with commit and branch", func(t *testing.T) {
		setBuild(t, "1.4.0", testCommit, "feature/unicode-comma", "dirty")
		s := String()
		assert.Contains(t, s, "m3uclean version 1.4.0")
		assert.Contains(t, s, "commit: 01234567*")
		assert.Contains(t, s, "branch: feature/unicode-comma")
		assert.Contains(t, s, "built: 2026-10-01T12:00:00Z")
	})

	t.Run("unknown branch is left out", func(t *testing.T) {
		setBuild(t, "1.4.0", testCommit, "unknown", "clean")
		s := String()
		assert.NotContains(t, s, "branch:")
		assert.NotContains(t, s, "*")
	})
}

func TestShort(t *testing.T) {
	setBuild(t, "1.4.0", "unknown", "unknown", "unknown")
	assert.Equal(t, "1.4.0", Short())

	setBuild(t, "1.4.0", testCommit, "main", "dirty")
	assert.Equal(t, "1.4.0 (01234567*)", Short())
}

func TestJSON(t *testing.T) {
	setBuild(t, "1.5.0-SNAPSHOT.0123456", testCommit, "main", "clean")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(JSON()), &decoded))

	assert.Equal(t, "1.5.0-SNAPSHOT.0123456", decoded["version"])
	assert.Equal(t, "01234567", decoded["commit_sha"])
	assert.Equal(t, "main", decoded["branch"])
	assert.Equal(t, "clean", decoded["tree_state"])
	assert.Equal(t, runtime.GOOS, decoded["os"])
	assert.Equal(t, runtime.GOARCH, decoded["arch"])
	assert.Equal(t, false, decoded["release"])
}

func TestUserAgent(t *testing.T) {
	setBuild(t, "1.4.0", "unknown", "unknown", "unknown")
	assert.Equal(t, "m3uclean/1.4.0", UserAgent())

	setBuild(t, "dev", "unknown", "unknown", "unknown")
	assert.Equal(t, "m3uclean/dev", UserAgent())
}

func TestReleaseChannel(t *testing.T) {
	tests := []struct {
		version  string
		snapshot bool
		release  bool
	}{
		{"dev", true, false},
		{"1.4.0", false, true},
		{"1.5.0-SNAPSHOT.0123456", true, false},
		{"0.9.1-rc.1", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			setBuild(t, tt.version, "unknown", "unknown", "unknown")
			assert.Equal(t, tt.snapshot, IsSnapshot())
			assert.Equal(t, tt.release, IsRelease())
			assert.Equal(t, tt.release, GetInfo().Release)
		})
	}
}
