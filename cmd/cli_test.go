package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionPrintsVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", stdout)
}

func TestShowText(t *testing.T) {
	path := writeTotalsFixture(t)

	stdout, _, err := executeCLI(t, "show", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "users: 3")
	assert.Contains(t, stdout, "1. 200")
	assert.Contains(t, stdout, "2h0m0s")
	assert.Less(t, bytes.Index([]byte(stdout), []byte("200")), bytes.Index([]byte(stdout), []byte("100")))
}

func TestShowTop(t *testing.T) {
	path := writeTotalsFixture(t)

	stdout, _, err := executeCLI(t, "show", "--file", path, "--top", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "users: 1")
	assert.NotContains(t, stdout, "300")
}

func TestShowJSON(t *testing.T) {
	path := writeTotalsFixture(t)

	stdout, _, err := executeCLI(t, "show", "--file", path, "--format", "json")
	require.NoError(t, err)
	require.True(t, json.Valid([]byte(stdout)))

	var report showReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	require.Len(t, report.Users, 3)
	assert.Equal(t, "200", report.Users[0].UserID)
	assert.Equal(t, 7200.0, report.Users[0].Seconds)
	assert.Equal(t, 2.0, report.Users[0].Hours)
	assert.Equal(t, 3, report.Users[2].Rank)
}

func TestShowTOML(t *testing.T) {
	path := writeTotalsFixture(t)

	stdout, _, err := executeCLI(t, "show", "--file", path, "--format", "toml")
	require.NoError(t, err)

	var report showReport
	require.NoError(t, toml.Unmarshal([]byte(stdout), &report))
	require.Len(t, report.Users, 3)
	assert.Equal(t, path, report.File)
	assert.Equal(t, "100", report.Users[1].UserID)
}

func TestShowMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")

	stdout, _, err := executeCLI(t, "show", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No voice time recorded")
}

func TestShowCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice_time.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, _, err := executeCLI(t, "show", "--file", path)
	require.Error(t, err)
}

func TestShowRejectsUnknownFormat(t *testing.T) {
	path := writeTotalsFixture(t)

	_, _, err := executeCLI(t, "show", "--file", path, "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestRunRequiresSettings(t *testing.T) {
	chdirTest(t, t.TempDir())
	for _, name := range []string{"DISCORD_TOKEN", "GUILD_ID", "VOICE_CHANNEL_ID"} {
		t.Setenv(name, "")
	}

	_, _, err := executeCLI(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISCORD_TOKEN")
	assert.Contains(t, err.Error(), "VOICE_CHANNEL_ID")
}

func TestRunFlagsFillSettings(t *testing.T) {
	chdirTest(t, t.TempDir())
	for _, name := range []string{"DISCORD_TOKEN", "GUILD_ID", "VOICE_CHANNEL_ID"} {
		t.Setenv(name, "")
	}

	_, _, err := executeCLI(t, "run", "--guild", "1", "--channel", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISCORD_TOKEN")
	assert.NotContains(t, err.Error(), "GUILD_ID")
	assert.NotContains(t, err.Error(), "VOICE_CHANNEL_ID")
}

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTotalsFixture(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "voice_time.json")
	totals := `{
    "100": 3600,
    "200": 7200,
    "300": 60.5
}`
	require.NoError(t, os.WriteFile(path, []byte(totals), 0o644))
	return path
}

// chdirTest changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir, added in Go 1.24).
func chdirTest(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
