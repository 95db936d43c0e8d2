package targets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

const sample = `
https://a.example.com

#######
# Football
https://b.example.com/results
  https://c.example.com/table  
#
# Rugby
https://d.example.com
https://b.example.com/results
`

func TestParseGroupsAndComments(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	got, err := Parse(strings.NewReader(sample), zap.New(core))
	require.NoError(t, err)

	assert.Equal(t, []monitor.WatchTarget{
		{URL: "https://a.example.com"},
		{URL: "https://b.example.com/results", Group: "Football"},
		{URL: "https://c.example.com/table", Group: "Football"},
		{URL: "https://d.example.com", Group: "Rugby"},
	}, got)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "duplicate url ignored", logs.All()[0].Message)
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()

	got, err := Parse(strings.NewReader("\n# only comments\n\n"), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://x.example.com\n"), 0o600))

	got, err := Load(path, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://x.example.com", got[0].URL)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open url list")
}
