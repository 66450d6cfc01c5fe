package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpscience/ddrs4pals/internal/buildinfo"
	"github.com/dpscience/ddrs4pals/internal/conf"
)

func TestVersionSkipsInitialization(t *testing.T) {
	root := RootCommand(buildinfo.NewContext("1.4.0", "2026-03-01", "lab-pc"))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "ddrs4pals 1.4.0 (built 2026-03-01, system lab-pc)\n", out.String())
}

func TestSubcommands(t *testing.T) {
	root := RootCommand(nil)
	for _, name := range []string{"run", "bench", "config", "inspect", "version"} {
		c, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("debug"))
}

func TestConfigFlagLoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, conf.WriteDefaultConfig(path, false))

	root := RootCommand(buildinfo.NewContext("test", "", ""))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "--node", "bench-3", "config", "show"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "name: bench-3")
	assert.Equal(t, "bench-3", conf.GetSettings().Main.Name)
}
