package cli

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterleaved(t *testing.T) {
	fs := flag.NewFlagSet("visualize", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	prefix := fs.String("output_prefix", "", "")
	out := fs.String("out", ".", "")

	args, err := Parse(fs, []string{"data.dbn", "--output_prefix", "flash", "-out", "vis", "extra"})
	require.NoError(t, err)
	assert.Equal(t, []string{"data.dbn", "extra"}, args)
	assert.Equal(t, "flash", *prefix)
	assert.Equal(t, "vis", *out)
}

func TestParseUnknownFlag(t *testing.T) {
	fs := flag.NewFlagSet("plotstats", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	_, err := Parse(fs, []string{"-bogus"})
	assert.Error(t, err)
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(wd)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mboflow", cfg.Mboflow.Name)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("mboflow:\n  name: \"reports\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "reports", cfg.Mboflow.Name)
	assert.Equal(t, "1.0.0", cfg.Mboflow.Version)
}
