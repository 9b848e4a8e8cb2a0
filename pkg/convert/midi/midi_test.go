package midi

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krkrport/mnemonic/pkg/errs"
	"github.com/krkrport/mnemonic/pkg/subprocess"
)

func testRunner() *subprocess.Runner {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return subprocess.NewRunner(l.WithField("test", true))
}

func TestCanConvertMidiVariants(t *testing.T) {
	c := New(testRunner(), "/dev/null")
	assert.True(t, c.CanConvert("theme.mid"))
	assert.True(t, c.CanConvert("theme.midi"))
	assert.False(t, c.CanConvert("theme.ogg"))
}

func TestConvertMissingFluidsynthIsToolNotFound(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "theme.mid")
	require.NoError(t, os.WriteFile(src, []byte("MThd"), 0o644))

	c := New(testRunner(), "/dev/null")
	c.Runner.EnvOverrides = map[string]string{}
	originalPath := os.Getenv("PATH")
	os.Setenv("PATH", "")
	defer os.Setenv("PATH", originalPath)

	_, err := c.Convert(src, filepath.Join(dir, "theme.ogg"))
	assert.Equal(t, errs.ToolNotFound, errs.KindOf(err))
}

func TestConvertCleansUpTempWavOnFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "theme.mid")
	require.NoError(t, os.WriteFile(src, []byte("MThd"), 0o644))

	before, _ := filepath.Glob(filepath.Join(os.TempDir(), "midi-render-*.wav"))

	c := New(testRunner(), "/dev/null")
	c.Runner.EnvOverrides = map[string]string{}
	originalPath := os.Getenv("PATH")
	os.Setenv("PATH", "")
	defer os.Setenv("PATH", originalPath)

	_, _ = c.Convert(src, filepath.Join(dir, "theme.ogg"))

	after, _ := filepath.Glob(filepath.Join(os.TempDir(), "midi-render-*.wav"))
	assert.Equal(t, len(before), len(after))
}
