package audio

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

func TestCanConvertOnlyWav(t *testing.T) {
	c := New(testRunner())
	assert.True(t, c.CanConvert("voice.wav"))
	assert.True(t, c.CanConvert("voice.WAV"))
	assert.False(t, c.CanConvert("voice.ogg"))
}

func TestConvertMissingFfmpegIsToolNotFound(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.wav")
	require.NoError(t, os.WriteFile(src, []byte("RIFF...."), 0o644))

	c := New(testRunner())
	c.Runner.EnvOverrides = map[string]string{}
	originalPath := os.Getenv("PATH")
	os.Setenv("PATH", "")
	defer os.Setenv("PATH", originalPath)

	_, err := c.Convert(src, filepath.Join(dir, "a.ogg"))
	assert.Equal(t, errs.ToolNotFound, errs.KindOf(err))
}
