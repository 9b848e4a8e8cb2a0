package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krkrport/mnemonic/pkg/convert"
)

func TestConvertCommentsOutPluginLoad(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "first.ks")
	require.NoError(t, os.WriteFile(src, []byte("  Plugins.link(\"foo.dll\");\n"), 0o644))
	dst := filepath.Join(dir, "out.ks")

	c := New()
	result, err := c.Convert(src, dst)
	require.NoError(t, err)
	assert.Equal(t, convert.StatusSuccess, result.Status)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(got), "// Disabled for Android")
}

func TestConvertRewritesSaveDataLocation(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "s.tjs")
	require.NoError(t, os.WriteFile(src, []byte("saveDataLocation = System.exePath + saveDataLocation;"), 0o644))
	dst := filepath.Join(dir, "out.tjs")

	c := New()
	_, err := c.Convert(src, dst)
	require.NoError(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(got), "saveDataLocation = System.dataPath")
}

func TestConvertExtendsMidReferences(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "s.ks")
	require.NoError(t, os.WriteFile(src, []byte(`play("theme.mid");`), 0o644))
	dst := filepath.Join(dir, "out.ks")

	c := New()
	_, err := c.Convert(src, dst)
	require.NoError(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(got), `"theme.mid.ogg"`)
}

func TestConvertPrependsStartupPolyfill(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "startup.tjs")
	require.NoError(t, os.WriteFile(src, []byte("System.inform(1);"), 0o644))
	dst := filepath.Join(dir, "out.tjs")

	c := New()
	result, err := c.Convert(src, dst)
	require.NoError(t, err)
	assert.Equal(t, convert.StatusSuccess, result.Status)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(got), "krkrsdl2 android polyfill")
}

func TestConvertNoMatchIsSkipped(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plain.ks")
	require.NoError(t, os.WriteFile(src, []byte("System.inform(\"hello\");"), 0o644))
	dst := filepath.Join(dir, "out.ks")

	c := New()
	result, err := c.Convert(src, dst)
	require.NoError(t, err)
	assert.Equal(t, convert.StatusSkipped, result.Status)
}

func TestConvertStripsAndRestoresBOM(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "b.ks")
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("MIDISoundBuffer")...)
	require.NoError(t, os.WriteFile(src, data, 0o644))
	dst := filepath.Join(dir, "out.ks")

	c := New()
	_, err := c.Convert(src, dst)
	require.NoError(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.True(t, len(got) >= 3 && got[0] == 0xEF && got[1] == 0xBB && got[2] == 0xBF)
	assert.Contains(t, string(got), "WaveSoundBuffer")
}
