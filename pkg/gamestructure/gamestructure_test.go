package gamestructure

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/text/encoding/japanese"
)

func TestDetectTitleFromUTF8Config(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "system"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "system", "Config.tjs"), []byte(`;System.title = "Sample Game";`), 0o644))

	info := Detect(dir)
	assert.Equal(t, "Sample Game", info.Title)
	assert.Equal(t, VariantKirikiri, info.Variant)
}

func TestDetectTitleFromCP932Config(t *testing.T) {
	dir := t.TempDir()
	encoded, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(`;System.title = "テスト";`))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Config.tjs"), encoded, 0o644))

	info := Detect(dir)
	assert.Equal(t, "テスト", info.Title)
}

func TestDetectNoConfigYieldsEmptyTitle(t *testing.T) {
	dir := t.TempDir()
	info := Detect(dir)
	assert.Equal(t, "", info.Title)
}
