package imageconv

import (
	"encoding/binary"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krkrport/mnemonic/pkg/convert"
)

var tlg5Magic = []byte("TLG5.0\x00raw\x1A")

// buildSolidFixture mirrors pkg/tlg's own test fixture builder: a single
// block, flat-color TLG5 image, every post-first delta zero.
func buildSolidFixture(width, height int, b, g, r, a byte) []byte {
	var buf []byte
	buf = append(buf, tlg5Magic...)
	buf = append(buf, 32)
	appendU32 := func(v uint32) {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], v)
		buf = append(buf, tmp[:]...)
	}
	appendU32(uint32(width))
	appendU32(uint32(height))
	appendU32(uint32(height))

	for _, channelValue := range []byte{b, g, r, a} {
		compressed := []byte{0x00, channelValue}
		for i := 1; i < width*height; i++ {
			compressed = append(compressed, 0x00)
		}
		buf = append(buf, 0x00)
		appendU32(uint32(len(compressed)))
		buf = append(buf, compressed...)
	}
	return buf
}

func TestConvertTLGToPNG(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sprite.tlg")
	require.NoError(t, os.WriteFile(src, buildSolidFixture(2, 2, 10, 20, 30, 255), 0o644))
	dst := filepath.Join(dir, "sprite.png")

	c := New()
	result, err := c.Convert(src, dst)
	require.NoError(t, err)
	assert.Equal(t, convert.StatusSuccess, result.Status)

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
}

func TestConvertTLGToWebp(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sprite.tlg")
	require.NoError(t, os.WriteFile(src, buildSolidFixture(2, 2, 10, 20, 30, 255), 0o644))
	dst := filepath.Join(dir, "sprite.webp")

	c := New()
	result, err := c.Convert(src, dst)
	require.NoError(t, err)
	assert.Equal(t, convert.StatusSuccess, result.Status)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestCanConvertImageSourceExtensions(t *testing.T) {
	c := New()
	assert.True(t, c.CanConvert("foo.tlg"))
	assert.True(t, c.CanConvert("foo.TLG"))
	assert.True(t, c.CanConvert("foo.png"))
	assert.False(t, c.CanConvert("foo.ogg"))
}

func TestConvertInvalidMagicFails(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.tlg")
	require.NoError(t, os.WriteFile(src, []byte("not a tlg file"), 0o644))

	c := New()
	_, err := c.Convert(src, filepath.Join(dir, "bad.png"))
	assert.Error(t, err)
}
