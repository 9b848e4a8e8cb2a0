package xp3

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krkrport/mnemonic/pkg/errs"
)

// fixtureEntry describes one file to bake into a hand-built Archive.
type fixtureEntry struct {
	name      string
	data      []byte
	encrypted bool
}

// buildArchive assembles a minimal, valid Archive container: inline index
// form, one "File" chunk per entry, each payload stored uncompressed (so
// storedSize == originalSize and no inflate step is exercised on extract).
func buildArchive(t *testing.T, entries []fixtureEntry) []byte {
	t.Helper()

	var file bytes.Buffer
	file.Write(fullMagic)

	// payloads are appended right after the header+info-offset, with the
	// index descriptor after them; reserve the offset field now and patch it
	// once we know where the descriptor starts.
	infoOffsetPos := file.Len()
	file.Write(make([]byte, 8)) // info_offset placeholder

	type placed struct {
		fixtureEntry
		offset int64
	}
	var withOffsets []placed

	payloadStart := int64(file.Len())
	cursor := payloadStart
	for _, e := range entries {
		withOffsets = append(withOffsets, placed{e, cursor})
		cursor += int64(len(e.data))
	}
	for _, p := range withOffsets {
		file.Write(p.data)
	}

	infoOffset := int64(file.Len())

	var table bytes.Buffer
	for _, p := range withOffsets {
		writeFileChunk(&table, p.fixtureEntry, p.offset)
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	_, err := zw.Write(table.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	file.WriteByte(0x00) // inline descriptor form
	writeU64(&file, uint64(compressed.Len()))
	file.Write(compressed.Bytes())

	out := file.Bytes()
	binary.LittleEndian.PutUint64(out[infoOffsetPos:infoOffsetPos+8], uint64(infoOffset))
	return out
}

func writeFileChunk(w *bytes.Buffer, e fixtureEntry, offset int64) {
	var info bytes.Buffer
	var flags uint32
	if e.encrypted {
		flags = 0x80000000
	}
	writeU32(&info, flags)
	writeU64(&info, uint64(len(e.data)))
	writeU64(&info, uint64(len(e.data)))
	nameUnits := []uint16{}
	for _, r := range e.name {
		nameUnits = append(nameUnits, uint16(r))
	}
	writeU16(&info, uint16(len(nameUnits)))
	for _, u := range nameUnits {
		writeU16(&info, u)
	}

	var segm bytes.Buffer
	writeU32(&segm, 0) // uncompressed
	writeU64(&segm, uint64(offset))
	writeU64(&segm, uint64(len(e.data)))
	writeU64(&segm, uint64(len(e.data)))

	var fileChunk bytes.Buffer
	writeChunkHeader(&fileChunk, "info", info.Len())
	fileChunk.Write(info.Bytes())
	writeChunkHeader(&fileChunk, "segm", segm.Len())
	fileChunk.Write(segm.Bytes())

	writeChunkHeader(w, "File", fileChunk.Len())
	w.Write(fileChunk.Bytes())
}

func writeChunkHeader(w *bytes.Buffer, tag string, size int) {
	w.WriteString(tag)
	writeU64(w, uint64(size))
}

func writeU16(w *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.Write(tmp[:])
}

func writeU32(w *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.Write(tmp[:])
}

func writeU64(w *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.Write(tmp[:])
}

func writeTempArchive(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.xp3")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOpenAndExtractRoundTrip(t *testing.T) {
	data := buildArchive(t, []fixtureEntry{
		{name: "scenario/text01.ks", data: []byte("hello world")},
		{name: "image/bg001.tlg", data: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
	})
	path := writeTempArchive(t, data)

	arc, err := Open(path)
	require.NoError(t, err)
	defer arc.Close()

	assert.ElementsMatch(t, []string{"scenario/text01.ks", "image/bg001.tlg"}, arc.ListFiles())
	assert.False(t, arc.IsEncrypted())

	dest := t.TempDir()
	require.NoError(t, arc.ExtractAll(dest))

	got, err := os.ReadFile(filepath.Join(dest, "scenario", "text01.ks"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	got, err = os.ReadFile(filepath.Join(dest, "image", "bg001.tlg"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, got)
}

func TestEncryptedEntryIsDetected(t *testing.T) {
	data := buildArchive(t, []fixtureEntry{
		{name: "locked.ks", data: []byte("secret"), encrypted: true},
	})
	path := writeTempArchive(t, data)

	encrypted, err := IsEncrypted(path)
	require.NoError(t, err)
	assert.True(t, encrypted)

	err = RefuseIfEncrypted(path)
	assert.Equal(t, errs.Encrypted, errs.KindOf(err))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.xp3"))
	assert.Error(t, err)
}

func TestOpenUnrecognizedMagicFails(t *testing.T) {
	path := writeTempArchive(t, []byte("not an archive at all"))
	_, err := Open(path)
	assert.Error(t, err)
}

func TestOpenTruncatedIndexDoesNotCrash(t *testing.T) {
	data := buildArchive(t, []fixtureEntry{
		{name: "a.ks", data: []byte("aaaa")},
		{name: "b.ks", data: []byte("bbbb")},
	})
	// Truncate partway through the compressed table; Open must still
	// succeed, just with a possibly-shorter entry list.
	truncated := data[:len(data)-4]
	path := writeTempArchive(t, truncated)

	arc, err := Open(path)
	require.NoError(t, err)
	defer arc.Close()
	assert.LessOrEqual(t, len(arc.Entries), 2)
}
