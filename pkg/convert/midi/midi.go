// Package midi implements the MIDI renderer converter (spec.md §4.7): a
// two-stage pipeline, fluidsynth renders MIDI to a temporary WAV, then
// ffmpeg encodes that WAV to OGG Vorbis. The temporary WAV is always
// removed, whichever stage fails.
package midi

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/krkrport/mnemonic/pkg/convert"
	"github.com/krkrport/mnemonic/pkg/subprocess"
)

const defaultTimeout = 5 * time.Minute

var sourceExtensions = []string{".mid", ".midi"}

// Converter synthesizes .mid/.midi assets to PCM via fluidsynth, then
// encodes the result to .ogg via ffmpeg.
type Converter struct {
	Runner    *subprocess.Runner
	SoundFont string
	Timeout   time.Duration
}

func New(runner *subprocess.Runner, soundFont string) *Converter {
	return &Converter{Runner: runner, SoundFont: soundFont, Timeout: defaultTimeout}
}

func (c *Converter) SupportedExtensions() []string { return sourceExtensions }

func (c *Converter) CanConvert(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range sourceExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

func (c *Converter) Convert(src, dst string) (convert.Result, error) {
	info, err := os.Stat(src)
	if err != nil {
		return convert.Result{}, err
	}
	before := info.Size()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return convert.Result{}, err
	}

	tmpWav := filepath.Join(os.TempDir(), "midi-render-"+uuid.NewString()+".wav")
	defer os.Remove(tmpWav)

	synthArgs := []string{"-ni", c.SoundFont, src, "-F", tmpWav, "-r", "44100"}
	if _, err := c.Runner.Run(context.Background(), "fluidsynth", synthArgs, c.Timeout, ""); err != nil {
		return convert.Result{}, err
	}

	encodeArgs := []string{"-y", "-i", tmpWav, "-c:a", "libvorbis", dst}
	if _, err := c.Runner.Run(context.Background(), "ffmpeg", encodeArgs, c.Timeout, ""); err != nil {
		return convert.Result{}, err
	}

	outInfo, err := os.Stat(dst)
	if err != nil {
		return convert.Result{}, err
	}

	return convert.Result{
		SourcePath:  src,
		DestPath:    dst,
		Status:      convert.StatusSuccess,
		BytesBefore: before,
		BytesAfter:  outInfo.Size(),
	}, nil
}
