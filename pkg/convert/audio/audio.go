// Package audio implements the audio transcoder converter (spec.md §4.7):
// drives the ffmpeg subprocess to re-encode WAV assets as OGG Vorbis.
package audio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/krkrport/mnemonic/pkg/convert"
	"github.com/krkrport/mnemonic/pkg/subprocess"
)

const defaultTimeout = 5 * time.Minute

// Converter invokes ffmpeg to transcode .wav assets to .ogg.
type Converter struct {
	Runner  *subprocess.Runner
	Timeout time.Duration
}

func New(runner *subprocess.Runner) *Converter {
	return &Converter{Runner: runner, Timeout: defaultTimeout}
}

func (c *Converter) SupportedExtensions() []string { return []string{".wav"} }

func (c *Converter) CanConvert(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
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

	args := []string{"-y", "-i", src, "-c:a", "libvorbis", dst}
	if _, err := c.Runner.Run(context.Background(), "ffmpeg", args, c.Timeout, ""); err != nil {
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
