// Package video implements the video transcoder converter (spec.md §4.7):
// drives the ffmpeg subprocess to re-encode legacy video containers as MP4.
package video

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

var sourceExtensions = []string{".mpg", ".mpeg", ".wmv", ".avi"}

// Converter invokes ffmpeg to transcode legacy video assets to .mp4.
type Converter struct {
	Runner  *subprocess.Runner
	Timeout time.Duration
}

func New(runner *subprocess.Runner) *Converter {
	return &Converter{Runner: runner, Timeout: defaultTimeout}
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

	args := []string{"-y", "-i", src, "-c:v", "libx264", "-c:a", "aac", dst}
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
