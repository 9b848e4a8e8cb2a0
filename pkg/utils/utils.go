// Package utils collects small generic helpers shared across components
// that don't warrant their own package.
package utils

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	archive "github.com/moby/go-archive"
)

// NormalizeLinefeeds converts Windows (\r\n) and Mac (\r) style line breaks
// to bare \n.
func NormalizeLinefeeds(str string) string {
	str = strings.Replace(str, "\r\n", "\n", -1)
	str = strings.Replace(str, "\r", "\n", -1)
	return str
}

// FormatBinaryBytes renders a byte count using binary (1024-based) units.
func FormatBinaryBytes(b int64) string {
	n := float64(b)
	units := []string{"B", "kiB", "MiB", "GiB", "TiB"}
	for _, unit := range units {
		if n >= math.Pow(2, 10) {
			n /= math.Pow(2, 10)
		} else {
			return trimZero(n, unit)
		}
	}
	return "a lot"
}

func trimZero(n float64, unit string) string {
	val := fmt.Sprintf("%.2f%s", n, unit)
	if val == fmt.Sprintf("0.00%s", unit) {
		return "0B"
	}
	return val
}

// multiErr aggregates independent failures (e.g. releasing several scoped
// temp directories) into a single error without losing any of them.
type multiErr []error

func (m multiErr) Error() string {
	var b bytes.Buffer
	b.WriteString("encountered multiple errors:")
	for _, err := range m {
		b.WriteString("\n\t... " + err.Error())
	}
	return b.String()
}

// CloseMany closes every io.Closer, continuing past individual failures,
// and returns an aggregate error if any occurred, so one failed Close
// doesn't stop the others from running.
func CloseMany(closers []io.Closer) error {
	errs := make([]error, 0, len(closers))
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return multiErr(errs)
	}
	return nil
}

// SafeTruncate returns str truncated to limit bytes (main.go uses it to
// shorten the VCS revision into a version string).
func SafeTruncate(str string, limit int) string {
	if len(str) > limit {
		return str[0:limit]
	}
	return str
}

// CopyFile copies src to dst, creating dst's parent directory and
// preserving the source's file mode.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// CopyTree recursively copies everything under src into dst, preserving the
// relative directory structure. Used by the convert phase (extract-root ->
// convert-root) and the composer's asset placement step. Delegates to
// moby/go-archive's tar-backed copy rather than walking the tree by hand,
// same as lazydocker's own container-layer copies.
func CopyTree(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return archive.CopyWithTar(src, dst)
}
