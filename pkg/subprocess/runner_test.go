package subprocess

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/krkrport/mnemonic/pkg/errs"
)

func newTestRunner() *Runner {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewRunner(l.WithField("test", true))
}

func TestRunSuccess(t *testing.T) {
	r := newTestRunner()
	res, err := r.Run(context.Background(), "echo", []string{"-n", "123"}, time.Second, "")
	assert.NoError(t, err)
	assert.Equal(t, "123", res.Stdout)
}

func TestRunNonzeroExitIsToolFailed(t *testing.T) {
	r := newTestRunner()
	_, err := r.Run(context.Background(), "false", nil, time.Second, "")
	assert.Equal(t, errs.ToolFailed, errs.KindOf(err))
}

func TestRunMissingToolIsToolNotFound(t *testing.T) {
	r := newTestRunner()
	_, err := r.Run(context.Background(), "definitely-not-a-real-binary-xyz", nil, time.Second, "")
	assert.Equal(t, errs.ToolNotFound, errs.KindOf(err))
}

func TestRunTimeout(t *testing.T) {
	r := newTestRunner()
	_, err := r.Run(context.Background(), "sleep", []string{"5"}, 50*time.Millisecond, "")
	assert.Equal(t, errs.TimeoutError, errs.KindOf(err))
}

func TestResolvePrefersEnvOverride(t *testing.T) {
	r := newTestRunner()
	override := filepath.Join(t.TempDir(), "ffmpeg-override")
	assert.NoError(t, os.WriteFile(override, []byte{}, 0o755))
	r.getenv = func(k string) string {
		if k == "FFMPEG_PATH" {
			return override
		}
		return ""
	}
	// PATH lookup always fails here, so only the override can resolve it.
	r.lookPath = func(string) (string, error) { return "", errors.New("not on PATH") }
	p, err := r.Resolve("ffmpeg")
	assert.NoError(t, err)
	assert.Equal(t, override, p)
}
