// Package subprocess wraps external-tool invocation: discovery (env var
// preferred, else PATH), timeout enforcement, and translating exec failures
// into the pipeline's tagged error kinds. Every external collaborator named
// in spec.md §6 (java, ffmpeg, fluidsynth, zipalign, apksigner, keytool, the
// build-tool wrapper) goes through a Runner rather than calling os/exec
// directly, so that timeout and error-classification policy lives in one
// place.
package subprocess

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krkrport/mnemonic/pkg/errs"
)

// Platform stores per-OS invocation details.
type Platform struct {
	os    string
	shell string
}

// Runner discovers and executes external tool binaries.
type Runner struct {
	Log      *logrus.Entry
	Platform *Platform

	// EnvOverrides maps a tool name ("ffmpeg") to the environment variable
	// that, if set, names its binary path directly ("FFMPEG_PATH").
	EnvOverrides map[string]string

	lookPath func(string) (string, error)
	getenv   func(string) string
}

// NewRunner builds a Runner with the standard env-var-then-PATH discovery
// policy from §6.
func NewRunner(log *logrus.Entry) *Runner {
	return &Runner{
		Log:      log,
		Platform: getPlatform(),
		EnvOverrides: map[string]string{
			"java":       "JAVA_HOME_BIN",
			"ffmpeg":     "FFMPEG_PATH",
			"fluidsynth": "FLUIDSYNTH_PATH",
			"zipalign":   "ZIPALIGN_PATH",
			"apksigner":  "APKSIGNER_PATH",
			"keytool":    "KEYTOOL_PATH",
			"gradlew":    "GRADLE_WRAPPER_PATH",
		},
		lookPath: exec.LookPath,
		getenv:   os.Getenv,
	}
}

// Resolve finds the absolute path to a named tool, preferring an explicit
// env var over a PATH search. Returns a ToolNotFound error if neither
// yields a usable binary.
func (r *Runner) Resolve(tool string) (string, error) {
	if envVar, ok := r.EnvOverrides[tool]; ok {
		if p := r.getenv(envVar); p != "" {
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	p, err := r.lookPath(tool)
	if err != nil {
		return "", errs.New(errs.ToolNotFound, tool, "not found in PATH or override env var")
	}
	return p, nil
}

// Result is the outcome of a single tool invocation.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Run resolves and executes tool with args, honoring timeout. On nonzero
// exit it returns a ToolFailed error carrying the captured stderr; on
// context deadline it returns a TimeoutError; on missing binary it returns
// ToolNotFound (bubbled up unchanged from Resolve).
func (r *Runner) Run(ctx context.Context, tool string, args []string, timeout time.Duration, dir string) (Result, error) {
	path, err := r.Resolve(tool)
	if err != nil {
		return Result{}, err
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, path, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	prepareGroup(cmd)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	before := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(before)

	r.Log.WithFields(logrus.Fields{"tool": tool, "args": args, "elapsed": elapsed}).Debug("subprocess finished")

	if runCtx.Err() == context.DeadlineExceeded {
		_ = killGroup(cmd)
		return Result{Stdout: stdout.String(), Stderr: stderr.String(), Duration: elapsed},
			errs.New(errs.TimeoutError, tool, "exceeded timeout of "+timeout.String())
	}

	if runErr != nil {
		return Result{Stdout: stdout.String(), Stderr: stderr.String(), Duration: elapsed},
			errs.New(errs.ToolFailed, tool, strings.TrimSpace(stderr.String()))
	}

	return Result{Stdout: stdout.String(), Stderr: stderr.String(), Duration: elapsed}, nil
}

// Probe checks a tool resolves and responds to --version within the
// dependency-probing timeout, without treating failure as fatal - callers
// use this for an early, user-facing "missing tool" diagnostic.
func (r *Runner) Probe(ctx context.Context, tool string, versionFlag string, timeout time.Duration) error {
	_, err := r.Run(ctx, tool, []string{versionFlag}, timeout, "")
	return err
}
