// Package config holds the data-model records the rest of the pipeline is
// configured and driven with. Reading these values from a file on disk is
// the command-line surface's job (out of scope here, see spec.md §1) - this
// package only defines the shapes and sane defaults, including the default
// cache root (DefaultCacheRoot).
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/OpenPeeDeeP/xdg"
)

// Phase identifies one of the five strictly-ordered pipeline stages.
type Phase string

const (
	PhaseAnalyze Phase = "analyze"
	PhaseExtract Phase = "extract"
	PhaseConvert Phase = "convert"
	PhaseBuild   Phase = "build"
	PhaseSign    Phase = "sign"
)

// AllPhases lists the phases in their mandated execution order.
var AllPhases = []Phase{PhaseAnalyze, PhaseExtract, PhaseConvert, PhaseBuild, PhaseSign}

// RetryConfig governs the per-task retry/backoff schedule used by the
// converter manager (C6). Attempt k (1-indexed, after a failure) sleeps
// BackoffBase * BackoffMultiplier^(k-1) before attempt k+1.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"maxAttempts,omitempty"`
	BackoffBase       float64 `yaml:"backoffBase,omitempty"`
	BackoffMultiplier float64 `yaml:"backoffMultiplier,omitempty"`
}

// Backoff returns the sleep duration before attempt k+1, given attempt k
// just failed (k is 1-indexed).
func (r RetryConfig) Backoff(k int) time.Duration {
	seconds := r.BackoffBase * pow(r.BackoffMultiplier, k-1)
	return time.Duration(seconds * float64(time.Second))
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// DefaultRetryConfig matches the defaults implied by the converter manager's
// exponential-backoff contract: three attempts total, one second base delay,
// doubling each retry.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BackoffBase: 1.0, BackoffMultiplier: 2.0}
}

// ToolTimeouts holds the per-external-tool timeout budget (§5 Cancellation
// & timeouts).
type ToolTimeouts struct {
	MediaTranscoder    time.Duration `yaml:"mediaTranscoder,omitempty"`
	ArchiveDecode       time.Duration `yaml:"archiveDecode,omitempty"`
	ArchiveBuild        time.Duration `yaml:"archiveBuild,omitempty"`
	BuildTool           time.Duration `yaml:"buildTool,omitempty"`
	Keytool             time.Duration `yaml:"keytool,omitempty"`
	ToolProbe           time.Duration `yaml:"toolProbe,omitempty"`
}

// DefaultToolTimeouts reproduces the default timeout budget named in §5.
func DefaultToolTimeouts() ToolTimeouts {
	return ToolTimeouts{
		MediaTranscoder: 300 * time.Second,
		ArchiveDecode:   120 * time.Second,
		ArchiveBuild:    300 * time.Second,
		BuildTool:       1800 * time.Second,
		Keytool:         30 * time.Second,
		ToolProbe:       10 * time.Second,
	}
}

// QualityTag selects the converter quality/size tradeoff.
type QualityTag string

const (
	QualityHigh   QualityTag = "high"
	QualityMedium QualityTag = "medium"
	QualityLow    QualityTag = "low"
)

// WebpQuality maps a quality tag to a WebP encoder quality level. The image
// converter (C7b) does not read it: its WebP encode passes no quality
// setting.
func (q QualityTag) WebpQuality() int {
	switch q {
	case QualityMedium:
		return 85
	case QualityLow:
		return 70
	default:
		return 95
	}
}

// OverrideRule is one (glob, converter-name) classifier override entry.
type OverrideRule struct {
	Glob      string `yaml:"glob"`
	Converter string `yaml:"converter"`
}

// PipelineConfig is the immutable configuration for a single pipeline run
// (§3 Data model).
type PipelineConfig struct {
	InputPath       string `yaml:"inputPath"`
	OutputPath      string `yaml:"outputPath"`
	PackageName     string `yaml:"packageName,omitempty"`
	DisplayName     string `yaml:"displayName,omitempty"`
	KeystorePath    string `yaml:"keystorePath,omitempty"`
	KeystorePassEnv string `yaml:"keystorePassEnv,omitempty"`

	SkipVideo  bool       `yaml:"skipVideo,omitempty"`
	Quality    QualityTag `yaml:"quality,omitempty"`
	CleanCache bool       `yaml:"cleanCache,omitempty"`
	Verbose    bool       `yaml:"verbose,omitempty"`
	LogFile    string     `yaml:"logFile,omitempty"`

	ShellProjectVersion string `yaml:"shellProjectVersion,omitempty"`
	CacheTTLDays        int    `yaml:"cacheTtlDays,omitempty"`
	Offline             bool   `yaml:"offline,omitempty"`

	CacheRoot string `yaml:"cacheRoot,omitempty"`

	Retry        RetryConfig    `yaml:"retry,omitempty"`
	Timeouts     ToolTimeouts   `yaml:"timeouts,omitempty"`
	Overrides    []OverrideRule `yaml:"overrides,omitempty"`
	ExcludeGlobs []string       `yaml:"excludeGlobs,omitempty"`
}

// WithDefaults returns a copy of c with zero-valued fields replaced by the
// pipeline's documented defaults. The caller (command-line surface) is
// expected to run every config through this before handing it to the
// orchestrator.
func (c PipelineConfig) WithDefaults() PipelineConfig {
	if c.Quality == "" {
		c.Quality = QualityHigh
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = DefaultRetryConfig()
	}
	if (c.Timeouts == ToolTimeouts{}) {
		c.Timeouts = DefaultToolTimeouts()
	}
	if c.CacheTTLDays == 0 {
		c.CacheTTLDays = 7
	}
	if c.CacheRoot == "" {
		c.CacheRoot = DefaultCacheRoot()
	}
	return c
}

// DefaultCacheRoot resolves "<user-cache-root>/mnemonic" the way lazydocker
// resolves its own config directory: prefer an explicit env override, then
// fall back to the OS convention via xdg.
func DefaultCacheRoot() string {
	if envDir := os.Getenv("MNEMONIC_CACHE_DIR"); envDir != "" {
		return envDir
	}
	dirs := xdg.New("", "mnemonic")
	return filepath.Join(dirs.CacheHome())
}
