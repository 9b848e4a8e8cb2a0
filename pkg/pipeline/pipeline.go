// Package pipeline implements the five-phase orchestrator (spec.md §4.10):
// analyze, extract, convert, build, sign. It is the one component that
// calls into every other package in this module.
package pipeline

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/krkrport/mnemonic/pkg/classifier"
	"github.com/krkrport/mnemonic/pkg/compose"
	"github.com/krkrport/mnemonic/pkg/config"
	"github.com/krkrport/mnemonic/pkg/convert"
	"github.com/krkrport/mnemonic/pkg/convert/audio"
	"github.com/krkrport/mnemonic/pkg/convert/imageconv"
	"github.com/krkrport/mnemonic/pkg/convert/midi"
	"github.com/krkrport/mnemonic/pkg/convert/script"
	"github.com/krkrport/mnemonic/pkg/convert/text"
	"github.com/krkrport/mnemonic/pkg/convert/video"
	"github.com/krkrport/mnemonic/pkg/errs"
	"github.com/krkrport/mnemonic/pkg/fetch"
	"github.com/krkrport/mnemonic/pkg/gamestructure"
	"github.com/krkrport/mnemonic/pkg/scanner"
	"github.com/krkrport/mnemonic/pkg/subprocess"
	"github.com/krkrport/mnemonic/pkg/utils"
	"github.com/krkrport/mnemonic/pkg/xp3"
)

// Progress is the shape of the orchestrator's progress callback (spec.md §6).
type Progress struct {
	Phase   config.Phase
	Current int
	Total   int
	Message string
}

// ProgressFunc receives a Progress update; implementations should not block.
type ProgressFunc func(Progress)

// Result is the pipeline's outcome (spec.md §6 exit contract).
type Result struct {
	Success         bool
	OutputPath      string
	ErrorMessage    string
	Err             error // the underlying error, preserved for errs.KindOf classification
	CompletedPhases []config.Phase
	Statistics      map[string]float64
}

// Orchestrator drives a single pipeline run.
type Orchestrator struct {
	Log      *logrus.Entry
	Runner   *subprocess.Runner
	Fetcher  *fetch.Fetcher
	Progress ProgressFunc

	// ShellProjectURL renders the download URL for the pinned shell-project
	// archive version.
	ShellProjectURL func(version string) string
	// CompanionSourceURL renders a raw-file URL for a companion source file
	// name under the pinned commit tag.
	CompanionSourceURL func(fileName, tag string) string
}

// New builds an Orchestrator with the standard logging/subprocess/fetch
// stack (mirrors how lazydocker's app.go wires its command runners).
func New(log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		Log:     log,
		Runner:  subprocess.NewRunner(log),
		Fetcher: fetch.NewFetcher(60 * time.Second),
	}
}

// Validate runs the pre-flight checks from spec.md §4.10. A non-empty
// result means the pipeline must not run.
func Validate(cfg config.PipelineConfig) []string {
	var problems []string

	if _, err := os.Stat(cfg.InputPath); err != nil {
		problems = append(problems, fmt.Sprintf("input not found: %s", cfg.InputPath))
	}

	ext := strings.ToLower(filepath.Ext(cfg.InputPath))
	if ext != ".exe" && ext != ".xp3" {
		problems = append(problems, fmt.Sprintf("unsupported input extension: %s", ext))
	}

	if cfg.KeystorePath != "" {
		if _, err := os.Stat(cfg.KeystorePath); err != nil {
			problems = append(problems, fmt.Sprintf("keystore not found: %s", cfg.KeystorePath))
		}
	}

	return problems
}

// scopedDir allocates a uniquely-named temp directory and returns a cleanup
// function. Naming with uuid avoids collisions between concurrent pipeline
// runs sharing a parent temp root.
func scopedDir(parent, label string) (string, func() error, error) {
	dir := filepath.Join(parent, fmt.Sprintf("%s-%s", label, uuid.NewString()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, err
	}
	return dir, func() error { return os.RemoveAll(dir) }, nil
}

func (o *Orchestrator) emit(phase config.Phase, current, total int, message string) {
	if o.Progress == nil {
		return
	}
	o.Progress(Progress{Phase: phase, Current: current, Total: total, Message: message})
}

// Run executes the full analyze->extract->convert->build->sign pipeline.
func (o *Orchestrator) Run(ctx context.Context, cfg config.PipelineConfig) Result {
	cfg = cfg.WithDefaults()
	stats := map[string]float64{}
	var completed []config.Phase
	runStart := time.Now()

	var cleanups []func() error
	defer func() {
		for _, cleanup := range cleanups {
			if err := cleanup(); err != nil {
				o.Log.WithError(err).Warn("temp dir cleanup failed")
			}
		}
	}()

	runPhase := func(phase config.Phase, fn func() error) error {
		o.emit(phase, 0, 1, "starting "+string(phase))
		start := time.Now()
		err := fn()
		stats[string(phase)+"_time_seconds"] = time.Since(start).Seconds()
		if err != nil {
			return err
		}
		o.emit(phase, 1, 1, "completed "+string(phase))
		completed = append(completed, phase)
		return nil
	}

	var (
		extractRoot, convertRoot, projectRoot string
		detected                              gamestructure.Info
		unsignedAPK                           string
	)

	fail := func(err error) Result {
		stats["total_time_seconds"] = time.Since(runStart).Seconds()
		return Result{Success: false, ErrorMessage: err.Error(), Err: err, CompletedPhases: completed, Statistics: stats}
	}

	if err := runPhase(config.PhaseAnalyze, func() error {
		return o.analyze(cfg)
	}); err != nil {
		return fail(err)
	}

	if err := runPhase(config.PhaseExtract, func() error {
		dir, cleanup, err := scopedDir(os.TempDir(), "extract-root")
		if err != nil {
			return err
		}
		cleanups = append(cleanups, cleanup)
		extractRoot = dir

		if err := o.extract(cfg, extractRoot); err != nil {
			return err
		}
		detected = gamestructure.Detect(extractRoot)
		return nil
	}); err != nil {
		return fail(err)
	}

	var convertSummary convert.Summary
	if err := runPhase(config.PhaseConvert, func() error {
		dir, cleanup, err := scopedDir(os.TempDir(), "convert-root")
		if err != nil {
			return err
		}
		cleanups = append(cleanups, cleanup)
		convertRoot = dir

		summary, err := o.convert(cfg, extractRoot, convertRoot)
		convertSummary = summary
		return err
	}); err != nil {
		return fail(err)
	}
	stats["convert_success"] = float64(convertSummary.Success)
	stats["convert_failed"] = float64(convertSummary.Failed)
	stats["convert_skipped"] = float64(convertSummary.Skipped)

	packageName := cfg.PackageName
	if packageName == "" {
		packageName = FinalPackageName(titleOrStem(detected.Title, cfg.InputPath))
	}
	displayName := cfg.DisplayName
	if displayName == "" {
		displayName = titleOrStem(detected.Title, cfg.InputPath)
	}

	if err := runPhase(config.PhaseBuild, func() error {
		dir, cleanup, err := scopedDir(os.TempDir(), "project-root")
		if err != nil {
			return err
		}
		cleanups = append(cleanups, cleanup)
		projectRoot = dir

		apk, err := o.build(ctx, cfg, extractRoot, convertRoot, projectRoot, packageName, displayName)
		unsignedAPK = apk
		return err
	}); err != nil {
		return fail(err)
	}

	if err := runPhase(config.PhaseSign, func() error {
		return o.sign(ctx, cfg, unsignedAPK)
	}); err != nil {
		return fail(err)
	}

	stats["total_time_seconds"] = time.Since(runStart).Seconds()
	return Result{Success: true, OutputPath: cfg.OutputPath, CompletedPhases: completed, Statistics: stats}
}

func titleOrStem(title, inputPath string) string {
	if title != "" {
		return title
	}
	base := filepath.Base(inputPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// analyze implements spec.md §4.10's analyze phase.
func (o *Orchestrator) analyze(cfg config.PipelineConfig) error {
	ext := strings.ToLower(filepath.Ext(cfg.InputPath))
	switch ext {
	case ".exe":
		occurrences, err := scanner.ScanFile(cfg.InputPath)
		if err != nil {
			return err
		}
		if len(occurrences) == 0 {
			return errs.New(errs.NoEmbeddedArchive, cfg.InputPath, "no embedded archive magic found")
		}
		return nil
	case ".xp3":
		return xp3.RefuseIfEncrypted(cfg.InputPath)
	default:
		return errs.New(errs.UnsupportedInput, cfg.InputPath, "unsupported input extension")
	}
}

// extract implements spec.md §4.10's extract phase.
func (o *Orchestrator) extract(cfg config.PipelineConfig, extractRoot string) error {
	ext := strings.ToLower(filepath.Ext(cfg.InputPath))
	switch ext {
	case ".exe":
		scratchDir, cleanupScratch, err := scopedDir(os.TempDir(), "embedded-archives")
		if err != nil {
			return err
		}
		defer cleanupScratch()

		archivePaths, err := scanner.ExtractAll(cfg.InputPath, scratchDir)
		if err != nil {
			return err
		}
		for _, archivePath := range archivePaths {
			if err := xp3.RefuseIfEncrypted(archivePath); err != nil {
				return err
			}
			a, err := xp3.Open(archivePath)
			if err != nil {
				return err
			}
			err = a.ExtractAll(extractRoot)
			a.Close()
			if err != nil {
				return err
			}
		}
		return nil
	case ".xp3":
		a, err := xp3.Open(cfg.InputPath)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.ExtractAll(extractRoot)
	default:
		return errs.New(errs.UnsupportedInput, cfg.InputPath, "unsupported input extension")
	}
}

// convert implements spec.md §4.10's convert phase: copy, normalize
// case-sensitive names, then run the registered converters over only the
// files they recognize.
func (o *Orchestrator) convert(cfg config.PipelineConfig, extractRoot, convertRoot string) (convert.Summary, error) {
	if err := utils.CopyTree(extractRoot, convertRoot); err != nil {
		return convert.Summary{}, err
	}

	if err := normalizeCaseSensitiveNames(convertRoot); err != nil {
		return convert.Summary{}, err
	}

	manifest, err := classifier.Scan(convertRoot, cfg.ExcludeGlobs, toClassifierOverrides(cfg.Overrides))
	if err != nil {
		return convert.Summary{}, err
	}

	var pairs [][2]string
	for _, f := range manifest.Files {
		if f.Action == classifier.ActionCopy || f.Action == classifier.ActionSkip {
			continue
		}
		src := filepath.Join(convertRoot, f.RelPath)
		dst := src
		if f.TargetExt != "" {
			dst = strings.TrimSuffix(src, f.SourceExt) + f.TargetExt
		}
		pairs = append(pairs, [2]string{src, dst})
	}

	manager := convert.NewManager(o.converters(cfg), cfg.Retry, func(current, total int) {
		o.emit(config.PhaseConvert, current, total, "converting assets")
	})
	return manager.ConvertFiles(pairs), nil
}

func toClassifierOverrides(overrides []config.OverrideRule) []classifier.OverrideRule {
	out := make([]classifier.OverrideRule, len(overrides))
	for i, r := range overrides {
		out[i] = classifier.OverrideRule{Glob: r.Glob, Converter: classifier.Action(r.Converter)}
	}
	return out
}

func (o *Orchestrator) converters(cfg config.PipelineConfig) []convert.Converter {
	list := []convert.Converter{
		text.New(text.UTF8),
		imageconv.New(),
		audio.New(o.Runner),
		script.New(),
	}
	if !cfg.SkipVideo {
		list = append(list, video.New(o.Runner))
	}
	list = append(list, midi.New(o.Runner, defaultSoundFont()))
	return list
}

func defaultSoundFont() string {
	if sf := os.Getenv("MNEMONIC_SOUNDFONT"); sf != "" {
		return sf
	}
	return "/usr/share/sounds/sf2/default.sf2"
}

// normalizeCaseSensitiveNames lowercases every immediate child of
// system/, and renames a root-level Startup.tjs/STARTUP.TJS/StartUp.tjs to
// startup.tjs, matching what the target runtime expects.
func normalizeCaseSensitiveNames(root string) error {
	systemDir := filepath.Join(root, "system")
	entries, err := os.ReadDir(systemDir)
	if err == nil {
		for _, e := range entries {
			lower := strings.ToLower(e.Name())
			if lower != e.Name() {
				if err := os.Rename(filepath.Join(systemDir, e.Name()), filepath.Join(systemDir, lower)); err != nil {
					return err
				}
			}
		}
	}

	for _, variant := range []string{"Startup.tjs", "STARTUP.TJS", "StartUp.tjs"} {
		src := filepath.Join(root, variant)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, filepath.Join(root, "startup.tjs")); err != nil {
				return err
			}
		}
	}
	return nil
}

// build implements spec.md §4.10's build phase.
func (o *Orchestrator) build(ctx context.Context, cfg config.PipelineConfig, extractRoot, convertRoot, projectRoot, packageName, displayName string) (string, error) {
	version := cfg.ShellProjectVersion
	if version == "" {
		version = "latest"
	}

	shellCache := fetch.NewTTLCache(filepath.Join(cfg.CacheRoot, "templates"), time.Duration(cfg.CacheTTLDays)*24*time.Hour)
	shellArchiveName := "shell-project.zip"

	if !shellCache.Valid("shell-project", version) {
		if cfg.Offline {
			return "", errs.New(errs.TemplateUnavailable, "shell-project", "no cached template and offline mode is set")
		}
		if o.ShellProjectURL == nil {
			return "", errs.New(errs.TemplateUnavailable, "shell-project", "no shell-project URL configured")
		}
		body, err := o.Fetcher.Get(ctx, o.ShellProjectURL(version))
		if err != nil {
			return "", errs.New(errs.TemplateUnavailable, "shell-project", err.Error())
		}
		if err := shellCache.Save("shell-project", version, shellArchiveName, body); err != nil {
			return "", err
		}
	}

	shellArchivePath := filepath.Join(shellCache.Path("shell-project"), shellArchiveName)
	if err := extractZipArchive(shellArchivePath, projectRoot); err != nil {
		return "", err
	}

	companionCache := fetch.NewVersionMarkerCache(filepath.Join(cfg.CacheRoot, "sdl2_sources"), fetch.DefaultCompanionSourceTTL)
	iconPath := locateIcon(extractRoot)
	companionFetcher := o.Fetcher
	if cfg.Offline {
		companionFetcher = nil
	}

	composeErr := compose.Compose(ctx, compose.Config{
		ProjectRoot:    projectRoot,
		PackageName:    packageName,
		DisplayName:    displayName,
		AssetDir:       convertRoot,
		IconPath:       iconPath,
		ShellAPKPath:   filepath.Join(projectRoot, "krkrsdl2_universal.apk"),
		Fetcher:        companionFetcher,
		CompanionCache: companionCache,
		CompanionSource: func(name string) string {
			if o.CompanionSourceURL != nil {
				return o.CompanionSourceURL(name, companionCommitTag)
			}
			return ""
		},
	})
	if composeErr != nil {
		return "", composeErr
	}

	if _, err := o.Runner.Run(ctx, "gradlew", []string{"assembleRelease"}, cfg.Timeouts.BuildTool, projectRoot); err != nil {
		return "", err
	}

	return findOutputAPK(projectRoot)
}

const companionCommitTag = "53dea9830964eee8b5c2a7ee0a65d6e268dc78a1"

// extractZipArchive unpacks every entry of a zip archive (the cached
// shell-project download) under dest, preserving its directory structure.
func extractZipArchive(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(dest, f.Name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := copyZipEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func copyZipEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func locateIcon(extractRoot string) string {
	for _, name := range []string{"icon.png", "icon.ico", "icon.bmp"} {
		p := filepath.Join(extractRoot, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func findOutputAPK(projectRoot string) (string, error) {
	outDir := filepath.Join(projectRoot, "app", "build", "outputs", "apk", "release")
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", errs.New(errs.NotFound, outDir, "no build output directory")
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "-unsigned.apk") || strings.HasSuffix(e.Name(), ".apk") {
			return filepath.Join(outDir, e.Name()), nil
		}
	}
	return "", errs.New(errs.NotFound, outDir, "no apk produced by build tool")
}

// sign implements spec.md §4.10's sign phase.
func (o *Orchestrator) sign(ctx context.Context, cfg config.PipelineConfig, unsignedAPK string) error {
	alignedAPK := unsignedAPK + ".aligned"
	defer os.Remove(alignedAPK)

	if _, err := o.Runner.Run(ctx, "zipalign", []string{"-p", "-f", "4", unsignedAPK, alignedAPK}, cfg.Timeouts.ArchiveBuild, ""); err != nil {
		return err
	}

	keystorePath := cfg.KeystorePath
	if keystorePath == "" {
		var err error
		keystorePath, err = o.synthesizeDebugKeystore(ctx, cfg)
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
		return err
	}
	if err := utils.CopyFile(alignedAPK, cfg.OutputPath); err != nil {
		return err
	}

	keystorePass := o.keystorePassword(cfg)
	args := []string{"sign", "--ks", keystorePath, "--ks-pass", "pass:" + keystorePass, cfg.OutputPath}
	_, err := o.Runner.Run(ctx, "apksigner", args, cfg.Timeouts.ArchiveBuild, "")
	return err
}

func (o *Orchestrator) keystorePassword(cfg config.PipelineConfig) string {
	if cfg.KeystorePassEnv != "" {
		if pass := os.Getenv(cfg.KeystorePassEnv); pass != "" {
			return pass
		}
	}
	return "android"
}

func (o *Orchestrator) synthesizeDebugKeystore(ctx context.Context, cfg config.PipelineConfig) (string, error) {
	path := filepath.Join(cfg.CacheRoot, "debug.keystore")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	args := []string{
		"-genkeypair", "-v",
		"-keystore", path,
		"-alias", "androiddebugkey",
		"-keyalg", "RSA", "-keysize", "2048",
		"-validity", "10000",
		"-storepass", "android", "-keypass", "android",
		"-dname", "CN=Debug,O=Android,C=US",
	}
	if _, err := o.Runner.Run(ctx, "keytool", args, cfg.Timeouts.Keytool, ""); err != nil {
		return "", err
	}
	return path, nil
}
