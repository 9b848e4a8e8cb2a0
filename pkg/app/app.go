package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/krkrport/mnemonic/pkg/config"
	"github.com/krkrport/mnemonic/pkg/errs"
	"github.com/krkrport/mnemonic/pkg/fetch"
	"github.com/krkrport/mnemonic/pkg/log"
	"github.com/krkrport/mnemonic/pkg/pipeline"
)

// shellProjectURLTemplate and companionSourceURLTemplate point at the
// upstream hosting of the krkrsdl2 shell project and its companion Java
// sources, pinned by version/commit respectively.
const (
	shellProjectURLTemplate    = "https://github.com/uyjulian/krkrsdl2/releases/download/%s/krkrsdl2_universal.zip"
	companionSourceURLTemplate = "https://raw.githubusercontent.com/libsdl-org/SDL/%s/android-project/app/src/main/java/org/libsdl/app/%s"
)

// App struct
type App struct {
	closers []io.Closer

	Config       config.PipelineConfig
	Log          *logrus.Entry
	Orchestrator *pipeline.Orchestrator
}

// NewApp bootstrap a new application
func NewApp(cfg config.PipelineConfig, logOpts log.Options) *App {
	cfg = cfg.WithDefaults()

	app := &App{
		closers: []io.Closer{},
		Config:  cfg,
		Log:     log.NewLogger(logOpts),
	}

	orchestrator := pipeline.New(app.Log)
	orchestrator.ShellProjectURL = func(version string) string {
		return fmt.Sprintf(shellProjectURLTemplate, version)
	}
	orchestrator.CompanionSourceURL = func(fileName, tag string) string {
		return fmt.Sprintf(companionSourceURLTemplate, tag, fileName)
	}
	app.Orchestrator = orchestrator

	return app
}

// Run validates the configured input and drives the pipeline to completion.
func (app *App) Run(ctx context.Context) pipeline.Result {
	if problems := pipeline.Validate(app.Config); len(problems) > 0 {
		message := strings.Join(problems, "; ")
		return pipeline.Result{Success: false, ErrorMessage: message, Err: errors.New(message)}
	}
	return app.Orchestrator.Run(ctx, app.Config)
}

// ClearCache wipes every cache root the orchestrator maintains (templates
// and companion sources).
func (app *App) ClearCache() error {
	templateCache := fetch.NewTTLCache(app.Config.CacheRoot+"/templates", 0)
	companionCache := fetch.NewVersionMarkerCache(app.Config.CacheRoot+"/sdl2_sources", 0)

	if err := templateCache.Clear(); err != nil {
		return err
	}
	return companionCache.Clear()
}

// Close closes any resources
func (app *App) Close() error {
	for _, closer := range app.closers {
		err := closer.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

type errorMapping struct {
	kind    errs.Kind
	message string
}

// KnownError takes an error and tells us whether it's an error that we know
// about where we can print a nicely formatted version of it rather than
// panicking with a stack trace.
func (app *App) KnownError(err error) (string, bool) {
	kind := errs.KindOf(err)

	mappings := []errorMapping{
		{kind: errs.ToolNotFound, message: "a required external tool was not found on PATH (ffmpeg, fluidsynth, gradle, zipalign, apksigner, or keytool)"},
		{kind: errs.Encrypted, message: "this title's archive is encrypted and cannot be converted"},
		{kind: errs.TemplateUnavailable, message: "the Android shell project template could not be fetched and none is cached locally"},
		{kind: errs.NoEmbeddedArchive, message: "no embedded archive was found in the input executable"},
	}

	for _, mapping := range mappings {
		if kind == mapping.kind {
			return mapping.message, true
		}
	}

	return "", false
}
