package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/go-errors/errors"
	"github.com/integrii/flaggy"
	"github.com/jesseduffield/yaml"
	"github.com/samber/lo"

	"github.com/krkrport/mnemonic/pkg/app"
	"github.com/krkrport/mnemonic/pkg/config"
	applog "github.com/krkrport/mnemonic/pkg/log"
	"github.com/krkrport/mnemonic/pkg/utils"
)

const DEFAULT_VERSION = "unversioned"

var (
	commit      string
	version     = DEFAULT_VERSION
	date        string
	buildSource = "unknown"

	verboseFlag = false
	logFileFlag = ""

	inputPath       = ""
	outputPath      = ""
	packageName     = ""
	displayName     = ""
	keystorePath    = ""
	keystorePassEnv = ""
	skipVideo       = false
	quality         = "high"
	offline         = false
	shellVersion    = ""
	cacheTTLDays    = 0
	printConfigFlag = false
)

func main() {
	updateBuildInfo()

	info := fmt.Sprintf(
		"%s\nDate: %s\nBuildSource: %s\nCommit: %s\nOS: %s\nArch: %s",
		version,
		date,
		buildSource,
		commit,
		runtime.GOOS,
		runtime.GOARCH,
	)

	flaggy.SetName("mnemonic")
	flaggy.SetDescription("Converts Windows visual-novel distributions into installable Android packages")
	flaggy.DefaultParser.AdditionalHelpPrepend = "https://github.com/krkrport/mnemonic"

	flaggy.Bool(&verboseFlag, "v", "verbose", "Enable verbose logging")
	flaggy.String(&logFileFlag, "", "log-file", "Write structured logs to this file instead of staying quiet")
	flaggy.SetVersion(info)

	convertCmd := flaggy.NewSubcommand("convert")
	convertCmd.Description = "Convert a game distribution into a signed APK"
	convertCmd.String(&inputPath, "i", "input", "Path to the input .exe or .xp3 file")
	convertCmd.String(&outputPath, "o", "output", "Path to write the signed APK to")
	convertCmd.String(&packageName, "", "package-name", "Override the Android package name (default: derived from the detected title)")
	convertCmd.String(&displayName, "", "display-name", "Override the launcher display name")
	convertCmd.String(&keystorePath, "", "keystore", "Path to a release keystore (default: a synthesized debug keystore)")
	convertCmd.String(&keystorePassEnv, "", "keystore-pass-env", "Name of the environment variable holding the keystore password")
	convertCmd.Bool(&skipVideo, "", "skip-video", "Skip video transcoding, leaving video files untouched")
	convertCmd.String(&quality, "q", "quality", "Conversion quality tradeoff: high, medium, or low")
	convertCmd.Bool(&offline, "", "offline", "Fail instead of fetching the shell project or companion sources over the network")
	convertCmd.String(&shellVersion, "", "shell-version", "Pin the shell project version to fetch (default: latest)")
	convertCmd.Int(&cacheTTLDays, "", "cache-ttl-days", "Override the cache TTL in days (default: 7)")
	convertCmd.Bool(&printConfigFlag, "", "print-config", "Print the resolved configuration as YAML and exit without converting")
	flaggy.AttachSubcommand(convertCmd, 1)

	cacheCmd := flaggy.NewSubcommand("cache")
	cacheCmd.Description = "Manage the local template and companion-source cache"
	cacheClearCmd := flaggy.NewSubcommand("clear")
	cacheClearCmd.Description = "Remove every cached shell project and companion source file"
	cacheCmd.AttachSubcommand(cacheClearCmd, 1)
	flaggy.AttachSubcommand(cacheCmd, 1)

	flaggy.Parse()

	logOpts := applog.Options{Verbose: verboseFlag, LogFile: logFileFlag, Version: version}

	if cacheCmd.Used && cacheClearCmd.Used {
		runClearCache(logOpts)
		return
	}

	if !convertCmd.Used {
		flaggy.ShowHelpAndExit("")
		return
	}

	runConvert(logOpts)
}

func runClearCache(logOpts applog.Options) {
	a := app.NewApp(config.PipelineConfig{CacheRoot: config.DefaultCacheRoot()}, logOpts)
	if err := a.ClearCache(); err != nil {
		applog.NewLogger(logOpts).WithError(err).Error("failed to clear cache")
		os.Exit(1)
	}
}

func runConvert(logOpts applog.Options) {
	cfg := config.PipelineConfig{
		InputPath:           inputPath,
		OutputPath:          outputPath,
		PackageName:         packageName,
		DisplayName:         displayName,
		KeystorePath:        keystorePath,
		KeystorePassEnv:     keystorePassEnv,
		SkipVideo:           skipVideo,
		Quality:             config.QualityTag(quality),
		Offline:             offline,
		ShellProjectVersion: shellVersion,
		CacheTTLDays:        cacheTTLDays,
		Verbose:             verboseFlag,
		LogFile:             logFileFlag,
	}.WithDefaults()

	if printConfigFlag {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			log.Fatal(err.Error())
		}
		fmt.Printf("%s\n", out)
		os.Exit(0)
	}

	a := app.NewApp(cfg, logOpts)
	defer a.Close()

	result := a.Run(context.Background())
	if result.Success {
		fmt.Printf("wrote %s\n", result.OutputPath)
		return
	}

	if errMessage, known := a.KnownError(result.Err); known {
		log.Println(errMessage)
		os.Exit(1)
	}

	newErr := errors.Wrap(result.Err, 0)
	a.Log.Error(newErr.ErrorStack())
	log.Fatalf("conversion failed after phases %v\n\n%s", result.CompletedPhases, newErr.ErrorStack())
}

func updateBuildInfo() {
	if version == DEFAULT_VERSION {
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			revision, ok := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
				return setting.Key == "vcs.revision"
			})
			if ok {
				commit = revision.Value
				// if mnemonic was built from source we'll show the version as the
				// abbreviated commit hash
				version = utils.SafeTruncate(revision.Value, 7)
			}

			// if version hasn't been set we assume that neither has the date
			time, ok := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
				return setting.Key == "vcs.time"
			})
			if ok {
				date = time.Value
			}
		}
	}
}
