// Package compose implements the Android project composer (spec.md §4.9):
// given a freshly extracted shell-project template, wires in native
// libraries, companion Java sources, plugin binaries, a generated host
// activity, and the manifest/build-file/string/icon rewrites that turn the
// template into a buildable, game-specific Gradle project.
package compose

import (
	"archive/zip"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/krkrport/mnemonic/pkg/errs"
	"github.com/krkrport/mnemonic/pkg/fetch"
	"github.com/krkrport/mnemonic/pkg/utils"
)

var supportedABIs = []string{"arm64-v8a", "armeabi-v7a", "x86", "x86_64"}

// Config carries every input the composer's steps need; fields left zero
// skip their corresponding optional step (plugin binaries, asset dir), and a
// zero IconPath makes the icon step synthesize launcher icons instead.
type Config struct {
	ProjectRoot  string
	PackageName  string
	DisplayName  string
	AssetDir     string // optional: game files to embed
	IconPath     string // optional: pre-made launcher icon
	ShellAPKPath string // bundled shell APK carrying the prebuilt native libs

	// PluginBinaries maps plugin name -> ABI -> source .so path.
	PluginBinaries map[string]map[string]string

	Fetcher         *fetch.Fetcher
	CompanionCache  *fetch.VersionMarkerCache
	CompanionTag    string
	CompanionSource func(fileName string) string // file name -> raw-file URL
}

// companionSources is the required file set from spec.md §6, pinned to a
// specific commit tag.
var companionSources = []string{
	"SDLActivity.java", "SDL.java", "SDLAudioManager.java",
	"SDLControllerManager.java", "HIDDevice.java", "HIDDeviceManager.java",
	"HIDDeviceUSB.java", "HIDDeviceBLESteamController.java",
}

const defaultCompanionTag = "53dea9830964eee8b5c2a7ee0a65d6e268dc78a1"

// Compose runs every step from spec.md §4.9 in order.
func Compose(ctx context.Context, cfg Config) error {
	if err := ExtractNativeLibs(cfg.ShellAPKPath, cfg.ProjectRoot); err != nil {
		return err
	}
	if err := FetchCompanionSources(ctx, cfg); err != nil {
		return err
	}
	if err := PlacePluginBinaries(cfg.PluginBinaries, cfg.ProjectRoot); err != nil {
		return err
	}
	if err := GenerateHostActivity(cfg.ProjectRoot, cfg.PackageName); err != nil {
		return err
	}
	if err := RewriteBuildGradle(cfg.ProjectRoot, cfg.PackageName); err != nil {
		return err
	}
	if err := RewriteManifest(cfg.ProjectRoot); err != nil {
		return err
	}
	if err := WriteStringsXML(cfg.ProjectRoot, cfg.DisplayName); err != nil {
		return err
	}
	if cfg.AssetDir != "" {
		if err := PlaceAssets(cfg.ProjectRoot, cfg.AssetDir); err != nil {
			return err
		}
	}
	if cfg.IconPath != "" {
		if err := PlaceIcon(cfg.ProjectRoot, cfg.IconPath); err != nil {
			return err
		}
	} else {
		if err := SynthesizeIcons(cfg.ProjectRoot); err != nil {
			return err
		}
	}
	return nil
}

// ExtractNativeLibs opens the bundled shell APK (a zip archive) and copies
// every lib/<abi>/*.so entry into the project's jniLibs tree.
func ExtractNativeLibs(shellAPKPath, projectRoot string) error {
	r, err := zip.OpenReader(shellAPKPath)
	if err != nil {
		return errs.New(errs.JniLibsNotFound, shellAPKPath, "could not open shell apk: "+err.Error())
	}
	defer r.Close()

	found := 0
	for _, f := range r.File {
		abi, name, ok := matchJniLibEntry(f.Name)
		if !ok {
			continue
		}
		dst := filepath.Join(projectRoot, "app", "src", "main", "jniLibs", abi, name)
		if err := extractZipEntry(f, dst); err != nil {
			return err
		}
		found++
	}
	if found == 0 {
		return errs.New(errs.JniLibsNotFound, shellAPKPath, "no lib/<abi>/*.so entries found")
	}
	return nil
}

func matchJniLibEntry(name string) (abi, fileName string, ok bool) {
	parts := strings.Split(filepath.ToSlash(name), "/")
	if len(parts) != 3 || parts[0] != "lib" {
		return "", "", false
	}
	if !strings.HasSuffix(parts[2], ".so") {
		return "", "", false
	}
	for _, a := range supportedABIs {
		if parts[1] == a {
			return a, parts[2], true
		}
	}
	return "", "", false
}

func extractZipEntry(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// FetchCompanionSources downloads the pinned SDL companion Java sources
// through cfg.Fetcher/cfg.CompanionCache, falling back to the cache when a
// valid entry already exists for the pinned tag.
func FetchCompanionSources(ctx context.Context, cfg Config) error {
	tag := cfg.CompanionTag
	if tag == "" {
		tag = defaultCompanionTag
	}
	dest := filepath.Join(cfg.ProjectRoot, "app", "src", "main", "java", "org", "libsdl", "app")

	for _, name := range companionSources {
		if cfg.CompanionCache != nil && cfg.CompanionCache.Valid(name, tag) {
			cached := filepath.Join(cfg.CompanionCache.Path(name), name)
			if err := utils.CopyFile(cached, filepath.Join(dest, name)); err == nil {
				continue
			}
		}

		if cfg.Fetcher == nil || cfg.CompanionSource == nil {
			return errs.New(errs.CompanionFetch, name, "no fetcher configured and no cache entry available")
		}

		body, err := cfg.Fetcher.Get(ctx, cfg.CompanionSource(name))
		if err != nil {
			return errs.New(errs.CompanionFetch, name, err.Error())
		}
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dest, name), body, 0o644); err != nil {
			return err
		}
		if cfg.CompanionCache != nil {
			_ = cfg.CompanionCache.Save(name, tag, name, body)
		}
	}

	return nil
}

// PlacePluginBinaries copies each (plugin, abi) binary to
// jniLibs/<abi>/lib<plugin>.so.
func PlacePluginBinaries(plugins map[string]map[string]string, projectRoot string) error {
	for plugin, byABI := range plugins {
		for abi, src := range byABI {
			dst := filepath.Join(projectRoot, "app", "src", "main", "jniLibs", abi, "lib"+plugin+".so")
			if err := utils.CopyFile(src, dst); err != nil {
				return err
			}
		}
	}
	return nil
}

const activityTemplate = `package %s;

import java.io.File;
import java.io.FileOutputStream;
import java.io.IOException;
import java.io.InputStream;

import org.libsdl.app.SDLActivity;

public class KirikiriSDL2Activity extends SDLActivity {
    private static final int COPY_BUFFER_SIZE = 8192;

    @Override
    protected void onCreate(android.os.Bundle savedInstanceState) {
        copyAssetsOnFirstRun();
        super.onCreate(savedInstanceState);
    }

    @Override
    protected String[] getLibraries() {
        return super.getLibraries();
    }

    @Override
    protected String getMainSharedObject() {
        String libDir = getApplicationInfo().nativeLibraryDir;
        return libDir + "/libmain.so";
    }

    private void copyAssetsOnFirstRun() {
        File dataDir = new File(getFilesDir(), "data");
        try {
            copyAssetDir("data", dataDir);
        } catch (IOException e) {
            // first-run asset copy failed; game will surface a missing-file error
        }
    }

    private void copyAssetDir(String assetPath, File destDir) throws IOException {
        String[] entries = getAssets().list(assetPath);
        if (entries == null || entries.length == 0) {
            copyAssetFile(assetPath, destDir);
            return;
        }
        if (!destDir.exists()) {
            destDir.mkdirs();
        }
        for (String entry : entries) {
            copyAssetDir(assetPath + "/" + entry, new File(destDir, entry));
        }
    }

    private void copyAssetFile(String assetPath, File dest) throws IOException {
        if (dest.exists()) {
            return;
        }
        dest.getParentFile().mkdirs();
        InputStream in = getAssets().open(assetPath);
        FileOutputStream out = new FileOutputStream(dest);
        byte[] buffer = new byte[COPY_BUFFER_SIZE];
        int read;
        while ((read = in.read(buffer)) != -1) {
            out.write(buffer, 0, read);
        }
        in.close();
        out.close();
    }
}
`

// GenerateHostActivity emits KirikiriSDL2Activity.java under the package's
// directory tree and removes the old template's hardcoded package tree if
// present.
func GenerateHostActivity(projectRoot, packageName string) error {
	packagePath := strings.ReplaceAll(packageName, ".", string(filepath.Separator))
	dir := filepath.Join(projectRoot, "app", "src", "main", "java", packagePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	content := fmt.Sprintf(activityTemplate, packageName)
	if err := os.WriteFile(filepath.Join(dir, "KirikiriSDL2Activity.java"), []byte(content), 0o644); err != nil {
		return err
	}

	oldTree := filepath.Join(projectRoot, "app", "src", "main", "java", "pw", "uyjulian", "krkrsdl2")
	if _, err := os.Stat(oldTree); err == nil {
		return os.RemoveAll(oldTree)
	}
	return nil
}

var (
	namespaceRe     = regexp.MustCompile(`namespace\s+"[^"]*"`)
	androidBlockRe  = regexp.MustCompile(`(?s)android\s*\{`)
	compileSdkRe    = regexp.MustCompile(`compileSdkVersion\s+\d+`)
	minSdkRe        = regexp.MustCompile(`minSdkVersion\s+\d+`)
	targetSdkRe     = regexp.MustCompile(`targetSdkVersion\s+\d+`)
	applicationIDRe = regexp.MustCompile(`applicationId\s+"[^"]*"`)
	cmakeBlockRe    = regexp.MustCompile(`(?s)externalNativeBuild\s*\{\s*cmake\s*\{.*?\}\s*\}`)
	ndkBuildBlockRe = regexp.MustCompile(`(?s)externalNativeBuild\s*\{\s*ndk\s*\{.*?\}\s*\}`)
	standaloneNdkRe = regexp.MustCompile(`(?s)ndk\s*\{\s*abiFilters[^}]*\}`)
)

// RewriteBuildGradle applies spec.md §4.9 step 5's edits to app/build.gradle.
func RewriteBuildGradle(projectRoot, packageName string) error {
	path := filepath.Join(projectRoot, "app", "build.gradle")
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text := string(data)

	if namespaceRe.MatchString(text) {
		text = namespaceRe.ReplaceAllString(text, fmt.Sprintf(`namespace "%s"`, packageName))
	} else if loc := androidBlockRe.FindStringIndex(text); loc != nil {
		insertAt := loc[1]
		text = text[:insertAt] + fmt.Sprintf("\n    namespace \"%s\"", packageName) + text[insertAt:]
	}

	text = compileSdkRe.ReplaceAllString(text, "compileSdkVersion 34")
	text = minSdkRe.ReplaceAllString(text, "minSdkVersion 21")
	text = targetSdkRe.ReplaceAllString(text, "targetSdkVersion 34")
	if applicationIDRe.MatchString(text) {
		text = applicationIDRe.ReplaceAllString(text, fmt.Sprintf(`applicationId "%s"`, packageName))
	}

	text = cmakeBlockRe.ReplaceAllString(text, "")
	text = ndkBuildBlockRe.ReplaceAllString(text, "")
	text = standaloneNdkRe.ReplaceAllString(text, "")

	return os.WriteFile(path, []byte(text), 0o644)
}

var (
	manifestPackageAttrRe = regexp.MustCompile(`\s+package="[^"]*"`)
	applicationTagRe      = regexp.MustCompile(`<application\b[^>]*>`)
	componentTagRe        = regexp.MustCompile(`<(activity|service|receiver)\b[^>]*?(/?)>`)
)

// RewriteManifest applies spec.md §4.9 step 6's edits to
// AndroidManifest.xml.
func RewriteManifest(projectRoot string) error {
	path := filepath.Join(projectRoot, "app", "src", "main", "AndroidManifest.xml")
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text := string(data)

	text = manifestPackageAttrRe.ReplaceAllString(text, "")

	if loc := applicationTagRe.FindString(text); loc != "" && !strings.Contains(loc, "android:extractNativeLibs") {
		replaced := insertBeforeTagClose(loc, ` android:extractNativeLibs="true"`)
		text = strings.Replace(text, loc, replaced, 1)
	}

	text = componentTagRe.ReplaceAllStringFunc(text, func(tag string) string {
		if strings.Contains(tag, "android:exported") {
			return tag
		}
		return insertBeforeTagClose(tag, ` android:exported="true"`)
	})

	return os.WriteFile(path, []byte(text), 0o644)
}

func insertBeforeTagClose(tag, attr string) string {
	if strings.HasSuffix(tag, "/>") {
		return strings.TrimRight(tag[:len(tag)-2], " ") + attr + " />"
	}
	return strings.TrimRight(tag[:len(tag)-1], " ") + attr + ">"
}

var appNameStringRe = regexp.MustCompile(`(?s)<string name="app_name">.*?</string>`)

// WriteStringsXML creates or updates strings.xml's app_name entry with the
// XML-escaped display name.
func WriteStringsXML(projectRoot, displayName string) error {
	path := filepath.Join(projectRoot, "app", "src", "main", "res", "values", "strings.xml")
	escaped := xmlEscape(displayName)
	entry := fmt.Sprintf(`<string name="app_name">%s</string>`, escaped)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		doc := "<?xml version=\"1.0\" encoding=\"utf-8\"?>\n<resources>\n    " + entry + "\n</resources>\n"
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return mkErr
		}
		return os.WriteFile(path, []byte(doc), 0o644)
	}

	text := string(data)
	if appNameStringRe.MatchString(text) {
		text = appNameStringRe.ReplaceAllString(text, entry)
	} else {
		text = strings.Replace(text, "</resources>", "    "+entry+"\n</resources>", 1)
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

func xmlEscape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(s)
}

// PlaceAssets recursively copies assetDir into the project's
// assets/data/ tree, overwriting existing files.
func PlaceAssets(projectRoot, assetDir string) error {
	dest := filepath.Join(projectRoot, "app", "src", "main", "assets", "data")
	return utils.CopyTree(assetDir, dest)
}

var iconDensities = map[string]int{
	"mdpi": 48, "hdpi": 72, "xhdpi": 96, "xxhdpi": 144, "xxxhdpi": 192,
}

// PlaceIcon copies a user-supplied icon as-is into every density bucket.
func PlaceIcon(projectRoot, iconPath string) error {
	for density := range iconDensities {
		dst := filepath.Join(projectRoot, "app", "src", "main", "res", "mipmap-"+density, "ic_launcher.png")
		if err := utils.CopyFile(iconPath, dst); err != nil {
			return err
		}
	}
	return nil
}

var defaultIconColor = color.RGBA{R: 0x3A, G: 0x5F, B: 0xCD, A: 0xFF}

// SynthesizeIcons generates solid-color square PNG launcher icons at every
// density when no icon was supplied.
func SynthesizeIcons(projectRoot string) error {
	for density, size := range iconDensities {
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				img.Set(x, y, defaultIconColor)
			}
		}

		dst := filepath.Join(projectRoot, "app", "src", "main", "res", "mipmap-"+density, "ic_launcher.png")
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		f, err := os.Create(dst)
		if err != nil {
			return err
		}
		err = png.Encode(f, img)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
