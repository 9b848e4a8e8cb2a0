package compose

import (
	"archive/zip"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func buildFakeShellAPK(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for _, entry := range []string{
		"lib/arm64-v8a/libmain.so",
		"lib/armeabi-v7a/libmain.so",
		"lib/x86_64/libmain.so",
		"assets/unrelated.txt",
	} {
		ew, err := w.Create(entry)
		require.NoError(t, err)
		_, err = ew.Write([]byte("binary stub"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestExtractNativeLibsCopiesPerABI(t *testing.T) {
	dir := t.TempDir()
	apk := filepath.Join(dir, "shell.apk")
	buildFakeShellAPK(t, apk)

	projectRoot := filepath.Join(dir, "project")
	require.NoError(t, ExtractNativeLibs(apk, projectRoot))

	for _, abi := range []string{"arm64-v8a", "armeabi-v7a", "x86_64"} {
		p := filepath.Join(projectRoot, "app", "src", "main", "jniLibs", abi, "libmain.so")
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestExtractNativeLibsFailsWhenNoneFound(t *testing.T) {
	dir := t.TempDir()
	apk := filepath.Join(dir, "empty.apk")
	f, err := os.Create(apk)
	require.NoError(t, err)
	require.NoError(t, zip.NewWriter(f).Close())
	f.Close()

	err = ExtractNativeLibs(apk, filepath.Join(dir, "project"))
	assert.Error(t, err)
}

func TestPlacePluginBinariesAppliesLibPrefixAndSoSuffix(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "extrans.so")
	writeFile(t, src, "plugin binary")

	projectRoot := filepath.Join(dir, "project")
	plugins := map[string]map[string]string{
		"extrans": {"arm64-v8a": src},
	}
	require.NoError(t, PlacePluginBinaries(plugins, projectRoot))

	dst := filepath.Join(projectRoot, "app", "src", "main", "jniLibs", "arm64-v8a", "libextrans.so")
	_, err := os.Stat(dst)
	assert.NoError(t, err)
}

func TestGenerateHostActivityWritesPackagedSource(t *testing.T) {
	dir := t.TempDir()
	oldTree := filepath.Join(dir, "app", "src", "main", "java", "pw", "uyjulian", "krkrsdl2")
	writeFile(t, filepath.Join(oldTree, "Old.java"), "stale")

	require.NoError(t, GenerateHostActivity(dir, "com.krkr.sample"))

	activityPath := filepath.Join(dir, "app", "src", "main", "java", "com", "krkr", "sample", "KirikiriSDL2Activity.java")
	content, err := os.ReadFile(activityPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "package com.krkr.sample;")
	assert.Contains(t, string(content), "extends SDLActivity")

	_, err = os.Stat(oldTree)
	assert.True(t, os.IsNotExist(err))
}

func TestRewriteBuildGradleInsertsNamespaceAndStripsCMake(t *testing.T) {
	dir := t.TempDir()
	gradle := filepath.Join(dir, "app", "build.gradle")
	writeFile(t, gradle, `android {
    compileSdkVersion 30
    defaultConfig {
        minSdkVersion 16
        targetSdkVersion 30
        externalNativeBuild {
            cmake {
                cppFlags ""
            }
        }
    }
}
`)

	require.NoError(t, RewriteBuildGradle(dir, "com.krkr.sample"))

	content, err := os.ReadFile(gradle)
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, `namespace "com.krkr.sample"`)
	assert.Contains(t, text, "compileSdkVersion 34")
	assert.Contains(t, text, "minSdkVersion 21")
	assert.Contains(t, text, "targetSdkVersion 34")
	assert.NotContains(t, text, "cmake")
}

func TestRewriteManifestRemovesPackageAddsExportedAndNativeLibs(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "app", "src", "main", "AndroidManifest.xml")
	writeFile(t, manifest, `<manifest xmlns:android="http://schemas.android.com/apk/res/android" package="old.pkg">
    <application android:label="@string/app_name">
        <activity android:name=".MainActivity" />
        <service android:name=".MyService" android:exported="false" />
    </application>
</manifest>
`)

	require.NoError(t, RewriteManifest(dir))

	content, err := os.ReadFile(manifest)
	require.NoError(t, err)
	text := string(content)
	assert.NotContains(t, text, `package="old.pkg"`)
	assert.Contains(t, text, `android:extractNativeLibs="true"`)
	assert.Contains(t, text, `<activity android:name=".MainActivity" android:exported="true" />`)
	assert.Contains(t, text, `android:exported="false"`)
}

func TestWriteStringsXMLCreatesFreshDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteStringsXML(dir, `Sample "Game" & Co`))

	content, err := os.ReadFile(filepath.Join(dir, "app", "src", "main", "res", "values", "strings.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `Sample &quot;Game&quot; &amp; Co`)
}

func TestWriteStringsXMLUpdatesExistingEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app", "src", "main", "res", "values", "strings.xml")
	writeFile(t, path, "<resources>\n    <string name=\"app_name\">Old Name</string>\n</resources>\n")

	require.NoError(t, WriteStringsXML(dir, "New Name"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "New Name")
	assert.NotContains(t, string(content), "Old Name")
}

func TestSynthesizeIconsWritesAllDensities(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SynthesizeIcons(dir))

	for density, size := range iconDensities {
		p := filepath.Join(dir, "app", "src", "main", "res", "mipmap-"+density, "ic_launcher.png")
		f, err := os.Open(p)
		require.NoError(t, err)
		img, err := png.Decode(f)
		require.NoError(t, err)
		assert.Equal(t, size, img.Bounds().Dx())
		f.Close()
	}
}

func TestPlaceAssetsCopiesTree(t *testing.T) {
	dir := t.TempDir()
	assetDir := filepath.Join(dir, "assets")
	writeFile(t, filepath.Join(assetDir, "data.ks"), "script")
	writeFile(t, filepath.Join(assetDir, "sub", "image.png"), "pixels")

	projectRoot := filepath.Join(dir, "project")
	require.NoError(t, PlaceAssets(projectRoot, assetDir))

	_, err := os.Stat(filepath.Join(projectRoot, "app", "src", "main", "assets", "data", "data.ks"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(projectRoot, "app", "src", "main", "assets", "data", "sub", "image.png"))
	assert.NoError(t, err)
}
