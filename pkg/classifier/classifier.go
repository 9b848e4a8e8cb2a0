// Package classifier walks a source tree and produces an AssetManifest:
// one record per file naming its asset class, conversion action, and
// target extension (spec.md §4.5).
package classifier

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"
)

// Class is the asset class enumeration.
type Class string

const (
	ClassScript Class = "script"
	ClassImage  Class = "image"
	ClassAudio  Class = "audio"
	ClassVideo  Class = "video"
	ClassOther  Class = "other"
)

// Action is the conversion action enumeration.
type Action string

const (
	ActionEncodeUTF8   Action = "encode-to-utf8"
	ActionConvertPNG   Action = "convert-png"
	ActionConvertWebp  Action = "convert-webp"
	ActionConvertOgg   Action = "convert-ogg"
	ActionConvertMp4   Action = "convert-mp4"
	ActionCopy         Action = "copy"
	ActionSkip         Action = "skip"
)

type classification struct {
	class  Class
	action Action
	target string // "" means none
}

// extensionTable is the authoritative classification table from spec.md
// §4.5. Keys are case-folded extensions including the leading dot.
var extensionTable = map[string]classification{
	".ks":   {ClassScript, ActionEncodeUTF8, ""},
	".tjs":  {ClassScript, ActionEncodeUTF8, ""},
	".tlg":  {ClassImage, ActionConvertPNG, ".png"},
	".bmp":  {ClassImage, ActionCopy, ""},
	".jpg":  {ClassImage, ActionCopy, ""},
	".jpeg": {ClassImage, ActionCopy, ""},
	".png":  {ClassImage, ActionCopy, ""},
	".wav":  {ClassAudio, ActionConvertOgg, ".ogg"},
	".ogg":  {ClassAudio, ActionCopy, ""},
	".mp3":  {ClassAudio, ActionCopy, ""},
	".mpg":  {ClassVideo, ActionConvertMp4, ".mp4"},
	".mpeg": {ClassVideo, ActionConvertMp4, ".mp4"},
	".wmv":  {ClassVideo, ActionConvertMp4, ".mp4"},
	".avi":  {ClassVideo, ActionConvertMp4, ".mp4"},
}

var defaultClassification = classification{ClassOther, ActionCopy, ""}

// OverrideRule is a (glob, converter-name) pair from config that replaces
// the table-derived action for matching paths; the first matching rule
// wins. converter-name "skip" clears the target extension.
type OverrideRule struct {
	Glob      string
	Converter Action
}

// AssetFile is one immutable classified file record.
type AssetFile struct {
	RelPath   string
	Class     Class
	Action    Action
	SourceExt string
	TargetExt string // "" means none
}

// AssetManifest is the scan's output: the root directory plus every
// classified file beneath it.
type AssetManifest struct {
	Root  string
	Files []AssetFile
}

// ByClass returns a new slice of every file in the given class.
func (m *AssetManifest) ByClass(c Class) []AssetFile {
	return lo.Filter(m.Files, func(f AssetFile, _ int) bool { return f.Class == c })
}

// ByAction returns a new slice of every file with the given action.
func (m *AssetManifest) ByAction(a Action) []AssetFile {
	return lo.Filter(m.Files, func(f AssetFile, _ int) bool { return f.Action == a })
}

// ClassCounts summarizes the manifest by class.
func (m *AssetManifest) ClassCounts() map[Class]int {
	counts := map[Class]int{}
	for _, f := range m.Files {
		counts[f.Class]++
	}
	return counts
}

// Scan walks root recursively, skipping dot-prefixed files and any path
// matched by an exclude glob (tested against both the path relative to
// root and the file's basename), and classifies every surviving file.
func Scan(root string, excludeGlobs []string, overrides []OverrideRule) (*AssetManifest, error) {
	manifest := &AssetManifest{Root: root}

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if matchesAny(excludeGlobs, rel, info.Name()) {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		base, ok := extensionTable[ext]
		if !ok {
			base = defaultClassification
		}

		action := base.action
		target := base.target
		if override, ok := firstMatchingOverride(overrides, rel, info.Name()); ok {
			action = override.Converter
			if action == ActionSkip {
				target = ""
			}
		}

		manifest.Files = append(manifest.Files, AssetFile{
			RelPath:   rel,
			Class:     base.class,
			Action:    action,
			SourceExt: ext,
			TargetExt: target,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return manifest, nil
}

func matchesAny(globs []string, relPath, base string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, relPath); ok {
			return true
		}
		if ok, _ := doublestar.Match(g, base); ok {
			return true
		}
	}
	return false
}

func firstMatchingOverride(rules []OverrideRule, relPath, base string) (OverrideRule, bool) {
	for _, r := range rules {
		if ok, _ := doublestar.Match(r.Glob, relPath); ok {
			return r, true
		}
		if ok, _ := doublestar.Match(r.Glob, base); ok {
			return r, true
		}
	}
	return OverrideRule{}, false
}
