// Package script implements the script rewriter converter (spec.md §4.7):
// applies an ordered list of regex rules to engine script sources
// (.ks/.tjs), rerouting plugin loads, save paths, and MIDI references to
// their Android/pre-rendered equivalents.
package script

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/krkrport/mnemonic/pkg/convert"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Rule is one ordered regex rewrite.
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string
	Description string
}

// DefaultRules is the exact, ordered default rule set from spec.md §4.7.
func DefaultRules() []Rule {
	return []Rule{
		{
			Pattern:     regexp.MustCompile(`(?m)^(\s*)(Plugins\.link\(["'].*?\.dll["']\);)`),
			Replacement: `$1// $2 // Disabled for Android`,
			Description: "comment out plugin loads",
		},
		{
			Pattern:     regexp.MustCompile(`saveDataLocation\s*=\s*System\.exePath\s*\+\s*saveDataLocation`),
			Replacement: `saveDataLocation = System.dataPath`,
			Description: "reroute writable data",
		},
		{
			Pattern:     regexp.MustCompile(`MIDISoundBuffer`),
			Replacement: `WaveSoundBuffer`,
			Description: "MIDI references resolve to pre-rendered OGGs",
		},
		{
			Pattern:     regexp.MustCompile(`(["'])([^"']*\.mid)(["'])`),
			Replacement: `$1$2.ogg$3`,
			Description: "extend .mid references",
		},
		{
			Pattern:     regexp.MustCompile(`(["'])([^"']*\.midi)(["'])`),
			Replacement: `$1$2.ogg$3`,
			Description: "extend .midi references",
		},
	}
}

const startupPolyfill = "// krkrsdl2 android polyfill\nPlugins.link(\"krkrsdl2polyfill.dll\");\n"

// Converter rewrites script sources in place with Rules, optionally
// prepending a polyfill directive to startup.tjs.
type Converter struct {
	Rules           []Rule
	PrependPolyfill bool
}

func New() *Converter {
	return &Converter{Rules: DefaultRules(), PrependPolyfill: true}
}

func (c *Converter) SupportedExtensions() []string { return []string{".ks", ".tjs"} }

func (c *Converter) CanConvert(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".ks" || ext == ".tjs"
}

func (c *Converter) Convert(src, dst string) (convert.Result, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return convert.Result{}, err
	}
	before := int64(len(data))

	body := bytes.TrimPrefix(data, utf8BOM)
	text := string(body)

	matched := false
	for _, rule := range c.Rules {
		rewritten := rule.Pattern.ReplaceAllString(text, rule.Replacement)
		if rewritten != text {
			matched = true
			text = rewritten
		}
	}

	prepended := false
	if c.PrependPolyfill && strings.EqualFold(filepath.Base(src), "startup.tjs") {
		text = startupPolyfill + text
		prepended = true
	}

	if !matched && !prepended {
		return convert.Result{SourcePath: src, Status: convert.StatusSkipped, Message: "no rule matched", BytesBefore: before, BytesAfter: before}, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return convert.Result{}, err
	}
	out := append(append([]byte{}, utf8BOM...), []byte(text)...)
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		return convert.Result{}, err
	}

	return convert.Result{
		SourcePath:  src,
		DestPath:    dst,
		Status:      convert.StatusSuccess,
		BytesBefore: before,
		BytesAfter:  int64(len(out)),
	}, nil
}
