// Package gamestructure classifies an extracted game tree (spec.md §4.10
// extract phase): which engine variant it is, and what title the game
// declares in its startup configuration script.
package gamestructure

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
)

// Variant names the detected engine flavor. Only one is currently
// recognized; the field exists so a second variant can be added without
// reshaping the detector's return type.
type Variant string

const VariantKirikiri Variant = "kirikiri"

var titlePattern = regexp.MustCompile(`;?\s*System\.title\s*=\s*"([^"]*)"`)

var configCandidates = []string{
	filepath.Join("system", "Config.tjs"),
	"Config.tjs",
}

// Info is the detector's result.
type Info struct {
	Variant Variant
	Title   string // "" if undetected
}

// Detect looks for a Config.tjs under the candidate paths and extracts the
// declared title via regex, reading the file as UTF-8 when it is valid UTF-8
// and falling back to cp932 (Shift-JIS) decoding otherwise.
func Detect(root string) Info {
	info := Info{Variant: VariantKirikiri}

	for _, candidate := range configCandidates {
		path := filepath.Join(root, candidate)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		if title, ok := extractTitle(data); ok {
			info.Title = title
			return info
		}
	}

	return info
}

func extractTitle(data []byte) (string, bool) {
	if utf8.Valid(data) {
		if title, ok := matchTitle(string(data)); ok {
			return title, true
		}
	}

	decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(data)
	if err == nil {
		if title, ok := matchTitle(string(decoded)); ok {
			return title, true
		}
	}

	return "", false
}

func matchTitle(text string) (string, bool) {
	m := titlePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}
