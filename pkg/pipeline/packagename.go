package pipeline

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
)

var nonPackageCharRe = regexp.MustCompile(`[^a-z0-9_]`)

// javaReservedWords is the subset of Java keywords relevant to package
// segment collisions.
var javaReservedWords = map[string]bool{
	"abstract": true, "assert": true, "boolean": true, "break": true, "byte": true,
	"case": true, "catch": true, "char": true, "class": true, "const": true,
	"continue": true, "default": true, "do": true, "double": true, "else": true,
	"enum": true, "extends": true, "final": true, "finally": true, "float": true,
	"for": true, "goto": true, "if": true, "implements": true, "import": true,
	"instanceof": true, "int": true, "interface": true, "long": true, "native": true,
	"new": true, "package": true, "private": true, "protected": true, "public": true,
	"return": true, "short": true, "static": true, "strictfp": true, "super": true,
	"switch": true, "synchronized": true, "this": true, "throw": true, "throws": true,
	"transient": true, "try": true, "void": true, "volatile": true, "while": true,
}

// SanitizePackageSegment turns an arbitrary title or filename stem into a
// package-name-safe segment: lowercase, spaces become underscores, every
// remaining character outside [a-z0-9_] is stripped outright, a leading
// digit is prefixed with "_", a reserved word is prefixed with "game_".
// When stripping leaves nothing (e.g. a title made up entirely of non-ASCII
// characters), the segment is "g" followed by the first 8 hex characters of
// a SHA-1 hash of raw, so the package name is never left with an empty
// final segment (the empty-suffix open question in spec.md §9).
func SanitizePackageSegment(raw string) string {
	lowered := strings.ToLower(raw)
	lowered = strings.ReplaceAll(lowered, " ", "_")
	sanitized := nonPackageCharRe.ReplaceAllString(lowered, "")

	if sanitized == "" {
		sum := sha1.Sum([]byte(raw))
		return "g" + hex.EncodeToString(sum[:])[:8]
	}

	if sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = "_" + sanitized
	}
	if javaReservedWords[sanitized] {
		sanitized = "game_" + sanitized
	}
	return sanitized
}

// FinalPackageName computes "com.krkr.<sanitized>" per spec.md §4.10.
func FinalPackageName(titleOrStem string) string {
	return "com.krkr." + SanitizePackageSegment(titleOrStem)
}
