package vfs

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Name Resolution Strategy
// ========================
//
// Display names must be unique among ACTIVE siblings of one parent (the
// store enforces this with a uniqueness constraint; see repository.go).
// Rather than rejecting colliding uploads, Cubby follows the desktop
// convention of suffixing a counter: "report.pdf" → "report (1).pdf".
//
// To keep the scheme stable under re-upload, an existing counter suffix is
// stripped before probing: re-uploading "file (1).txt" next to "file.txt",
// "file (1).txt" and "file (2).txt" yields "file (3).txt", never
// "file (1) (1).txt".
//
// The counter probe is O(n) in the number of colliding siblings, which is
// acceptable since sibling counts are small in practice.

// invalidNameChars matches every character that is never allowed in a
// display name. The set mirrors what mainstream filesystems reject, plus
// the path separator so a name can never escape its folder.
var invalidNameChars = regexp.MustCompile(`[/\\:*?"<>|]`)

// counterSuffix matches an optional trailing " (n)" counter on a file stem.
// The leading group is lazy so only the last counter is captured.
var counterSuffix = regexp.MustCompile(`^(.*?)(?: \((\d+)\))?$`)

// SanitizeName replaces forbidden characters with underscores and bounds the
// result to MaxNameLength runes. The extension is preserved when truncating
// so "very-long-name.txt" keeps its ".txt".
func SanitizeName(raw string) string {
	name := invalidNameChars.ReplaceAllString(strings.TrimSpace(raw), "_")

	if len([]rune(name)) <= MaxNameLength {
		return name
	}

	ext := path.Ext(name)
	if len([]rune(ext)) >= MaxNameLength {
		// Pathological "extension" longer than the whole budget; hard cut.
		return string([]rune(name)[:MaxNameLength])
	}

	stem := strings.TrimSuffix(name, ext)
	keep := MaxNameLength - len([]rune(ext))
	return string([]rune(stem)[:keep]) + ext
}

// ResolveSafeName computes a collision-free display name for rawName inside
// a folder whose ACTIVE siblings carry existingActiveNames.
//
// The result is deterministic for a given input set and is guaranteed not to
// be a member of existingActiveNames. TRASHED and ARCHIVED siblings must not
// be included by the caller: they do not participate in uniqueness.
func ResolveSafeName(rawName string, existingActiveNames []string) string {
	name := SanitizeName(rawName)

	taken := make(map[string]struct{}, len(existingActiveNames))
	for _, n := range existingActiveNames {
		taken[n] = struct{}{}
	}

	if _, exists := taken[name]; !exists {
		return name
	}

	stem, ext := splitExtension(name)

	// Recover the un-suffixed base so an already-countered name does not
	// accumulate a second counter.
	base := stem
	if m := counterSuffix.FindStringSubmatch(stem); m != nil && m[2] != "" {
		base = m[1]
	}

	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, counter, ext)
		if _, exists := taken[candidate]; !exists {
			return candidate
		}
	}
}

// splitExtension splits a name into stem and extension. The extension
// includes the leading dot; dotfiles like ".gitignore" are treated as
// all-stem.
func splitExtension(name string) (string, string) {
	ext := path.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}
