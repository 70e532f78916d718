// Package pathsafe neutralizes untrusted path components and checks that
// destinations stay inside an allowed root.
//
// Category and name strings come from a categorization service and are
// treated as hostile: a model can return "../../etc" as a category just as
// easily as "Finance".
package pathsafe

import (
	"strings"
	"unicode"
)

// FallbackName is used when sanitizing leaves nothing behind
const FallbackName = "unnamed"

// reservedChars are invalid in file names on at least one supported platform
const reservedChars = `<>:"|?*`

// windowsDeviceNames cannot be used as a base name on Windows, with or without extension
var windowsDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeComponent turns an untrusted string into a single safe path component.
// The result never contains a separator, a parent-directory sequence, control
// characters, or leading/trailing dots and spaces.
func SanitizeComponent(raw string) string {
	// Split on both separator styles and drop dot segments so "../../etc" becomes "etc"
	segments := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	kept := segments[:0]
	for _, seg := range segments {
		trimmed := strings.TrimSpace(seg)
		if trimmed == "." || trimmed == ".." || trimmed == "" {
			continue
		}
		kept = append(kept, seg)
	}
	s := strings.Join(kept, "_")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == 0:
			continue
		case r == unicode.ReplacementChar:
			b.WriteRune('_')
		case unicode.IsControl(r):
			b.WriteRune('_')
		case strings.ContainsRune(reservedChars, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	s = b.String()

	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}

	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, ". ")

	if s == "" {
		return FallbackName
	}

	stem := s
	if i := strings.IndexByte(stem, '.'); i >= 0 {
		stem = stem[:i]
	}
	if windowsDeviceNames[strings.ToUpper(stem)] {
		s = "_" + s
	}

	return s
}
