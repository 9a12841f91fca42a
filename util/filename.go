package util

import (
	"regexp"
	"strings"
)

var illegalFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

const maxFilenameRunes = 200

// SanitizeFilename strips characters that are unsafe in filenames on common
// platforms and caps the length, falling back to "video" when nothing
// usable is left.
func SanitizeFilename(name string) string {
	name = illegalFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, " .")
	if runes := []rune(name); len(runes) > maxFilenameRunes {
		name = string(runes[:maxFilenameRunes])
	}
	if name == "" {
		return "video"
	}
	return name
}
