// Package slug maps animation source filenames to archive file stems.
package slug

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	reCounterSuffix = regexp.MustCompile(`\s*\((\d+)\)`)
	reSpecial       = regexp.MustCompile(`[^a-zA-Z0-9\s\-]`)
	reDashRun       = regexp.MustCompile(`-+`)
)

// Sanitize turns a raw filename into a lowercase stem of [a-z0-9-] with
// no leading, trailing or repeated dashes. Download-counter suffixes like
// "attack (2)" become "attack-2". Idempotent.
func Sanitize(name string) string {
	return sanitize(name, false)
}

// SanitizeFoldUnderscores keeps underscores alive as dashes instead of
// dropping them. Used for vendor packs named like npc_vendor_idle.fbx.
func SanitizeFoldUnderscores(name string) string {
	return sanitize(name, true)
}

func sanitize(name string, foldUnderscores bool) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))

	name = reCounterSuffix.ReplaceAllString(name, "-$1")
	if foldUnderscores {
		name = strings.ReplaceAll(name, "_", "-")
	}
	name = reSpecial.ReplaceAllString(name, "")
	name = strings.ReplaceAll(name, " ", "-")
	name = strings.ToLower(name)
	name = reDashRun.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")

	return name
}
