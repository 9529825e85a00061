package storage

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// ObjectKey builds the storage key for an uploaded file: owner/job/<uuid>_<name>.
// Every segment is sanitized so a key never escapes its owner prefix.
func ObjectKey(ownerID, jobID, filename string) string {
	return path.Join(
		sanitizeSegment(ownerID, "anonymous"),
		sanitizeSegment(jobID, "unassigned"),
		uuid.NewString()+"_"+SanitizeFilename(filename),
	)
}

func SanitizeFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(keepSafeRune, base)
	if base == "" || base == "." || base == ".." || strings.Trim(base, "_") == "" {
		return "document.bin"
	}
	return base
}

func sanitizeSegment(value, fallback string) string {
	out := strings.Map(keepSafeRune, strings.TrimSpace(value))
	out = strings.Trim(out, ".")
	if out == "" {
		return fallback
	}
	return out
}

func keepSafeRune(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z':
		return r
	case r >= 'A' && r <= 'Z':
		return r
	case r >= '0' && r <= '9':
		return r
	case r == '.', r == '-', r == '_':
		return r
	default:
		return '_'
	}
}
