package plaintext

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Decode returns the trimmed text of a plain-text invoice. Binary input is rejected.
func Decode(name string, raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("unsupported binary content in %s", name)
	}
	raw = []byte(strings.TrimPrefix(string(raw), "\uFEFF"))
	return strings.TrimSpace(string(raw)), nil
}

func IsText(contentType, name string) bool {
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "text/") {
		return true
	}
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".txt") || strings.HasSuffix(lower, ".csv")
}
