package recognition

import (
	"net/http"
	"path/filepath"
	"strings"
)

// Kind is the broad media class of a source document.
type Kind string

const (
	KindImage       Kind = "image"
	KindPDF         Kind = "pdf"
	KindText        Kind = "text"
	KindUnsupported Kind = "unsupported"
)

var imageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// Detect classifies a document by declared content type, extension and content sniffing, in that order.
func Detect(contentType, name string, data []byte) (Kind, string) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if kind, ok := kindOf(ct); ok {
		return kind, ct
	}

	ext := strings.ToLower(filepath.Ext(name))
	if mime, ok := imageExtensions[ext]; ok {
		return KindImage, mime
	}
	switch ext {
	case ".pdf":
		return KindPDF, "application/pdf"
	case ".txt", ".csv":
		return KindText, "text/plain"
	}

	if len(data) > 0 {
		sniffed := http.DetectContentType(data)
		if idx := strings.Index(sniffed, ";"); idx >= 0 {
			sniffed = sniffed[:idx]
		}
		if kind, ok := kindOf(sniffed); ok {
			return kind, sniffed
		}
	}
	return KindUnsupported, ct
}

func kindOf(mime string) (Kind, bool) {
	switch {
	case mime == "application/pdf":
		return KindPDF, true
	case strings.HasPrefix(mime, "image/"):
		return KindImage, true
	case strings.HasPrefix(mime, "text/"):
		return KindText, true
	default:
		return "", false
	}
}
