package storage

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report 1.pdf":          "report_1.pdf",
		"../../etc/passwd":      "passwd",
		`C:\scans\invoice.png`:  "invoice.png",
		"счет.jpg":              "____.jpg",
		"":                      "document.bin",
		"..":                    "document.bin",
		"inv-2024_03.final.PNG": "inv-2024_03.final.PNG",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Fatalf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestObjectKeyStaysUnderOwnerPrefix(t *testing.T) {
	key := ObjectKey("../owner", "job/1", "a b.png")
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		t.Fatalf("expected 3 segments, got %q", key)
	}
	if parts[0] != "_owner" || parts[1] != "job_1" {
		t.Fatalf("unexpected prefix in %q", key)
	}
	if !strings.HasSuffix(parts[2], "_a_b.png") {
		t.Fatalf("unexpected file segment in %q", key)
	}
	if ObjectKey("o", "j", "a.png") == ObjectKey("o", "j", "a.png") {
		t.Fatalf("expected unique keys for repeated uploads")
	}
}
