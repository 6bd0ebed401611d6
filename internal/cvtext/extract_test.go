package cvtext

import (
	"errors"
	"testing"
)

func TestDetectMIME(t *testing.T) {
	cases := []struct {
		contentType string
		filename    string
		want        string
	}{
		{"application/pdf", "cv.bin", MIMEPDF},
		{"text/plain; charset=utf-8", "cv", MIMEPlain},
		{"application/octet-stream", "Resume.DOCX", MIMEDocx},
		{"", "cv.txt", MIMEPlain},
		{"image/png", "cv.png", ""},
	}
	for _, tc := range cases {
		if got := DetectMIME(tc.contentType, tc.filename); got != tc.want {
			t.Fatalf("DetectMIME(%q, %q) = %q, want %q", tc.contentType, tc.filename, got, tc.want)
		}
	}
}

func TestExtractPlainText(t *testing.T) {
	got, err := Extract(MIMEPlain, []byte("Jane Doe\nGo developer"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "Jane Doe\nGo developer" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestExtractUnsupported(t *testing.T) {
	if _, err := Extract("image/png", []byte{0x89}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported got %v", err)
	}
}

func TestExtractRejectsCorruptPDF(t *testing.T) {
	if _, err := Extract(MIMEPDF, []byte("not a pdf")); err == nil {
		t.Fatalf("expected error for corrupt pdf")
	}
}

func TestStripTags(t *testing.T) {
	xml := `<w:body><w:p><w:r><w:t>Jane</w:t></w:r></w:p><w:p><w:r><w:t>Go &amp; SQL</w:t></w:r></w:p></w:body>`
	if got := stripTags(xml); got != "Jane\nGo &amp; SQL" {
		t.Fatalf("unexpected text %q", got)
	}
}
