// Package cvtext 从上传的简历文件中提取纯文本。
package cvtext

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const (
	MIMEPlain = "text/plain"
	MIMEPDF   = "application/pdf"
	MIMEDocx  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// ErrUnsupported 表示文件类型无法提取文本。
var ErrUnsupported = errors.New("unsupported file type")

// DetectMIME 根据上传时的 Content-Type 与扩展名判断类型，无法识别时返回空串。
func DetectMIME(contentType, filename string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case MIMEPlain, MIMEPDF, MIMEDocx:
		return ct
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return MIMEPDF
	case ".docx":
		return MIMEDocx
	case ".txt":
		return MIMEPlain
	}
	return ""
}

// Extract 返回文件的纯文本内容。
func Extract(mime string, data []byte) (string, error) {
	switch mime {
	case MIMEPlain:
		return string(data), nil
	case MIMEPDF:
		return extractPDF(data)
	case MIMEDocx:
		return extractDocx(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, mime)
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i, err)
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func extractDocx(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read docx: %w", err)
	}
	defer doc.Close()

	return stripTags(doc.Editable().GetContent()), nil
}

// stripTags 去掉 document.xml 中的标签，段落结尾换行。
func stripTags(xml string) string {
	xml = strings.ReplaceAll(xml, "</w:p>", "\n")
	var b strings.Builder
	inTag := false
	for _, r := range xml {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
