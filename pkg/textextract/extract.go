// Package textextract pulls plain text out of uploaded files.
package textextract

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

type ExtractedText struct {
	Content string
	Pages   int
}

// Extract returns the plain text of the given file. PDF and plain text are
// supported; scanned PDFs with no text layer come back empty.
func Extract(data io.ReaderAt, size int64, fileType string) (*ExtractedText, error) {
	switch strings.ToLower(fileType) {
	case ".pdf", "pdf", "application/pdf":
		return extractPDF(data, size)
	case ".txt", "txt", "text/plain":
		return extractTXT(data, size)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", fileType)
	}
}

func SupportedTypes() []string {
	return []string{".pdf", ".txt"}
}

func extractPDF(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var buf strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	return &ExtractedText{Content: buf.String(), Pages: numPages}, nil
}

func extractTXT(data io.ReaderAt, size int64) (*ExtractedText, error) {
	content, err := io.ReadAll(io.NewSectionReader(data, 0, size))
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	return &ExtractedText{Content: string(content), Pages: 1}, nil
}
