package extract

import (
	"fmt"
	"log"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts plain text from PDF files page by page. A page that
// cannot be decoded contributes empty text instead of failing the whole
// document, so a partially corrupt PDF still yields whatever is recoverable.
type PDFExtractor struct {
	logger *log.Logger
}

func NewPDFExtractor(logger *log.Logger) *PDFExtractor {
	return &PDFExtractor{logger: logger}
}

func (e *PDFExtractor) Extract(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	parts := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		text, err := e.pageText(reader, i)
		if err != nil {
			if e.logger != nil {
				e.logger.Printf("page %d of %s: %v", i, path, err)
			}
			text = ""
		}
		parts = append(parts, text)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n")), nil
}

// pageText recovers from panics inside the pdf library; malformed content
// streams are reported as a per-page error.
func (e *PDFExtractor) pageText(reader *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode panic: %v", r)
		}
	}()
	page := reader.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}
