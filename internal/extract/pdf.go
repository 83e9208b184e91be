package extract

import (
	"bytes"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfPageCount validates the PDF structure before text extraction.
func pdfPageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), conf)
}

// pdfToText extracts page text and joins pages with newlines.
func pdfToText(data []byte) (string, int, error) {
	pages, err := pdfPageCount(data)
	if err != nil {
		return "", 0, fmt.Errorf("invalid pdf: %w", err)
	}
	body, _, err := docconv.ConvertPDF(bytes.NewReader(data))
	if err != nil {
		return "", pages, fmt.Errorf("convert pdf: %w", err)
	}
	return joinPages(body), pages, nil
}

// joinPages replaces form feeds between pages with newlines.
func joinPages(body string) string {
	if !strings.Contains(body, "\f") {
		return body
	}
	parts := strings.Split(body, "\f")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}
