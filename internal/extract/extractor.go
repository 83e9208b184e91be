// Package extract turns uploaded and synced documents into plain text.
package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"
	"go.uber.org/zap"
)

// MIME types accepted by upload.
const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText = "text/plain"
)

// Extractor dispatches raw-text extraction by file extension.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates an extractor. A nil logger disables logging.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger.With(zap.String("component", "extract"))}
}

// ExtractFile reads the file at path and extracts its text. The filename is
// used for dispatch because stored uploads carry a hashed name prefix.
func (e *Extractor) ExtractFile(path, filename string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filename, err)
	}
	return e.Extract(filename, "", data)
}

// Extract converts data to text according to the extension of filename, or
// the declared contentType when the extension is not a known format. It
// returns ErrEmptyDocument when nothing readable remains.
func (e *Extractor) Extract(filename, contentType string, data []byte) (string, error) {
	ext := format(filename, contentType)

	var (
		text string
		err  error
	)
	switch ext {
	case ".txt":
		var enc string
		text, enc = decodeText(data)
		e.logger.Debug("Decoded text file", zap.String("file", filename), zap.String("encoding", enc))
	case ".pdf":
		var pages int
		text, pages, err = pdfToText(data)
		e.logger.Debug("Extracted pdf", zap.String("file", filename), zap.Int("pages", pages))
	case ".docx":
		text, _, err = docconv.ConvertDocx(bytes.NewReader(data))
		text = normalizeLines(text)
	case ".md", ".markdown":
		text = markdownToText(data)
	case ".html", ".htm":
		text, err = HTMLToText(string(data))
	default:
		text, err = convertGeneric(filename, data)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filename, err)
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", filename, ErrEmptyDocument)
	}
	return text, nil
}

// HTMLToText strips markup from an HTML fragment, as returned by Confluence
// storage bodies and Bitrix24 articles.
func HTMLToText(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	body, _, err := docconv.ConvertHTML(strings.NewReader(html), false)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return normalizeLines(body), nil
}

// convertGeneric falls back to docconv's structural parsers.
func convertGeneric(filename string, data []byte) (string, error) {
	mimeType := docconv.MimeTypeByExtension(filename)
	if mimeType == "" || mimeType == "application/octet-stream" {
		return "", ErrUnsupportedType
	}
	resp, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("docconv: %s", resp.Error)
	}
	return normalizeLines(resp.Body), nil
}

// Accepts reports whether an upload may be indexed, by declared MIME type or
// by extension.
func Accepts(filename, contentType string) bool {
	switch mediaType(contentType) {
	case MimePDF, MimeDOCX, MimeText:
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".pdf", ".docx":
		return true
	}
	return false
}

// extByMediaType maps declared MIME types to the extension of their decoder.
var extByMediaType = map[string]string{
	MimeText:        ".txt",
	MimePDF:         ".pdf",
	MimeDOCX:        ".docx",
	"text/markdown": ".md",
	"text/html":     ".html",
}

// format picks the decoder extension. A known extension wins; otherwise the
// declared media type decides.
func format(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".pdf", ".docx", ".md", ".markdown", ".html", ".htm":
		return ext
	}
	if byType, ok := extByMediaType[mediaType(contentType)]; ok {
		return byType
	}
	return ext
}

func mediaType(contentType string) string {
	return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
}

// normalizeLines drops blank lines and trailing spaces, joining with newlines.
func normalizeLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
