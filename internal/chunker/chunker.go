// Package chunker splits extracted document text into sentence-aligned passages.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxLength is the nominal chunk bound, in characters.
const DefaultMaxLength = 512

// sentenceBoundary matches terminal punctuation followed by whitespace.
// The punctuation stays with the sentence, the whitespace is dropped.
var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// Chunker greedily packs sentences into chunks shorter than MaxLength.
type Chunker struct {
	maxLength int
}

// NewChunker creates a chunker. A non-positive maxLength selects DefaultMaxLength.
func NewChunker(maxLength int) *Chunker {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Chunker{maxLength: maxLength}
}

// MaxLength returns the configured bound.
func (c *Chunker) MaxLength() int {
	return c.maxLength
}

// Chunk splits text into ordered, non-empty chunks.
//
// Sentences are joined with a single space while the joined length stays below
// MaxLength. A single sentence longer than the bound is emitted whole.
// Empty or whitespace-only input yields nil.
func (c *Chunker) Chunk(text string) []string {
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var (
		chunks []string
		buf    strings.Builder
		bufLen int
	)
	flush := func() {
		if bufLen > 0 {
			chunks = append(chunks, buf.String())
		}
		buf.Reset()
		bufLen = 0
	}

	for _, sent := range sentences {
		n := utf8.RuneCountInString(sent)
		sep := 0
		if bufLen > 0 {
			sep = 1
		}
		if bufLen+sep+n < c.maxLength {
			if sep > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(sent)
			bufLen += sep + n
			continue
		}
		flush()
		buf.WriteString(sent)
		bufLen = n
	}
	flush()

	return chunks
}

// Sentences splits text at terminal punctuation followed by whitespace.
// Returned sentences are trimmed and never empty.
func Sentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		// loc[0] is the punctuation byte, keep it with the sentence.
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
