package extract

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// textEncodings is tried in order after strict UTF-8.
var textEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"cp1251", charmap.Windows1251},
	{"iso-8859-1", charmap.ISO8859_1},
}

// decodeText never fails: when no encoding is clean the bytes are read as
// UTF-8 with invalid sequences replaced.
func decodeText(data []byte) (text string, enc string) {
	if utf8.Valid(data) {
		return strings.TrimPrefix(string(data), "\ufeff"), "utf-8"
	}
	for _, candidate := range textEncodings {
		decoded, err := candidate.enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		// charmap maps undefined bytes to U+FFFD instead of failing.
		if strings.ContainsRune(string(decoded), utf8.RuneError) {
			continue
		}
		return string(decoded), candidate.name
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), "utf-8-lossy"
}
