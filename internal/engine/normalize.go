package engine

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// keptControls are control characters that carry meaning in decoded text:
// whitespace, plus the EOT, GS and RS separators of GS1 element strings
// and ISO/IEC 15434 messages.
const keptControls = "\t\n\r\x04\x1d\x1e"

// normalizeText applies NFC and drops control characters that are not in
// keptControls.
func normalizeText(s string) string {
	s = norm.NFC.String(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !strings.ContainsRune(keptControls, r) {
			return -1
		}
		return r
	}, s)
}
