package tools

import "unicode/utf8"

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
// It reports whether anything was cut.
func Truncate(s string, n int) (string, bool) {
	if n < 0 || len(s) <= n {
		return s, false
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n], true
}
