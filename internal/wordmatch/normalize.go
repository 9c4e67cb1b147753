package wordmatch

import "strings"

// Normalize implements spec.md section 6's command-store phrase
// matching rule: case-insensitive, whitespace collapsed, terminal
// punctuation stripped. Shared by the exact-match and mid-text scan
// paths so both agree on what counts as "the same phrase".
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, ".,!?;:")
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
