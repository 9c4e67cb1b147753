package wordmatch

import "strings"

// TextMatchKind discriminates the result of scanning a whole TEXT
// message against the command lexicon (spec.md section 4.7).
type TextMatchKind int

const (
	NoMatch TextMatchKind = iota
	ExactCommand
	MidTextCommand
)

// TextMatchResult is the outcome of MatchText.
type TextMatchResult struct {
	Kind     TextMatchKind
	Command  string    // set when Kind == ExactCommand
	Segments []Segment // set when Kind == MidTextCommand
}

// Segment is one ordered piece of a MidTextCommand result: either text
// to inject or a command to execute.
type Segment struct {
	Kind    ItemKind
	Text    string
	Command string
}

// MatchText scans text against phrases (command code -> phrase, as
// stored by the command store) per spec.md section 4.7's mid-text scan.
// Matching is done on whitespace tokens with per-token normalization
// (Normalize), so "please copy that now." matches phrase "copy that"
// even though the raw text carries different casing/trailing
// punctuation; the text either side of the match is reassembled from
// the original tokens, not the normalized ones.
func MatchText(text string, phrases map[string]string) TextMatchResult {
	normWhole := Normalize(text)
	for code, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if Normalize(phrase) == normWhole {
			return TextMatchResult{Kind: ExactCommand, Command: code}
		}
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return TextMatchResult{Kind: NoMatch}
	}
	normTokens := make([]string, len(tokens))
	for i, t := range tokens {
		normTokens[i] = Normalize(t)
	}

	start, end, code, found := findEarliestLongestPhrase(normTokens, phrases)
	if !found {
		return TextMatchResult{Kind: NoMatch}
	}

	var segments []Segment
	if prefix := strings.TrimSpace(strings.Join(tokens[:start], " ")); prefix != "" {
		segments = append(segments, Segment{Kind: ItemText, Text: prefix + " "})
	}
	segments = append(segments, Segment{Kind: ItemCommand, Command: code})
	if suffix := strings.TrimSpace(strings.Join(tokens[end:], " ")); suffix != "" {
		segments = append(segments, Segment{Kind: ItemText, Text: " " + suffix})
	}
	return TextMatchResult{Kind: MidTextCommand, Segments: segments}
}

// findEarliestLongestPhrase finds the earliest-starting, then longest,
// contiguous run of normTokens matching any phrase's normalized words.
func findEarliestLongestPhrase(normTokens []string, phrases map[string]string) (start, end int, code string, found bool) {
	bestStart := len(normTokens) + 1
	bestLen := 0

	for c, phrase := range phrases {
		words := strings.Fields(Normalize(phrase))
		if len(words) == 0 {
			continue
		}
		for i := 0; i+len(words) <= len(normTokens); i++ {
			if matchesAt(normTokens, i, words) {
				if i < bestStart || (i == bestStart && len(words) > bestLen) {
					bestStart = i
					bestLen = len(words)
					start, end, code, found = i, i+len(words), c, true
				}
				break // earliest occurrence of this phrase is enough
			}
		}
	}
	return
}

func matchesAt(tokens []string, at int, words []string) bool {
	for i, w := range words {
		if tokens[at+i] != w {
			return false
		}
	}
	return true
}
