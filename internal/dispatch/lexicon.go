package dispatch

import (
	"strings"

	"github.com/pelidan/prontafon/internal/store"
	"github.com/pelidan/prontafon/internal/wordmatch"
)

// buildLexicon derives the word-buffer matcher predicates from the
// command store's code->phrase map: a phrase that normalizes to one
// word feeds the single-word matcher, a phrase that normalizes to two
// feeds the two-word matcher, and the first word of any two-word
// phrase is a could-start-two-word candidate. Longer phrases only
// participate in the whole-text and mid-text scans (wordmatch.MatchText).
//
// Each predicate re-derives its tables from commands.List() on every
// call rather than snapshotting once, so a phrase recorded mid-session
// (internal/dispatch's recording mode) takes effect immediately,
// matching the original's matcher holding a live store reference.
func buildLexicon(commands *store.CommandStore) (wordmatch.SingleWordMatcher, wordmatch.TwoWordMatcher, wordmatch.CouldStartTwoWord) {
	single := func(w string) (string, bool) {
		code, ok := singleWordTable(commands)[w]
		return code, ok
	}
	two := func(w1, w2 string) (string, bool) {
		code, ok := twoWordTable(commands)[[2]string{w1, w2}]
		return code, ok
	}
	couldStart := func(w string) bool {
		return starterTable(commands)[w]
	}
	return single, two, couldStart
}

func singleWordTable(commands *store.CommandStore) map[string]string {
	out := make(map[string]string)
	for code, phrase := range commands.List() {
		words := strings.Fields(wordmatch.Normalize(phrase))
		if len(words) == 1 {
			out[words[0]] = code
		}
	}
	return out
}

func twoWordTable(commands *store.CommandStore) map[[2]string]string {
	out := make(map[[2]string]string)
	for code, phrase := range commands.List() {
		words := strings.Fields(wordmatch.Normalize(phrase))
		if len(words) == 2 {
			out[[2]string{words[0], words[1]}] = code
		}
	}
	return out
}

func starterTable(commands *store.CommandStore) map[string]bool {
	out := make(map[string]bool)
	for _, phrase := range commands.List() {
		words := strings.Fields(wordmatch.Normalize(phrase))
		if len(words) == 2 {
			out[words[0]] = true
		}
	}
	return out
}
