// Package wordmatch implements the word-stream matcher and its one-slot
// look-ahead buffer (spec.md section 4.6), converting a stream of WORD
// messages into typed text and command executions with minimal latency.
package wordmatch

import (
	"sync"
	"time"
)

// LookaheadTimeout is the flush deadline for a held pending word
// (spec.md section 4.6/5: "Word look-ahead: 100ms").
const LookaheadTimeout = 100 * time.Millisecond

// ItemKind discriminates a ProcessedItem.
type ItemKind int

const (
	ItemText ItemKind = iota
	ItemCommand
)

// ProcessedItem is one piece of output from the buffer: either text to
// type (with its trailing space already attached) or a command code to
// execute.
type ProcessedItem struct {
	Kind    ItemKind
	Text    string
	Command string
}

// SingleWordMatcher, TwoWordMatcher and CouldStartTwoWord are the three
// predicates spec.md section 4.6 parameterizes the matcher with,
// supplied by a command store. They mirror the closures
// original_source/desktop/src/events.rs builds around CombinedMatcher
// (match_single_word / match_two_words / could_start_two_word_command).
type SingleWordMatcher func(word string) (code string, ok bool)
type TwoWordMatcher func(w1, w2 string) (code string, ok bool)
type CouldStartTwoWord func(word string) bool

type pendingWord struct {
	word string
	at   time.Time
}

// Buffer holds at most one look-ahead word per session, resolving it
// against the command lexicon as soon as either a following word or the
// 100ms flush tick forces a decision.
type Buffer struct {
	mu sync.Mutex

	session string
	pending *pendingWord

	matchSingle SingleWordMatcher
	matchTwo    TwoWordMatcher
	couldStart  CouldStartTwoWord
}

// NewBuffer constructs an empty Buffer parameterized by the command
// lexicon predicates.
func NewBuffer(single SingleWordMatcher, two TwoWordMatcher, couldStart CouldStartTwoWord) *Buffer {
	return &Buffer{
		matchSingle: single,
		matchTwo:    two,
		couldStart:  couldStart,
	}
}

// ProcessWord feeds one WORD message into the buffer, returning zero or
// more items ready for the dispatcher to act on (spec.md section 4.6
// "Algorithm"). A session change first resolves any held word on its own
// (as a single-word command if it is one, otherwise as text) before the
// new word is considered.
func (b *Buffer) ProcessWord(word, session string) []ProcessedItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	var items []ProcessedItem
	if session != b.session {
		if b.pending != nil {
			items = append(items, b.resolvePendingAloneLocked())
		}
		b.session = session
	}

	if b.pending != nil {
		p := b.pending.word
		b.pending = nil

		if code, ok := b.matchTwo(p, word); ok {
			items = append(items, ProcessedItem{Kind: ItemCommand, Command: code})
			return items
		}
		if code, ok := b.matchSingle(p); ok {
			items = append(items, ProcessedItem{Kind: ItemCommand, Command: code})
			items = append(items, b.processAloneLocked(word)...)
			return items
		}
		items = append(items, ProcessedItem{Kind: ItemText, Text: p + " "})
		items = append(items, b.processAloneLocked(word)...)
		return items
	}

	items = append(items, b.processAloneLocked(word)...)
	return items
}

// processAloneLocked implements step 2 of spec.md's algorithm. Caller
// must hold mu.
func (b *Buffer) processAloneLocked(word string) []ProcessedItem {
	if b.couldStart(word) {
		b.pending = &pendingWord{word: word, at: time.Now()}
		return nil
	}
	if code, ok := b.matchSingle(word); ok {
		return []ProcessedItem{{Kind: ItemCommand, Command: code}}
	}
	return []ProcessedItem{{Kind: ItemText, Text: word + " "}}
}

// resolvePendingAloneLocked applies the "pending alone" resolution
// (match as single-word if possible, else emit as text) and clears the
// pending slot. Caller must hold mu.
func (b *Buffer) resolvePendingAloneLocked() ProcessedItem {
	p := b.pending.word
	b.pending = nil
	if code, ok := b.matchSingle(p); ok {
		return ProcessedItem{Kind: ItemCommand, Command: code}
	}
	return ProcessedItem{Kind: ItemText, Text: p + " "}
}

// Flush inspects the pending word and, if it has aged past
// LookaheadTimeout, resolves and clears it. Intended to be called from a
// 100ms periodic tick (spec.md section 4.6 "Flush").
func (b *Buffer) Flush(now time.Time) []ProcessedItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil || now.Sub(b.pending.at) < LookaheadTimeout {
		return nil
	}
	return []ProcessedItem{b.resolvePendingAloneLocked()}
}

// Reset forces an immediate flush of any pending word and clears session
// state. Connection events always trigger Reset (spec.md section 4.6);
// callers are free to discard the returned items when the reset is due
// to a fresh connection rather than an in-session gap, matching
// original_source's Connected handler which resets without re-injecting
// stale lookahead state.
func (b *Buffer) Reset() []ProcessedItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	var items []ProcessedItem
	if b.pending != nil {
		items = append(items, b.resolvePendingAloneLocked())
	}
	b.session = ""
	return items
}
