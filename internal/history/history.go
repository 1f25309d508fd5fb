// Package history keeps a bounded, in-memory record of request/response
// turns for a single conversation session.
package history

import (
	"sync"
)

const (
	// DefaultMaxStored is the number of turns kept when no limit is given
	DefaultMaxStored = 10

	// SummarizeThreshold is the response length, in characters, above which a
	// projected response is shortened
	SummarizeThreshold = 200

	summaryPreviewLength = 100
	summaryPrefix        = "Generated SQL query: "
	summarySuffix        = "..."
)

// Turn is one completed request and the response returned for it
type Turn struct {
	Request  string `json:"request"`
	Response string `json:"response"`
}

// Tracker stores turns oldest first and evicts from the front once full.
// It is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	turns     []Turn
	maxStored int
}

// New creates a tracker holding at most maxStored turns
func New(maxStored int) *Tracker {
	if maxStored <= 0 {
		maxStored = DefaultMaxStored
	}

	return &Tracker{maxStored: maxStored}
}

// Append records a turn, dropping the oldest turns beyond the limit
func (t *Tracker) Append(turn Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.turns = append(t.turns, turn)
	if overflow := len(t.turns) - t.maxStored; overflow > 0 {
		t.turns = append([]Turn(nil), t.turns[overflow:]...)
	}
}

// Clear drops all stored turns
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.turns = nil
}

// Len returns the number of stored turns
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.turns)
}

// MaxStored returns the retention limit
func (t *Tracker) MaxStored() int {
	return t.maxStored
}

// Snapshot returns a copy of the stored turns, oldest first
func (t *Tracker) Snapshot() []Turn {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Turn, len(t.turns))
	copy(out, t.turns)

	return out
}

// ForPrompt returns the most recent n turns, oldest first, for inclusion in a
// prompt. When summarize is set, long responses are shortened in the returned
// copy only, so stored history is never changed.
func (t *Tracker) ForPrompt(n int, summarize bool) []Turn {
	if n <= 0 {
		return nil
	}

	t.mu.Lock()
	start := len(t.turns) - n
	if start < 0 {
		start = 0
	}

	out := make([]Turn, len(t.turns)-start)
	copy(out, t.turns[start:])
	t.mu.Unlock()

	if summarize {
		for i := range out {
			out[i].Response = Summarize(out[i].Response)
		}
	}

	return out
}

// Summarize shortens responses longer than SummarizeThreshold characters to a
// fixed prefix plus the first 100 characters
func Summarize(response string) string {
	runes := []rune(response)
	if len(runes) <= SummarizeThreshold {
		return response
	}

	return summaryPrefix + string(runes[:summaryPreviewLength]) + summarySuffix
}
