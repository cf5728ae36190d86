package transcript

import (
	"strings"
	"sync"
)

// Accumulator merges streaming speech-to-text fragments into a live caption
// for the in-progress utterance and a durable full-session transcript.
//
// Interim fragments are full restatements of the current utterance, so each
// one replaces the caption rather than appending to it. A finalization event
// commits the caption to the session transcript and clears it for the next
// turn.
type Accumulator struct {
	mu         sync.Mutex
	current    string
	utterances []string
}

// New returns an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// Interim replaces the live caption with the latest restatement.
// Empty or whitespace-only fragments are ignored.
func (a *Accumulator) Interim(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	a.mu.Lock()
	a.current = text
	a.mu.Unlock()
}

// Finalize commits the in-progress utterance to the session transcript and
// clears the caption. If text is non-empty it supersedes the caption (the
// backend's final restatement wins over the last interim). Utterances that
// trim to nothing are dropped without adding an entry.
//
// It returns the committed utterance, or "" when nothing was committed.
func (a *Accumulator) Finalize(text string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	utterance := strings.TrimSpace(text)
	if utterance == "" {
		utterance = strings.TrimSpace(a.current)
	}
	a.current = ""
	if utterance == "" {
		return ""
	}
	a.utterances = append(a.utterances, utterance)
	return utterance
}

// Live returns the current in-progress caption.
func (a *Accumulator) Live() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Utterances returns a copy of the finalized utterance sequence.
func (a *Accumulator) Utterances() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.utterances))
	copy(out, a.utterances)
	return out
}

// Full returns the space-joined session transcript, including the in-flight
// caption so words spoken right before session close are not lost.
func (a *Accumulator) Full() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	parts := a.utterances
	if live := strings.TrimSpace(a.current); live != "" {
		parts = append(append([]string{}, a.utterances...), live)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Len reports the number of finalized utterances.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.utterances)
}
