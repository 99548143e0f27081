package memory

import (
	"regexp"
	"strings"
)

// Patterns that anchor a question to a specific earlier interaction. The
// window uses these to decide how far back to reach.
var specificReferencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(previous|last|earlier|before)\s+(query|question|analysis)\b`),
	regexp.MustCompile(`\bwe\s+(discussed|analyzed|looked at|found)\b`),
	regexp.MustCompile(`\b(that|this)\s+(data|result|analysis)\b`),
	regexp.MustCompile(`\b(show\s+more|tell\s+me\s+more|expand\s+on)\b`),
}

// SlidingWindow keeps the most recent interactions of one session, oldest
// evicted first. It is not safe for concurrent use; the owning session
// serializes access.
type SlidingWindow struct {
	size         int
	interactions []Interaction
}

func NewSlidingWindow(size int) *SlidingWindow {
	if size <= 0 {
		size = 1
	}
	return &SlidingWindow{size: size}
}

func (w *SlidingWindow) Add(interaction Interaction) {
	w.interactions = append(w.interactions, interaction)
	if len(w.interactions) > w.size {
		w.interactions = w.interactions[1:]
	}
}

func (w *SlidingWindow) Len() int {
	return len(w.interactions)
}

// All returns a copy of the window contents, oldest first.
func (w *SlidingWindow) All() []Interaction {
	out := make([]Interaction, len(w.interactions))
	copy(out, w.interactions)
	return out
}

// Recent selects interactions for the given question. Questions that point at
// a specific earlier exchange get a targeted slice; everything else gets the
// last n.
func (w *SlidingWindow) Recent(question string, n int) []Interaction {
	if w.hasSpecificReference(question) {
		return w.specificContext(question)
	}
	return w.tail(n)
}

func (w *SlidingWindow) hasSpecificReference(question string) bool {
	lowered := strings.ToLower(question)
	for _, pattern := range specificReferencePatterns {
		if pattern.MatchString(lowered) {
			return true
		}
	}
	return false
}

func (w *SlidingWindow) specificContext(question string) []Interaction {
	lowered := strings.ToLower(question)
	switch {
	case strings.Contains(lowered, "previous") && len(w.interactions) >= 2:
		return w.tail(2)
	case strings.Contains(lowered, "last") && len(w.interactions) >= 3:
		return w.tail(3)
	case strings.Contains(lowered, "tell me more"),
		strings.Contains(lowered, "show more"),
		strings.Contains(lowered, "expand"):
		return w.tail(1)
	default:
		return w.tail(5)
	}
}

func (w *SlidingWindow) tail(n int) []Interaction {
	if n <= 0 || len(w.interactions) == 0 {
		return nil
	}
	if n > len(w.interactions) {
		n = len(w.interactions)
	}
	out := make([]Interaction, n)
	copy(out, w.interactions[len(w.interactions)-n:])
	return out
}
