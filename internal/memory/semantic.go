package memory

import (
	"sort"
	"sync"
)

type indexEntry struct {
	embedding   []float32
	interaction Interaction
}

// SemanticIndex is a flat L2 index over interaction embeddings. One index is
// shared by all sessions so recall can cross session boundaries. The
// similarity threshold is an empirical tuning knob, not a derived value.
type SemanticIndex struct {
	mu        sync.RWMutex
	dimension int
	threshold float64
	entries   []indexEntry
}

func NewSemanticIndex(dimension int, similarityThreshold float64) *SemanticIndex {
	if dimension <= 0 {
		dimension = 1536
	}
	if similarityThreshold <= 0 {
		similarityThreshold = 0.5
	}
	return &SemanticIndex{dimension: dimension, threshold: similarityThreshold}
}

func (x *SemanticIndex) Dimension() int {
	return x.dimension
}

func (x *SemanticIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Add stores an interaction under its embedding. Vectors of the wrong length
// are padded or cut to the index dimension so a degraded embedder cannot
// poison the index.
func (x *SemanticIndex) Add(embedding []float32, interaction Interaction) {
	fitted := make([]float32, x.dimension)
	copy(fitted, embedding)

	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = append(x.entries, indexEntry{embedding: fitted, interaction: interaction})
}

// Search returns up to n interactions similar to the query embedding,
// skipping entries from excludeSession. Similarity is 1/(1+d) where d is the
// squared L2 distance, the value a flat L2 index reports; only matches
// strictly above the threshold qualify.
func (x *SemanticIndex) Search(query []float32, n int, excludeSession string) []Match {
	if n <= 0 {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.entries) == 0 {
		return nil
	}

	fitted := make([]float32, x.dimension)
	copy(fitted, query)

	type scored struct {
		distance float64
		entry    indexEntry
	}
	candidates := make([]scored, 0, len(x.entries))
	for _, entry := range x.entries {
		candidates = append(candidates, scored{
			distance: squaredL2Distance(fitted, entry.embedding),
			entry:    entry,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})

	// Widen the candidate pool before filtering, then stop at n accepted.
	k := n * 2
	if k > len(candidates) {
		k = len(candidates)
	}

	matches := make([]Match, 0, n)
	for _, candidate := range candidates[:k] {
		interaction := candidate.entry.interaction
		if excludeSession != "" && interaction.SessionID == excludeSession {
			continue
		}
		similarity := 1 / (1 + candidate.distance)
		if similarity <= x.threshold {
			continue
		}
		matches = append(matches, Match{
			Question:   interaction.Question,
			Answer:     interaction.Answer,
			SQLQuery:   interaction.SQLQuery,
			Tables:     interaction.Tables,
			Similarity: similarity,
			Timestamp:  interaction.Timestamp,
		})
		if len(matches) >= n {
			break
		}
	}
	return matches
}

func (x *SemanticIndex) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = nil
}

func squaredL2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return sum
}
