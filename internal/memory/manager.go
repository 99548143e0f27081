package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledgerchat/ledgerchat/internal/config"
	"github.com/ledgerchat/ledgerchat/internal/genai"
	"github.com/ledgerchat/ledgerchat/internal/observability"
)

// Manager combines the per-session sliding window with the shared semantic
// index. One manager serves one session; the index may be shared by many.
type Manager struct {
	sessionID string
	cfg       config.MemoryConfig
	window    *SlidingWindow
	index     *SemanticIndex
	embedder  genai.EmbeddingClient
	logger    *slog.Logger
}

// NewManager builds a session memory. index and embedder may be nil when
// semantic recall is disabled.
func NewManager(sessionID string, cfg config.MemoryConfig, index *SemanticIndex, embedder genai.EmbeddingClient, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessionID: sessionID,
		cfg:       cfg,
		window:    NewSlidingWindow(cfg.WindowSize),
		index:     index,
		embedder:  embedder,
		logger:    logger,
	}
}

func (m *Manager) SessionID() string {
	return m.sessionID
}

func (m *Manager) Interactions() []Interaction {
	return m.window.All()
}

// Record stores a finished interaction in both memory layers. Embedding
// failures degrade to a zero vector so the turn is never lost.
func (m *Manager) Record(ctx context.Context, interaction Interaction) {
	interaction.SessionID = m.sessionID
	if interaction.QuestionType == "" {
		interaction.QuestionType = ClassifyQuestion(interaction.Question)
	}
	m.window.Add(interaction)

	if !m.semanticEnabled() {
		return
	}
	combined := "Q: " + interaction.Question + " A: " + interaction.Answer
	m.index.Add(m.embed(ctx, combined), interaction)
}

// Recall assembles the context for a new question: targeted or recent window
// slices, cross-session semantic matches, and a conversation flow line for
// questions that refer back.
func (m *Manager) Recall(ctx context.Context, question string) Context {
	result := Context{HasTemporalReference: HasTemporalReference(question)}

	if result.HasTemporalReference {
		result.Recent = m.window.Recent(question, 3)
		result.Flow = buildConversationFlow(result.Recent)
	} else {
		result.Recent = m.window.Recent(question, 2)
	}

	if m.semanticEnabled() {
		matches := m.cfg.SemanticMatches
		if matches <= 0 {
			matches = 3
		}
		result.Relevant = m.index.Search(m.embed(ctx, question), matches, m.sessionID)
		observability.AddSemanticMatches(len(result.Relevant))
	}

	return m.optimize(result)
}

func (m *Manager) semanticEnabled() bool {
	return m.cfg.SemanticEnabled && m.index != nil && m.embedder != nil
}

func (m *Manager) embed(ctx context.Context, text string) []float32 {
	vector, err := m.embedder.Embed(ctx, text)
	if err != nil {
		m.logger.WarnContext(ctx, "embedding failed, using zero vector",
			slog.String("session_id", m.sessionID),
			slog.String("error", err.Error()),
		)
		return make([]float32, m.index.Dimension())
	}
	return vector
}

// optimize drops semantic matches that restate a recent question and trims
// both layers to their final sizes. Temporal questions lean on the window, so
// semantic recall shrinks to one entry.
func (m *Manager) optimize(c Context) Context {
	if len(c.Recent) > 0 && len(c.Relevant) > 0 {
		filtered := make([]Match, 0, len(c.Relevant))
		for _, match := range c.Relevant {
			duplicate := false
			for _, recent := range c.Recent {
				if m.questionsSimilar(match.Question, recent.Question) {
					duplicate = true
					break
				}
			}
			if !duplicate {
				filtered = append(filtered, match)
			}
		}
		if len(filtered) > 2 {
			filtered = filtered[:2]
		}
		c.Relevant = filtered
	}

	if c.HasTemporalReference {
		if len(c.Relevant) > 1 {
			c.Relevant = c.Relevant[:1]
		}
	} else {
		if len(c.Recent) > 2 {
			c.Recent = c.Recent[len(c.Recent)-2:]
		}
		if len(c.Relevant) > 2 {
			c.Relevant = c.Relevant[:2]
		}
	}
	return c
}

// questionsSimilar uses word overlap over the shorter question as a cheap
// duplicate test. The threshold is exclusive: exactly at it is not a
// duplicate.
func (m *Manager) questionsSimilar(q1, q2 string) bool {
	words1 := wordSet(q1)
	words2 := wordSet(q2)
	if len(words1) == 0 || len(words2) == 0 {
		return false
	}

	overlap := 0
	for word := range words1 {
		if _, ok := words2[word]; ok {
			overlap++
		}
	}
	minLen := len(words1)
	if len(words2) < minLen {
		minLen = len(words2)
	}

	threshold := m.cfg.OverlapThreshold
	if threshold <= 0 {
		threshold = 0.6
	}
	return float64(overlap)/float64(minLen) > threshold
}

func wordSet(value string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, word := range strings.Fields(strings.ToLower(value)) {
		set[word] = struct{}{}
	}
	return set
}

func buildConversationFlow(recent []Interaction) string {
	if len(recent) == 0 {
		return ""
	}
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	parts := make([]string, 0, len(recent))
	for i, interaction := range recent {
		parts = append(parts, fmt.Sprintf("Step %d: User asked '%s' and received analysis about %s",
			i+1, interaction.Question, strings.Join(interaction.Tables, ", ")))
	}
	return strings.Join(parts, " -> ")
}
