package memory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ledgerchat/ledgerchat/internal/config"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if vector, ok := f.vectors[text]; ok {
		return vector, nil
	}
	return []float32{1, 0, 0, 0}, nil
}

func testMemoryConfig() config.MemoryConfig {
	return config.MemoryConfig{
		WindowSize:          15,
		SemanticEnabled:     true,
		SemanticMatches:     3,
		SimilarityThreshold: 0.5,
		OverlapThreshold:    0.6,
		EmbeddingDimension:  4,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRecordClassifiesAndIndexes(t *testing.T) {
	index := NewSemanticIndex(4, 0.5)
	embedder := &fakeEmbedder{}
	m := NewManager("s1", testMemoryConfig(), index, embedder, testLogger())

	m.Record(context.Background(), Interaction{
		ID:       "i1",
		Question: "What is the total revenue?",
		Answer:   "Revenue was 1.2M.",
		Tables:   []string{"financial_data"},
	})

	stored := m.Interactions()
	if len(stored) != 1 {
		t.Fatalf("len(stored) = %d", len(stored))
	}
	if stored[0].SessionID != "s1" {
		t.Fatalf("SessionID = %q", stored[0].SessionID)
	}
	if stored[0].QuestionType != TypeAggregation {
		t.Fatalf("QuestionType = %q", stored[0].QuestionType)
	}
	if index.Len() != 1 {
		t.Fatalf("index.Len() = %d", index.Len())
	}
	if embedder.calls != 1 {
		t.Fatalf("embedder.calls = %d", embedder.calls)
	}
}

func TestRecallCombinesWindowAndIndex(t *testing.T) {
	index := NewSemanticIndex(4, 0.5)
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}

	// Another session seeds the shared index with a close match.
	other := NewManager("other", testMemoryConfig(), index, embedder, testLogger())
	embedder.vectors["Q: Show payroll costs for US-Hub A: Payroll was 400k."] = []float32{0.9, 0.1, 0, 0}
	other.Record(context.Background(), Interaction{
		ID:       "o1",
		Question: "Show payroll costs for US-Hub",
		Answer:   "Payroll was 400k.",
		Tables:   []string{"financial_data"},
	})

	m := NewManager("s1", testMemoryConfig(), index, embedder, testLogger())
	m.Record(context.Background(), Interaction{ID: "i1", Question: "Show revenue for 2024", Answer: "1.2M"})

	embedder.vectors["What were payroll costs last year?"] = []float32{1, 0, 0, 0}
	ctx := m.Recall(context.Background(), "What were payroll costs last year?")

	if len(ctx.Recent) != 1 {
		t.Fatalf("len(Recent) = %d", len(ctx.Recent))
	}
	if len(ctx.Relevant) != 1 {
		t.Fatalf("len(Relevant) = %d", len(ctx.Relevant))
	}
	if ctx.Relevant[0].Question != "Show payroll costs for US-Hub" {
		t.Fatalf("Relevant[0].Question = %q", ctx.Relevant[0].Question)
	}
}

func TestRecallExcludesOwnSession(t *testing.T) {
	index := NewSemanticIndex(4, 0.5)
	embedder := &fakeEmbedder{}
	m := NewManager("s1", testMemoryConfig(), index, embedder, testLogger())

	m.Record(context.Background(), Interaction{ID: "i1", Question: "total revenue", Answer: "1.2M"})

	// The single indexed entry belongs to this session, so semantic recall
	// must return nothing even though the vectors match exactly.
	ctx := m.Recall(context.Background(), "zzz unrelated words entirely")
	if len(ctx.Relevant) != 0 {
		t.Fatalf("len(Relevant) = %d, want 0", len(ctx.Relevant))
	}
}

func TestRecallTemporalBuildsFlowAndCapsSemantic(t *testing.T) {
	index := NewSemanticIndex(4, 0.5)
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}

	other := NewManager("other", testMemoryConfig(), index, embedder, testLogger())
	other.Record(context.Background(), Interaction{ID: "o1", Question: "aaa", Answer: "x", Tables: []string{"gl_accounts"}})
	other.Record(context.Background(), Interaction{ID: "o2", Question: "bbb", Answer: "y", Tables: []string{"gl_accounts"}})
	other.Record(context.Background(), Interaction{ID: "o3", Question: "ccc", Answer: "z", Tables: []string{"gl_accounts"}})

	m := NewManager("s1", testMemoryConfig(), index, embedder, testLogger())
	m.Record(context.Background(), Interaction{ID: "i1", Question: "Show revenue by entity", Answer: "...", Tables: []string{"financial_data", "entity_business_units"}})

	ctx := m.Recall(context.Background(), "expand on that analysis")
	if !ctx.HasTemporalReference {
		t.Fatal("expected temporal reference")
	}
	if len(ctx.Recent) != 1 {
		t.Fatalf("len(Recent) = %d, want 1", len(ctx.Recent))
	}
	if len(ctx.Relevant) > 1 {
		t.Fatalf("len(Relevant) = %d, want at most 1 for temporal questions", len(ctx.Relevant))
	}
	if !strings.Contains(ctx.Flow, "Step 1: User asked 'Show revenue by entity'") {
		t.Fatalf("Flow = %q", ctx.Flow)
	}
	if !strings.Contains(ctx.Flow, "financial_data, entity_business_units") {
		t.Fatalf("Flow = %q", ctx.Flow)
	}
}

func TestRecallDropsNearDuplicateMatches(t *testing.T) {
	index := NewSemanticIndex(4, 0.5)
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}

	other := NewManager("other", testMemoryConfig(), index, embedder, testLogger())
	other.Record(context.Background(), Interaction{ID: "o1", Question: "show revenue for 2024", Answer: "1.2M"})

	m := NewManager("s1", testMemoryConfig(), index, embedder, testLogger())
	m.Record(context.Background(), Interaction{ID: "i1", Question: "show revenue for 2024", Answer: "1.2M"})

	// The semantic match restates the recent question word for word, so the
	// dedup filter must drop it.
	ctx := m.Recall(context.Background(), "anything else")
	if len(ctx.Relevant) != 0 {
		t.Fatalf("len(Relevant) = %d, want 0", len(ctx.Relevant))
	}
}

func TestOverlapThresholdIsExclusive(t *testing.T) {
	m := NewManager("s1", testMemoryConfig(), nil, nil, testLogger())

	// 3 of 5 shared words over a shorter length of 5 is 0.6 exactly: kept.
	if m.questionsSimilar("a b c d e", "a b c x y") {
		t.Fatal("ratio exactly at the threshold must not count as duplicate")
	}
	// 4 of 5 is 0.8: dropped.
	if !m.questionsSimilar("a b c d e", "a b c d y") {
		t.Fatal("ratio above the threshold must count as duplicate")
	}
}

func TestEmbeddingFailureDegradesToNoMatches(t *testing.T) {
	index := NewSemanticIndex(4, 0.5)
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}

	other := NewManager("other", testMemoryConfig(), index, embedder, testLogger())
	other.Record(context.Background(), Interaction{ID: "o1", Question: "show revenue", Answer: "1.2M"})

	embedder.err = errors.New("embedding provider down")
	m := NewManager("s1", testMemoryConfig(), index, embedder, testLogger())
	ctx := m.Recall(context.Background(), "show revenue")
	if len(ctx.Relevant) != 0 {
		t.Fatalf("len(Relevant) = %d, want 0 with a zero query vector", len(ctx.Relevant))
	}
}

func TestSemanticDisabledSkipsEmbedding(t *testing.T) {
	cfg := testMemoryConfig()
	cfg.SemanticEnabled = false
	embedder := &fakeEmbedder{}
	m := NewManager("s1", cfg, nil, embedder, testLogger())

	m.Record(context.Background(), Interaction{ID: "i1", Question: "show revenue", Answer: "1.2M"})
	ctx := m.Recall(context.Background(), "show costs")

	if embedder.calls != 0 {
		t.Fatalf("embedder.calls = %d, want 0", embedder.calls)
	}
	if len(ctx.Relevant) != 0 {
		t.Fatalf("len(Relevant) = %d", len(ctx.Relevant))
	}
	if len(ctx.Recent) != 1 {
		t.Fatalf("len(Recent) = %d", len(ctx.Recent))
	}
}
