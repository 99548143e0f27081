// Package chat manages conversation sessions and drives the question
// pipeline, one turn at a time per session.
package chat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ledgerchat/ledgerchat/internal/archive"
	"github.com/ledgerchat/ledgerchat/internal/config"
	"github.com/ledgerchat/ledgerchat/internal/genai"
	"github.com/ledgerchat/ledgerchat/internal/memory"
	"github.com/ledgerchat/ledgerchat/internal/observability"
	"github.com/ledgerchat/ledgerchat/internal/pipeline"
	"github.com/ledgerchat/ledgerchat/internal/warehouse"
)

// PipelineRunner abstracts the question pipeline for testing.
type PipelineRunner interface {
	Run(ctx context.Context, req pipeline.Request, emit pipeline.EmitFunc) (pipeline.Outcome, error)
}

// Archiver persists finished interactions outside the process. Implementations
// must be safe for concurrent use.
type Archiver interface {
	Archive(ctx context.Context, record archive.Record) error
}

// Answer is the complete response for one turn.
type Answer struct {
	Success        bool        `json:"success"`
	Response       string      `json:"response"`
	SQLQuery       string      `json:"sql_query,omitempty"`
	SQLExplanation string      `json:"sql_explanation,omitempty"`
	ResultsCount   int         `json:"results_count"`
	TablesUsed     []string    `json:"tables_used,omitempty"`
	ContextInfo    ContextInfo `json:"context_info"`
	SessionID      string      `json:"session_id"`
	UserQuestion   string      `json:"user_question,omitempty"`
	FallbackUsed   bool        `json:"fallback_used,omitempty"`
	Error          string      `json:"error,omitempty"`
}

type ContextInfo struct {
	HasTemporalReference bool `json:"has_temporal_reference"`
	RecentInteractions   int  `json:"recent_interactions_count"`
	SemanticMatches      int  `json:"semantic_matches_count"`
}

// StreamEvent is one progress update on the streaming path. The terminal
// event carries the answer (stage "complete") or the error (stage "error").
type StreamEvent struct {
	Stage   string  `json:"stage"`
	Message string  `json:"message,omitempty"`
	Attempt int     `json:"attempt,omitempty"`
	Answer  *Answer `json:"answer,omitempty"`
}

const (
	stageInit     = "init"
	stageContext  = "context"
	stageSchema   = "schema"
	stageStore    = "store"
	stageComplete = "complete"
	stageError    = "error"
)

type SessionSummary struct {
	SessionID      string    `json:"session_id"`
	StartedAt      time.Time `json:"started_at"`
	TotalQueries   int       `json:"total_queries"`
	TablesAccessed []string  `json:"tables_accessed"`
	QueryTypes     []string  `json:"query_types"`
}

type session struct {
	mu      sync.Mutex
	manager *memory.Manager
	started time.Time
}

type Service struct {
	cfg      config.Config
	store    warehouse.Store
	runner   PipelineRunner
	embedder genai.EmbeddingClient
	index    *memory.SemanticIndex
	archiver Archiver
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewService(cfg config.Config, store warehouse.Store, runner PipelineRunner, embedder genai.EmbeddingClient, archiver Archiver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	var index *memory.SemanticIndex
	if cfg.Memory.SemanticEnabled {
		index = memory.NewSemanticIndex(cfg.Memory.EmbeddingDimension, cfg.Memory.SimilarityThreshold)
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		runner:   runner,
		embedder: embedder,
		index:    index,
		archiver: archiver,
		logger:   logger,
		sessions: map[string]*session{},
	}
}

// Ask runs one turn synchronously. An empty sessionID starts a new session.
func (s *Service) Ask(ctx context.Context, sessionID, question string) Answer {
	return s.process(ctx, sessionID, question, nil)
}

// AskStream runs one turn in a background goroutine and reports progress on
// the returned channel. The channel is unbuffered so the producer advances
// only as fast as the consumer reads; it closes after the terminal event.
func (s *Service) AskStream(ctx context.Context, sessionID, question string) <-chan StreamEvent {
	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		emit := func(event StreamEvent) {
			select {
			case events <- event:
			case <-ctx.Done():
			}
		}
		answer := s.process(ctx, sessionID, question, emit)
		if answer.Success {
			emit(StreamEvent{Stage: stageComplete, Answer: &answer})
		} else {
			emit(StreamEvent{Stage: stageError, Message: answer.Error, Answer: &answer})
		}
	}()
	return events
}

func (s *Service) process(ctx context.Context, sessionID, question string, emit func(StreamEvent)) Answer {
	if emit == nil {
		emit = func(StreamEvent) {}
	}
	emit(StreamEvent{Stage: stageInit})

	sess, sessionID := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	emit(StreamEvent{Stage: stageContext})
	memoryContext := sess.manager.Recall(ctx, question)

	emit(StreamEvent{Stage: stageSchema})
	schema, err := s.store.SchemaForPrompt(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "schema introspection failed", slog.String("error", err.Error()))
		return s.errorAnswer(sessionID, question, fmt.Sprintf("failed to read the database schema: %s", err.Error()))
	}

	promptContext := pipeline.PromptContext{
		Schema:        schema,
		Memory:        memoryContext,
		BusinessUnits: s.distinctValues(ctx, "entity_business_units", "business_unit"),
		PropertyTypes: s.distinctValues(ctx, "entity_business_units", "additional_mapping"),
	}

	outcome, err := s.runner.Run(ctx, pipeline.Request{Question: question, Context: promptContext},
		func(event pipeline.Event) {
			emit(StreamEvent{Stage: string(event.Stage), Message: event.Message, Attempt: event.Attempt})
		})
	if err != nil {
		answer := s.errorAnswer(sessionID, question, err.Error())
		answer.SQLQuery = outcome.SQLQuery
		answer.SQLExplanation = outcome.Explanation
		return answer
	}

	emit(StreamEvent{Stage: stageStore})
	interaction := memory.Interaction{
		ID:        newID(),
		Timestamp: time.Now().UTC(),
		Question:  question,
		SQLQuery:  outcome.SQLQuery,
		Answer:    outcome.Answer,
		Tables:    outcome.Tables,
		RowCount:  outcome.Result.RowCount,
	}
	sess.manager.Record(ctx, interaction)

	if s.archiver != nil {
		record := archive.Record{
			SessionID:     sessionID,
			InteractionID: interaction.ID,
			Timestamp:     interaction.Timestamp,
			Question:      question,
			SQLQuery:      outcome.SQLQuery,
			Answer:        outcome.Answer,
			Tables:        outcome.Tables,
			RowCount:      outcome.Result.RowCount,
		}
		// Fire and forget: archival must never block or fail a turn.
		go func() {
			archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if err := s.archiver.Archive(archiveCtx, record); err != nil {
				s.logger.WarnContext(archiveCtx, "interaction archive failed",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	return Answer{
		Success:        true,
		Response:       outcome.Answer,
		SQLQuery:       outcome.SQLQuery,
		SQLExplanation: outcome.Explanation,
		ResultsCount:   outcome.Result.RowCount,
		TablesUsed:     outcome.Tables,
		ContextInfo: ContextInfo{
			HasTemporalReference: memoryContext.HasTemporalReference,
			RecentInteractions:   len(memoryContext.Recent),
			SemanticMatches:      len(memoryContext.Relevant),
		},
		SessionID:    sessionID,
		FallbackUsed: outcome.FallbackUsed,
	}
}

// Summary reports what a session has done so far.
func (s *Service) Summary(sessionID string) (SessionSummary, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return SessionSummary{}, fmt.Errorf("session %q not found", sessionID)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	interactions := sess.manager.Interactions()

	seen := map[string]struct{}{}
	var tables []string
	queryTypes := make([]string, 0, len(interactions))
	for _, interaction := range interactions {
		for _, table := range interaction.Tables {
			if _, ok := seen[table]; ok {
				continue
			}
			seen[table] = struct{}{}
			tables = append(tables, table)
		}
		queryTypes = append(queryTypes, interaction.QuestionType)
	}

	return SessionSummary{
		SessionID:      sessionID,
		StartedAt:      sess.started,
		TotalQueries:   len(interactions),
		TablesAccessed: tables,
		QueryTypes:     queryTypes,
	}, nil
}

// Clear removes a session. Its semantic index entries stay so other sessions
// can still recall them.
func (s *Service) Clear(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("session %q not found", sessionID)
	}
	delete(s.sessions, sessionID)
	observability.SetActiveSessions(len(s.sessions))
	return nil
}

func (s *Service) session(sessionID string) (*session, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID == "" {
		sessionID = newID()
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{
			manager: memory.NewManager(sessionID, s.cfg.Memory, s.index, s.embedder, s.logger),
			started: time.Now().UTC(),
		}
		s.sessions[sessionID] = sess
		observability.SetActiveSessions(len(s.sessions))
	}
	return sess, sessionID
}

func (s *Service) distinctValues(ctx context.Context, table, column string) []string {
	values, err := s.store.DistinctValues(ctx, table, column, 10)
	if err != nil {
		s.logger.DebugContext(ctx, "distinct value lookup failed",
			slog.String("table", table),
			slog.String("column", column),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return values
}

func (s *Service) errorAnswer(sessionID, question, message string) Answer {
	return Answer{
		Success:      false,
		Response:     "I encountered an issue processing your question: " + message,
		Error:        message,
		UserQuestion: question,
		SessionID:    sessionID,
	}
}

func newID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(buf)
}
