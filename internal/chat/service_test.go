package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ledgerchat/ledgerchat/internal/archive"
	"github.com/ledgerchat/ledgerchat/internal/config"
	"github.com/ledgerchat/ledgerchat/internal/pipeline"
	"github.com/ledgerchat/ledgerchat/internal/warehouse"
)

type fakeRunner struct {
	mu       sync.Mutex
	outcome  pipeline.Outcome
	err      error
	requests []pipeline.Request
	events   []pipeline.Event
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request, emit pipeline.EmitFunc) (pipeline.Outcome, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	for _, event := range f.events {
		emit(event)
	}
	return f.outcome, f.err
}

type fakeWarehouse struct {
	schema      string
	schemaErr   error
	distinct    map[string][]string
	distinctErr error
}

func (f *fakeWarehouse) ListTables(context.Context) ([]string, error) { return nil, nil }

func (f *fakeWarehouse) TableMetadata(context.Context, string) (warehouse.TableMetadata, error) {
	return warehouse.TableMetadata{}, nil
}

func (f *fakeWarehouse) SchemaForPrompt(context.Context) (string, error) {
	return f.schema, f.schemaErr
}

func (f *fakeWarehouse) Execute(context.Context, string) (warehouse.Result, error) {
	return warehouse.Result{}, nil
}

func (f *fakeWarehouse) CheckSyntax(context.Context, string) error { return nil }

func (f *fakeWarehouse) DistinctValues(_ context.Context, table, column string, _ int) ([]string, error) {
	if f.distinctErr != nil {
		return nil, f.distinctErr
	}
	return f.distinct[table+"."+column], nil
}

type fakeArchiver struct {
	mu      sync.Mutex
	records []archive.Record
	done    chan struct{}
}

func (f *fakeArchiver) Archive(_ context.Context, record archive.Record) error {
	f.mu.Lock()
	f.records = append(f.records, record)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return nil
}

type staticEmbedder struct{}

func (staticEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func testServiceConfig() config.Config {
	cfg := config.Config{}
	cfg.Memory.WindowSize = 15
	cfg.Memory.SemanticEnabled = true
	cfg.Memory.SemanticMatches = 3
	cfg.Memory.SimilarityThreshold = 0.5
	cfg.Memory.OverlapThreshold = 0.6
	cfg.Memory.EmbeddingDimension = 4
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func successOutcome() pipeline.Outcome {
	return pipeline.Outcome{
		Answer:      "Revenue in March 2025 was 1.2M AED.",
		SQLQuery:    `SELECT SUM(value) FROM financial_data WHERE "month" = '2025-03';`,
		Explanation: "Sums revenue for March 2025.",
		Result:      warehouse.Result{Columns: []string{"total"}, Rows: [][]any{{1200000.0}}, RowCount: 1},
		Tables:      []string{"financial_data"},
	}
}

func newTestService(runner PipelineRunner, store warehouse.Store, archiver Archiver) *Service {
	return NewService(testServiceConfig(), store, runner, staticEmbedder{}, archiver, testLogger())
}

func TestAskAssignsSessionAndRecordsMemory(t *testing.T) {
	runner := &fakeRunner{outcome: successOutcome()}
	service := newTestService(runner, &fakeWarehouse{schema: "Table: financial_data"}, nil)

	answer := service.Ask(context.Background(), "", "What was revenue in March 2025?")
	if !answer.Success {
		t.Fatalf("Ask() failed: %+v", answer)
	}
	if answer.SessionID == "" {
		t.Fatal("expected a generated session id")
	}
	if answer.Response != "Revenue in March 2025 was 1.2M AED." {
		t.Fatalf("Response = %q", answer.Response)
	}
	if answer.ResultsCount != 1 {
		t.Fatalf("ResultsCount = %d", answer.ResultsCount)
	}

	summary, err := service.Summary(answer.SessionID)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.TotalQueries != 1 {
		t.Fatalf("TotalQueries = %d", summary.TotalQueries)
	}
	if len(summary.TablesAccessed) != 1 || summary.TablesAccessed[0] != "financial_data" {
		t.Fatalf("TablesAccessed = %v", summary.TablesAccessed)
	}
	if len(summary.QueryTypes) != 1 || summary.QueryTypes[0] == "" {
		t.Fatalf("QueryTypes = %v", summary.QueryTypes)
	}
}

func TestAskReusesSessionAcrossTurns(t *testing.T) {
	runner := &fakeRunner{outcome: successOutcome()}
	service := newTestService(runner, &fakeWarehouse{schema: "Table: financial_data"}, nil)

	first := service.Ask(context.Background(), "", "Show revenue for 2025")
	second := service.Ask(context.Background(), first.SessionID, "What did the previous query show?")
	if second.SessionID != first.SessionID {
		t.Fatalf("session id changed: %q vs %q", first.SessionID, second.SessionID)
	}
	if second.ContextInfo.RecentInteractions == 0 {
		t.Fatal("expected recent context on the second turn")
	}
	if !second.ContextInfo.HasTemporalReference {
		t.Fatal("expected temporal reference detection")
	}

	summary, err := service.Summary(first.SessionID)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.TotalQueries != 2 {
		t.Fatalf("TotalQueries = %d", summary.TotalQueries)
	}
}

func TestAskForwardsSchemaAndDistinctValues(t *testing.T) {
	runner := &fakeRunner{outcome: successOutcome()}
	store := &fakeWarehouse{
		schema: "Table: financial_data",
		distinct: map[string][]string{
			"entity_business_units.business_unit":      {"Aviation", "Real Estate"},
			"entity_business_units.additional_mapping": {"Commercial"},
		},
	}
	service := newTestService(runner, store, nil)

	service.Ask(context.Background(), "", "Show revenue by business unit")
	if len(runner.requests) != 1 {
		t.Fatalf("runner calls = %d", len(runner.requests))
	}
	promptContext := runner.requests[0].Context
	if promptContext.Schema != "Table: financial_data" {
		t.Fatalf("Schema = %q", promptContext.Schema)
	}
	if len(promptContext.BusinessUnits) != 2 || promptContext.BusinessUnits[0] != "Aviation" {
		t.Fatalf("BusinessUnits = %v", promptContext.BusinessUnits)
	}
	if len(promptContext.PropertyTypes) != 1 {
		t.Fatalf("PropertyTypes = %v", promptContext.PropertyTypes)
	}
}

func TestAskToleratesDistinctValueFailure(t *testing.T) {
	runner := &fakeRunner{outcome: successOutcome()}
	store := &fakeWarehouse{schema: "Table: financial_data", distinctErr: errors.New("no such table")}
	service := newTestService(runner, store, nil)

	answer := service.Ask(context.Background(), "", "Show revenue")
	if !answer.Success {
		t.Fatalf("Ask() failed: %+v", answer)
	}
	if len(runner.requests[0].Context.BusinessUnits) != 0 {
		t.Fatalf("BusinessUnits = %v", runner.requests[0].Context.BusinessUnits)
	}
}

func TestAskReportsSchemaFailure(t *testing.T) {
	runner := &fakeRunner{outcome: successOutcome()}
	service := newTestService(runner, &fakeWarehouse{schemaErr: errors.New("connection refused")}, nil)

	answer := service.Ask(context.Background(), "", "Show revenue")
	if answer.Success {
		t.Fatal("expected failure")
	}
	if answer.Error == "" || answer.Response == "" {
		t.Fatalf("expected populated error answer: %+v", answer)
	}
	if answer.UserQuestion != "Show revenue" {
		t.Fatalf("UserQuestion = %q", answer.UserQuestion)
	}
	if len(runner.requests) != 0 {
		t.Fatal("pipeline must not run without a schema")
	}
}

func TestAskReportsPipelineFailure(t *testing.T) {
	runner := &fakeRunner{
		outcome: pipeline.Outcome{SQLQuery: "SELECT broken;", Explanation: "Sums revenue."},
		err:     errors.New("failed to generate SQL query after multiple attempts"),
	}
	service := newTestService(runner, &fakeWarehouse{schema: "Table: financial_data"}, nil)

	answer := service.Ask(context.Background(), "", "Show revenue")
	if answer.Success {
		t.Fatal("expected failure")
	}
	if answer.Error != "failed to generate SQL query after multiple attempts" {
		t.Fatalf("Error = %q", answer.Error)
	}
	if answer.UserQuestion != "Show revenue" {
		t.Fatalf("UserQuestion = %q", answer.UserQuestion)
	}
	if answer.SQLQuery != "SELECT broken;" {
		t.Fatalf("SQLQuery = %q", answer.SQLQuery)
	}
	if answer.SQLExplanation != "Sums revenue." {
		t.Fatalf("SQLExplanation = %q", answer.SQLExplanation)
	}

	if _, err := service.Summary(answer.SessionID); err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	summary, _ := service.Summary(answer.SessionID)
	if summary.TotalQueries != 0 {
		t.Fatalf("failed turns must not be recorded, TotalQueries = %d", summary.TotalQueries)
	}
}

func TestAskStreamEmitsOrderedStages(t *testing.T) {
	runner := &fakeRunner{
		outcome: successOutcome(),
		events: []pipeline.Event{
			{Stage: pipeline.StageAnalyze, Message: "analyzing question"},
			{Stage: pipeline.StageGenerateSQL, Message: "generating query"},
			{Stage: pipeline.StageExecute, Message: "running query"},
		},
	}
	service := newTestService(runner, &fakeWarehouse{schema: "Table: financial_data"}, nil)

	var stages []string
	var final *Answer
	for event := range service.AskStream(context.Background(), "", "Show revenue") {
		stages = append(stages, event.Stage)
		if event.Answer != nil {
			final = event.Answer
		}
	}

	want := []string{"init", "context", "schema", "analyze", "generate_sql", "execute", "store", "complete"}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v", stages)
	}
	for i, stage := range want {
		if stages[i] != stage {
			t.Fatalf("stages[%d] = %q, want %q (all: %v)", i, stages[i], stage, stages)
		}
	}
	if final == nil || !final.Success {
		t.Fatalf("final answer = %+v", final)
	}
}

func TestAskStreamEndsWithErrorStage(t *testing.T) {
	runner := &fakeRunner{err: errors.New("could not fix the query")}
	service := newTestService(runner, &fakeWarehouse{schema: "Table: financial_data"}, nil)

	var last StreamEvent
	for event := range service.AskStream(context.Background(), "", "Show revenue") {
		last = event
	}
	if last.Stage != "error" {
		t.Fatalf("last stage = %q", last.Stage)
	}
	if last.Answer == nil || last.Answer.Success {
		t.Fatalf("expected failed answer on error stage: %+v", last.Answer)
	}
}

func TestAskArchivesCompletedTurn(t *testing.T) {
	archiver := &fakeArchiver{done: make(chan struct{})}
	runner := &fakeRunner{outcome: successOutcome()}
	service := newTestService(runner, &fakeWarehouse{schema: "Table: financial_data"}, archiver)

	answer := service.Ask(context.Background(), "", "What was revenue in March 2025?")

	select {
	case <-archiver.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for archive")
	}

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	if len(archiver.records) != 1 {
		t.Fatalf("archived records = %d", len(archiver.records))
	}
	record := archiver.records[0]
	if record.SessionID != answer.SessionID {
		t.Fatalf("SessionID = %q", record.SessionID)
	}
	if record.Question != "What was revenue in March 2025?" {
		t.Fatalf("Question = %q", record.Question)
	}
	if record.RowCount != 1 {
		t.Fatalf("RowCount = %d", record.RowCount)
	}
}

func TestClearRemovesSession(t *testing.T) {
	runner := &fakeRunner{outcome: successOutcome()}
	service := newTestService(runner, &fakeWarehouse{schema: "Table: financial_data"}, nil)

	answer := service.Ask(context.Background(), "", "Show revenue")
	if err := service.Clear(answer.SessionID); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := service.Summary(answer.SessionID); err == nil {
		t.Fatal("expected summary of cleared session to fail")
	}
	if err := service.Clear(answer.SessionID); err == nil {
		t.Fatal("expected second clear to fail")
	}
}

func TestSummaryUnknownSession(t *testing.T) {
	service := newTestService(&fakeRunner{}, &fakeWarehouse{}, nil)
	if _, err := service.Summary("nope"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}
