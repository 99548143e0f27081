// Package pipeline turns a natural language question into an executed SQL
// query and a synthesized answer: plan, generate, validate, repair, execute,
// respond, with bounded retries at each fallible step.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ledgerchat/ledgerchat/internal/config"
	"github.com/ledgerchat/ledgerchat/internal/genai"
	"github.com/ledgerchat/ledgerchat/internal/observability"
	"github.com/ledgerchat/ledgerchat/internal/warehouse"
)

type Stage string

const (
	StageSchema             Stage = "schema"
	StageAnalyze            Stage = "analyze"
	StageGenerateSQL        Stage = "generate_sql"
	StageRetryingGeneration Stage = "retrying_generation"
	StageValidate           Stage = "validate"
	StageFixingSQL          Stage = "fixing_sql"
	StageExecute            Stage = "execute"
	StageFixingExecution    Stage = "fixing_execution"
	StageRespond            Stage = "respond"
)

// Event reports pipeline progress. Attempt is set for retry sub-stages.
type Event struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
}

type EmitFunc func(Event)

type Request struct {
	Question string
	Context  PromptContext
}

type Outcome struct {
	Answer       string
	SQLQuery     string
	Explanation  string
	Plan         string
	Result       warehouse.Result
	Tables       []string
	FallbackUsed bool
}

// Sampling parameters per stage. Planning runs hot for breadth, generation
// and repair run cooler for precision.
const (
	planTemperature   = 0.7
	planTopP          = 0.9
	planMaxTokens     = 1024
	fixerTemperature  = 0.4
	fixerTopP         = 0.9
	fixerMaxTokens    = 1024
	answerTemperature = 0.7
	answerTopP        = 0.95
	answerMaxTokens   = 1024
)

type Runner struct {
	chat   genai.ChatClient
	store  warehouse.Store
	cfg    config.PipelineConfig
	ai     config.AIConfig
	logger *slog.Logger
}

func NewRunner(chat genai.ChatClient, store warehouse.Store, cfg config.PipelineConfig, ai config.AIConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{chat: chat, store: store, cfg: cfg, ai: ai, logger: logger}
}

// Run executes the full pipeline for one question. emit may be nil.
func (r *Runner) Run(ctx context.Context, req Request, emit EmitFunc) (Outcome, error) {
	if emit == nil {
		emit = func(Event) {}
	}

	plan, sqlQuery, explanation, err := r.generate(ctx, req, emit)
	if err != nil {
		observability.ObservePipelineRun("generation_failed", -1)
		return Outcome{}, err
	}

	var result warehouse.Result
	executed := false

	emit(Event{Stage: StageValidate})
	validateStart := time.Now()
	validationErr := r.store.CheckSyntax(ctx, sqlQuery)
	observability.ObserveStageDuration(string(StageValidate), time.Since(validateStart))
	if validationErr != nil {
		message := ClassifyValidationError(validationErr)
		r.logger.WarnContext(ctx, "sql validation failed",
			slog.String("question", req.Question),
			slog.String("error", message),
		)
		fixedQuery, fixExplanation, fixedResult, ok := r.repair(ctx, req.Question, sqlQuery, message, StageFixingSQL, emit)
		if !ok {
			observability.ObservePipelineRun("validation_failed", -1)
			return Outcome{SQLQuery: sqlQuery, Explanation: explanation, Plan: plan},
				fmt.Errorf("SQL validation failed: %s", message)
		}
		sqlQuery = fixedQuery
		explanation = fixExplanation
		result = fixedResult
		executed = true
	}

	if !executed {
		emit(Event{Stage: StageExecute})
		executeStart := time.Now()
		executedResult, execErr := r.store.Execute(ctx, sqlQuery)
		observability.ObserveStageDuration(string(StageExecute), time.Since(executeStart))
		if execErr != nil {
			message := StripDriverNoise(execErr.Error())
			r.logger.WarnContext(ctx, "sql execution failed",
				slog.String("question", req.Question),
				slog.String("error", message),
			)
			fixedQuery, fixExplanation, fixedResult, ok := r.repair(ctx, req.Question, sqlQuery, message, StageFixingExecution, emit)
			if !ok {
				observability.ObservePipelineRun("execution_failed", -1)
				return Outcome{SQLQuery: sqlQuery, Explanation: explanation, Plan: plan},
					fmt.Errorf("error executing SQL query: %s", message)
			}
			sqlQuery = fixedQuery
			explanation = fixExplanation
			result = fixedResult
		} else {
			result = executedResult
		}
	}

	emit(Event{Stage: StageRespond})
	answer, fallbackUsed := r.respond(ctx, req, sqlQuery, result)

	observability.ObservePipelineRun("success", result.RowCount)
	return Outcome{
		Answer:       answer,
		SQLQuery:     sqlQuery,
		Explanation:  explanation,
		Plan:         plan,
		Result:       result,
		Tables:       ExtractTables(sqlQuery),
		FallbackUsed: fallbackUsed,
	}, nil
}

// generate produces a plan and a parsed SQL query, retrying the whole
// plan+generate step when the model returns no usable SQL.
func (r *Runner) generate(ctx context.Context, req Request, emit EmitFunc) (plan, sqlQuery, explanation string, err error) {
	emit(Event{Stage: StageAnalyze})
	plan, sqlQuery, explanation = r.planAndGenerate(ctx, req, emit)
	if sqlQuery != "" {
		return plan, sqlQuery, explanation, nil
	}

	for attempt := 1; attempt <= r.cfg.MaxGenerationRetries; attempt++ {
		emit(Event{Stage: StageRetryingGeneration, Attempt: attempt})
		observability.IncrementGenerationRetry()
		r.logger.WarnContext(ctx, "retrying SQL generation",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.cfg.MaxGenerationRetries),
		)
		plan, sqlQuery, explanation = r.planAndGenerate(ctx, req, emit)
		if sqlQuery != "" {
			return plan, sqlQuery, explanation, nil
		}
	}
	return plan, "", "", fmt.Errorf("failed to generate SQL query after multiple attempts")
}

func (r *Runner) planAndGenerate(ctx context.Context, req Request, emit EmitFunc) (plan, sqlQuery, explanation string) {
	planStart := time.Now()
	planCompletion, err := r.chat.Complete(ctx, genai.ChatRequest{
		Messages: []genai.Message{
			{Role: genai.RoleSystem, Content: planSystemPrompt},
			{Role: genai.RoleUser, Content: BuildPlanPrompt(req.Question, req.Context)},
		},
		Temperature: planTemperature,
		TopP:        planTopP,
		MaxTokens:   planMaxTokens,
	})
	observability.ObserveStageDuration(string(StageAnalyze), time.Since(planStart))
	if err != nil {
		r.logger.WarnContext(ctx, "plan generation failed", slog.String("error", err.Error()))
		return "", "", ""
	}
	plan = strings.TrimSpace(planCompletion)

	emit(Event{Stage: StageGenerateSQL})
	generateStart := time.Now()
	completion, err := r.chat.Complete(ctx, genai.ChatRequest{
		Messages: []genai.Message{
			{Role: genai.RoleSystem, Content: sqlSystemPrompt},
			{Role: genai.RoleUser, Content: BuildSQLPrompt(req.Question, plan, req.Context)},
		},
		Temperature: r.ai.Temperature,
		TopP:        r.ai.TopP,
		MaxTokens:   r.ai.MaxTokens,
	})
	observability.ObserveStageDuration(string(StageGenerateSQL), time.Since(generateStart))
	if err != nil {
		r.logger.WarnContext(ctx, "sql generation failed", slog.String("error", err.Error()))
		return plan, "", ""
	}

	sqlQuery, explanation = ParseSQLResponse(completion)
	return plan, sqlQuery, explanation
}

// respond synthesizes the final answer, falling back to a deterministic
// summary when the model fails.
func (r *Runner) respond(ctx context.Context, req Request, sqlQuery string, result warehouse.Result) (string, bool) {
	respondStart := time.Now()
	answer, err := r.chat.Complete(ctx, genai.ChatRequest{
		Messages: []genai.Message{
			{Role: genai.RoleSystem, Content: answerSystemPrompt},
			{Role: genai.RoleUser, Content: BuildAnswerPrompt(req.Question, sqlQuery, result, req.Context)},
		},
		Temperature: answerTemperature,
		TopP:        answerTopP,
		MaxTokens:   answerMaxTokens,
	})
	observability.ObserveStageDuration(string(StageRespond), time.Since(respondStart))
	if err != nil {
		r.logger.WarnContext(ctx, "answer generation failed", slog.String("error", err.Error()))
		return FallbackAnswer(result, req.Question), true
	}
	if strings.TrimSpace(answer) == "" {
		return "I was able to retrieve the data, but couldn't generate a proper response.", true
	}
	return answer, false
}

// repair asks the model to fix a failing query, confirming each candidate by
// validation and execution. The error and query fed forward are always the
// latest failing pair.
func (r *Runner) repair(ctx context.Context, question, failedQuery, errorMessage string, stage Stage, emit EmitFunc) (string, string, warehouse.Result, bool) {
	for attempt := 1; attempt <= r.cfg.MaxRepairAttempts; attempt++ {
		emit(Event{Stage: stage, Attempt: attempt, Message: errorMessage})
		r.logger.InfoContext(ctx, "attempting query repair",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.cfg.MaxRepairAttempts),
			slog.String("error", errorMessage),
		)

		completion, err := r.chat.Complete(ctx, genai.ChatRequest{
			Messages: []genai.Message{
				{Role: genai.RoleSystem, Content: fixerSystemPrompt},
				{Role: genai.RoleUser, Content: BuildFixerPrompt(failedQuery, errorMessage, question)},
			},
			Temperature: fixerTemperature,
			TopP:        fixerTopP,
			MaxTokens:   fixerMaxTokens,
		})
		if err != nil {
			r.logger.WarnContext(ctx, "repair completion failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			observability.ObserveRepairAttempt(false)
			continue
		}

		fixedQuery, fixExplanation := ParseSQLResponse(completion)
		if fixedQuery == "" {
			observability.ObserveRepairAttempt(false)
			continue
		}

		if err := r.store.CheckSyntax(ctx, fixedQuery); err != nil {
			errorMessage = ClassifyValidationError(err)
			failedQuery = fixedQuery
			observability.ObserveRepairAttempt(false)
			continue
		}

		result, err := r.store.Execute(ctx, fixedQuery)
		if err != nil {
			errorMessage = StripDriverNoise(err.Error())
			failedQuery = fixedQuery
			observability.ObserveRepairAttempt(false)
			continue
		}

		observability.ObserveRepairAttempt(true)
		r.logger.InfoContext(ctx, "query fixed", slog.Int("attempt", attempt))
		return fixedQuery, fixExplanation, result, true
	}

	r.logger.WarnContext(ctx, "could not fix query",
		slog.Int("max_attempts", r.cfg.MaxRepairAttempts),
	)
	return failedQuery, "Could not fix the query automatically", warehouse.Result{}, false
}
