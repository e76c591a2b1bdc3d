package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/koustreak/dataagent/internal/executor"
	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
	"github.com/koustreak/dataagent/internal/translate"
	"github.com/koustreak/dataagent/internal/validate"
)

// Pipeline paths and outcomes reported to the Recorder.
const (
	PathNaturalLanguage = "natural_language"
	PathSQL             = "sql"

	OutcomeSuccess         = "success"
	OutcomeNoSchemas       = "no_schemas"
	OutcomeTranslateFailed = "translation_failed"
	OutcomeBlocked         = "blocked"
	OutcomeExecuteFailed   = "execution_failed"
	OutcomeError           = "error"
)

// NaturalLanguageParam is the metadata parameter carrying the original request.
const NaturalLanguageParam = "naturalLanguageQuery"

// SchemaSource hands out the registered descriptors. *Service implements it.
type SchemaSource interface {
	Schemas() []*model.EntityDescriptor
}

// Recorder observes finished pipeline runs.
type Recorder interface {
	ObservePipeline(path, outcome string, elapsed time.Duration)
}

// Orchestrator runs the query pipeline: schemas, translate, validate,
// execute. Stages run in order on the calling goroutine and nothing is
// retried. Every run ends in a QueryResult; no error or panic escapes.
type Orchestrator struct {
	schemas    SchemaSource
	translator translate.Translator
	validator  validate.Validator
	executor   executor.Executor

	dialect  string
	recorder Recorder
	log      *logger.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

func WithOrchestratorLogger(l *logger.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l.Component("orchestrator")
		}
	}
}

// WithRecorder reports every run to r.
func WithRecorder(r Recorder) OrchestratorOption {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithDialect sets the dialect used when a request names none.
func WithDialect(d string) OrchestratorOption {
	return func(o *Orchestrator) { o.dialect = d }
}

// NewOrchestrator wires a pipeline.
func NewOrchestrator(schemas SchemaSource, t translate.Translator, v validate.Validator, ex executor.Executor, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		schemas:    schemas,
		translator: t,
		validator:  v,
		executor:   ex,
		dialect:    "postgresql",
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessNaturalLanguage translates text into SQL for dialect, validates
// it and runs it. An empty dialect uses the configured default.
func (o *Orchestrator) ProcessNaturalLanguage(ctx context.Context, text, dialect string) (res *model.QueryResult) {
	start := time.Now()
	outcome := OutcomeError
	defer func() {
		if r := recover(); r != nil {
			o.log.ErrorWith("natural language pipeline panicked", fmt.Errorf("%v", r), nil)
			res = model.FailedResult(start, fmt.Sprintf("Error processing natural language query: %v", r))
			outcome = OutcomeError
		}
		o.finish(PathNaturalLanguage, outcome, start, res)
	}()

	if dialect == "" {
		dialect = o.dialect
	}

	schemas := o.schemas.Schemas()
	if len(schemas) == 0 {
		outcome = OutcomeNoSchemas
		return model.FailedResult(start, "No entity schemas available. Please ensure Data Agent has discovered entities.")
	}

	sql, err := o.translator.Translate(ctx, text, schemas, dialect)
	if err != nil {
		outcome = OutcomeTranslateFailed
		o.log.WarnWith("translation failed", err, map[string]any{"dialect": dialect})
		return model.FailedResult(start, "Error processing natural language query: "+executor.Reason(err))
	}

	verdict := o.validator.Validate(ctx, sql, schemas)
	if !verdict.Allowed() {
		outcome = OutcomeBlocked
		o.log.WarnWith("generated query blocked", nil, map[string]any{"score": verdict.SafetyScore, "reason": verdict.Reason})
		return model.FailedResult(start, "Generated SQL query is not safe to execute: "+reasonOr(verdict))
	}

	res = o.executor.ExecuteQuery(ctx, sql, nil)
	if res == nil {
		return model.FailedResult(start, "Error processing natural language query: executor returned no result")
	}
	if !res.Success {
		outcome = OutcomeExecuteFailed
		return res
	}

	outcome = OutcomeSuccess
	if res.Metadata != nil {
		md := *res.Metadata
		md.Query = sql
		md.Parameters = map[string]any{NaturalLanguageParam: text}
		res.Metadata = &md
	}
	return res
}

// ExecuteSQL validates a caller-supplied statement and runs it. Row
// returning statements go through ExecuteQuery, mutations and DDL
// through ExecuteUpdate.
func (o *Orchestrator) ExecuteSQL(ctx context.Context, sql string, params map[string]any) (res *model.QueryResult) {
	start := time.Now()
	outcome := OutcomeError
	defer func() {
		if r := recover(); r != nil {
			o.log.ErrorWith("sql pipeline panicked", fmt.Errorf("%v", r), nil)
			res = model.FailedResult(start, fmt.Sprintf("Error executing SQL query: %v", r))
			outcome = OutcomeError
		}
		o.finish(PathSQL, outcome, start, res)
	}()

	schemas := o.schemas.Schemas()

	verdict := o.validator.Validate(ctx, sql, schemas)
	if !verdict.Allowed() {
		outcome = OutcomeBlocked
		o.log.WarnWith("query blocked", nil, map[string]any{"score": verdict.SafetyScore, "reason": verdict.Reason})
		return model.FailedResult(start, "SQL query is not safe to execute: "+reasonOr(verdict))
	}

	switch executor.Classify(sql) {
	case model.KindInsert, model.KindUpdate, model.KindDelete, model.KindDDL:
		res = o.executor.ExecuteUpdate(ctx, sql, params)
	default:
		res = o.executor.ExecuteQuery(ctx, sql, params)
	}
	if res == nil {
		return model.FailedResult(start, "Error executing SQL query: executor returned no result")
	}
	if res.Success {
		outcome = OutcomeSuccess
	} else {
		outcome = OutcomeExecuteFailed
	}
	return res
}

// IsReady reports whether the backing store answers.
func (o *Orchestrator) IsReady(ctx context.Context) bool {
	return o.executor.IsReady(ctx)
}

// DatabaseInfo describes the backing store.
func (o *Orchestrator) DatabaseInfo(ctx context.Context) map[string]any {
	return o.executor.DatabaseInfo(ctx)
}

// Tables lists physical tables when the executor can.
func (o *Orchestrator) Tables(ctx context.Context) ([]string, bool) {
	lister, ok := o.executor.(interface {
		Tables(ctx context.Context) ([]string, error)
	})
	if !ok {
		return nil, false
	}
	tables, err := lister.Tables(ctx)
	if err != nil {
		o.log.WarnWith("cannot list tables", err, nil)
		return nil, false
	}
	return tables, true
}

// finish stamps the wall-clock time of the whole run on res.
func (o *Orchestrator) finish(path, outcome string, start time.Time, res *model.QueryResult) {
	elapsed := time.Since(start)
	if res != nil {
		res.ExecutionTime = elapsed
	}
	if o.recorder != nil {
		o.recorder.ObservePipeline(path, outcome, elapsed)
	}
	o.log.DebugWith("pipeline finished", map[string]any{
		"path":       path,
		"outcome":    outcome,
		"elapsed_ms": elapsed.Milliseconds(),
	})
}

func reasonOr(v model.ValidationResult) string {
	if v.Reason != "" {
		return v.Reason
	}
	return "Validation failed"
}
