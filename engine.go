package vexpr

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/sandrolain/vexpr/pkg/cache"
	"github.com/sandrolain/vexpr/pkg/catalog"
	"github.com/sandrolain/vexpr/pkg/config"
	"github.com/sandrolain/vexpr/pkg/expr"
	"github.com/sandrolain/vexpr/pkg/observability"
	"github.com/sandrolain/vexpr/pkg/types"
)

// Engine is a long-lived evaluation service wrapping the expression
// pipeline with a compiled-expression cache, engine-wide settings, optional
// persistence and optional observability.
//
// One Engine serves one variable environment: every expression it compiles
// binds against the engine's resolver. Hosts with several environments run
// several engines.
//
// Engine methods are safe for concurrent use except evaluation of a shared
// expression, which the host must serialize (see [expr.Expression]).
type Engine struct {
	resolver expr.Resolver
	desired  types.TypeDescriptor
	strategy expr.Strategy
	maxDepth int
	cache    *cache.Cache
	store    *catalog.Store
	spans    observability.SpanManager
	metrics  observability.MetricsRecorder
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineResolver sets the variable environment every compiled
// expression binds against.
func WithEngineResolver(r expr.Resolver) EngineOption {
	return func(e *Engine) { e.resolver = r }
}

// WithEngineLogger sets the structured logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithSpanManager enables tracing of compile and eval operations.
func WithSpanManager(m observability.SpanManager) EngineOption {
	return func(e *Engine) { e.spans = m }
}

// WithMetricsRecorder enables engine metrics.
func WithMetricsRecorder(m observability.MetricsRecorder) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithCatalog attaches a persistent expression catalog. The engine takes
// ownership and closes it with Close.
func WithCatalog(s *catalog.Store) EngineOption {
	return func(e *Engine) { e.store = s }
}

// NewEngine creates an engine from settings, applying options on top.
func NewEngine(cfg config.Config, opts ...EngineOption) *Engine {
	st := config.ReadSettings(cfg)

	e := &Engine{
		desired:  types.Numeric(st.ReturnDim),
		maxDepth: st.MaxDepth,
		spans:    observability.NoopSpanManager{},
		metrics:  observability.NoopMetrics{},
		logger:   slog.Default(),
	}
	if st.ReturnKind == "string" {
		e.desired = types.StringType()
	}
	if st.Debug {
		e.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	switch st.Strategy {
	case "interpreter":
		e.strategy = expr.StrategyInterpreter
	case "jit":
		e.strategy = expr.StrategyJIT
	default:
		e.strategy = expr.StrategyDefault
	}
	if st.CacheSize > 0 {
		e.cache = cache.New(st.CacheSize)
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile returns a ready expression for source, served from the cache when
// possible. The returned expression is owned by the cache when caching is
// enabled; do not close it.
func (e *Engine) Compile(ctx context.Context, source string) (*expr.Expression, error) {
	exprID := uuid.NewString()
	ctx, span := e.spans.StartCompileSpan(ctx, exprID)
	done := observability.TimedOperation()

	build := func() (*expr.Expression, error) {
		return Compile(source, e.exprOptions()...)
	}

	var ex *expr.Expression
	var err error
	if e.cache != nil {
		key := cache.Key(source, e.desired, e.strategy)
		_, hit := e.cache.Get(key)
		e.metrics.RecordCacheAccess(ctx, hit)
		ex, err = e.cache.GetOrBuild(key, build)
	} else {
		ex, err = build()
	}

	valid := err == nil
	errorCount := 0
	if ce, ok := err.(*CompileError); ok {
		errorCount = len(ce.Diagnostics)
	}
	backend := ""
	if ex != nil {
		backend = ex.Backend()
	}
	e.metrics.RecordCompile(ctx, backend, valid, errorCount, done())
	e.spans.EndSpanWithError(span, err)

	if err != nil {
		e.logger.Debug("expression rejected",
			slog.String("source", source),
			slog.Int("errors", errorCount),
		)
		return nil, err
	}
	return ex, nil
}

// Eval compiles (or fetches) source and evaluates it numerically, copying
// the result out of the expression's internal buffer.
func (e *Engine) Eval(ctx context.Context, source string) ([]float64, error) {
	ex, err := e.Compile(ctx, source)
	if err != nil {
		return nil, err
	}

	ctx, span := e.spans.StartEvalSpan(ctx, source, ex.Backend())
	done := observability.TimedOperation()
	out := ex.EvalFP()
	res := make([]float64, len(out))
	copy(res, out)
	e.metrics.RecordEval(ctx, ex.Backend(), done())
	e.spans.EndSpanWithError(span, nil)

	if e.cache == nil {
		_ = ex.Close()
	}
	return res, nil
}

// EvalString compiles (or fetches) source and evaluates it as a string.
func (e *Engine) EvalString(ctx context.Context, source string) (string, error) {
	ex, err := e.Compile(ctx, source)
	if err != nil {
		return "", err
	}

	ctx, span := e.spans.StartEvalSpan(ctx, source, ex.Backend())
	done := observability.TimedOperation()
	res := ex.EvalStr()
	e.metrics.RecordEval(ctx, ex.Backend(), done())
	e.spans.EndSpanWithError(span, nil)

	if e.cache == nil {
		_ = ex.Close()
	}
	return res, nil
}

// Store validates source and persists it in the catalog under name,
// including the full diagnostic snapshot. Invalid expressions are stored
// too; their entries carry Valid == false. Returns the catalog entry ID.
func (e *Engine) Store(name, source string) (string, error) {
	if e.store == nil {
		return "", fmt.Errorf("vexpr: engine has no catalog configured")
	}

	ex := expr.New(source, e.exprOptions()...)
	defer ex.Close()

	valid := ex.IsValid()
	var diags []catalog.Diagnostic
	for _, d := range ex.Errors() {
		diags = append(diags, catalog.Diagnostic{
			Code:    d.Code,
			Message: d.Message,
			Start:   d.Start,
			End:     d.End,
		})
	}
	return e.store.Save(name, source, ex.ReturnType().String(), valid, diags)
}

// LoadStored fetches a catalog entry by name and compiles its source.
func (e *Engine) LoadStored(ctx context.Context, name string) (*expr.Expression, error) {
	if e.store == nil {
		return nil, fmt.Errorf("vexpr: engine has no catalog configured")
	}
	entry, err := e.store.Load(name)
	if err != nil {
		return nil, err
	}
	return e.Compile(ctx, entry.Source)
}

// Catalog returns the attached catalog store, or nil.
func (e *Engine) Catalog() *catalog.Store { return e.store }

// Close releases the cache's compiled expressions and the catalog.
func (e *Engine) Close() error {
	if e.cache != nil {
		e.cache.Clear()
	}
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

func (e *Engine) exprOptions() []expr.Option {
	return []expr.Option{
		expr.WithResolver(e.resolver),
		expr.WithDesiredReturnType(e.desired),
		expr.WithStrategy(e.strategy),
		expr.WithMaxDepth(e.maxDepth),
		expr.WithLogger(e.logger),
	}
}
