package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"connkit/internal/buffercache"
	"connkit/internal/jsvm"
)

// guardedCall turns a guest throw into a value so one failing case never
// surfaces as a bridge error.
const guardedCall = `(async function() {
	try {
		return {ok: true, value: await %s};
	} catch (e) {
		return {ok: false, error: String(e)};
	}
})()`

// Options configures a Runner.
type Options struct {
	// Sandbox configures the plugin sandbox.
	Sandbox jsvm.Config
	// Strict fails cases whose fetch assertions were called fewer times than
	// declared.
	Strict bool
	// Cache backs binary fetch responses. Nil gives each run a fresh
	// in-memory store.
	Cache buffercache.Store
}

// Runner executes test configurations against a plugin script.
type Runner struct {
	opts   Options
	logger zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(opts Options, logger zerolog.Logger) *Runner {
	return &Runner{opts: opts, logger: logger}
}

// Run loads script once and runs every case in cfg in order against the same
// sandbox. A load error aborts the run before any case executes; every other
// failure is recorded on its case and the run continues.
func (r *Runner) Run(ctx context.Context, script string, cfg *TestConfiguration) (*Report, error) {
	start := time.Now()
	report := &Report{Plugin: r.opts.Sandbox.PluginName}

	if len(cfg.Tests) == 0 {
		return report, nil
	}

	cache := r.opts.Cache
	if cache == nil {
		mem := buffercache.NewMemory()
		defer mem.Close()
		cache = mem
	}

	sctx, err := jsvm.New(r.opts.Sandbox, script, cfg.Setup.RuntimeOptions, cache, r.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sctx.Dispose(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to dispose sandbox")
		}
	}()

	for i := range cfg.Tests {
		result := r.runCase(ctx, sctx, &cfg.Tests[i])
		report.Cases = append(report.Cases, result)

		event := r.logger.Debug().Str("case", result.Name).Bool("passed", result.Passed)
		if !result.Passed {
			event = event.Str("reason", result.Reason)
		}
		event.Dur("duration", result.Duration).Msg("test case finished")
	}

	report.Duration = time.Since(start)
	return report, nil
}

// runCase executes a single test case and records its outcome.
func (r *Runner) runCase(ctx context.Context, sctx *jsvm.Context, tc *TestCase) CaseResult {
	start := time.Now()
	rec := &recorder{}

	var ic *assertionInterceptor
	if len(tc.Asserts.Fetch) > 0 {
		ic = newAssertionInterceptor(tc.Asserts.Fetch, rec)
		if err := sctx.SetInterceptor(ic); err != nil {
			rec.fail("install fetch interceptor: %v", err)
		}
	} else if err := sctx.ClearInterceptor(); err != nil {
		rec.fail("clear fetch interceptor: %v", err)
	}

	r.invoke(ctx, sctx, tc, rec)

	if ic != nil {
		if r.opts.Strict {
			for _, msg := range ic.unmet() {
				rec.fail("%s", msg)
			}
		}
		if err := sctx.ClearInterceptor(); err != nil {
			rec.fail("clear fetch interceptor: %v", err)
		}
	}

	failures := rec.list()
	result := CaseResult{
		Name:     tc.Name,
		Method:   tc.Method,
		Passed:   len(failures) == 0,
		Failures: failures,
		Duration: time.Since(start),
	}
	if len(failures) > 0 {
		result.Reason = failures[0]
	}
	return result
}

// invoke calls the case's method and checks the result shape.
func (r *Runner) invoke(ctx context.Context, sctx *jsvm.Context, tc *TestCase, rec *recorder) {
	expr, err := jsvm.CallExpr(tc.Method, tc.Arguments...)
	if err != nil {
		rec.fail("encode arguments: %v", err)
		return
	}

	future, err := sctx.EvalDeferred(fmt.Sprintf(guardedCall, expr))
	if err != nil {
		rec.fail("%v", err)
		return
	}
	v, err := future.Await(ctx)
	if err != nil {
		rec.fail("%v", err)
		return
	}

	outcome, ok := v.(map[string]any)
	if !ok {
		rec.fail("unexpected call result %T", v)
		return
	}
	if ok, _ := outcome["ok"].(bool); !ok {
		rec.fail("guest error: %v", outcome["error"])
		return
	}

	cat, err := sctx.Catalog()
	if err != nil {
		rec.fail("read catalog: %v", err)
		return
	}
	for _, msg := range checkShape(cat.Kind(tc.Method), outcome["value"]) {
		rec.fail("%s", msg)
	}
}
