// Package stress repeatedly calls a plugin's introspection methods on one
// sandbox and samples memory so leaks across invocations become visible.
package stress

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"connkit/internal/jsvm"
)

// DefaultIterations is used when Options.Iterations is not set.
const DefaultIterations = 1000

// introspection are the calls made on every iteration.
var introspection = []string{"getCapabilities", "getConfigurationOptions"}

// Options configures a stress run.
type Options struct {
	Iterations int
	// OnSample is called with each sample as it is taken.
	OnSample func(Sample)
	Logger   zerolog.Logger
}

// Sample is one memory observation.
type Sample struct {
	Iteration    int    `json:"iteration"`
	HeapAlloc    uint64 `json:"heap_alloc"`
	HeapObjects  uint64 `json:"heap_objects"`
	NumGC        uint32 `json:"num_gc"`
	CacheEntries int    `json:"cache_entries"`
	CacheBytes   int64  `json:"cache_bytes"`
}

// Report is the result of a stress run. It makes no pass/fail judgement.
type Report struct {
	Iterations int           `json:"iterations"`
	Samples    []Sample      `json:"samples"`
	Duration   time.Duration `json:"duration"`
}

// Growth returns the heap growth between the first and last sample.
func (r *Report) Growth() int64 {
	if len(r.Samples) < 2 {
		return 0
	}
	return int64(r.Samples[len(r.Samples)-1].HeapAlloc) - int64(r.Samples[0].HeapAlloc)
}

// Run calls every introspection method iterations times, sequentially, and
// samples memory every iterations/10 steps. The context is checked between
// iterations.
func Run(ctx context.Context, sctx *jsvm.Context, opts Options) (*Report, error) {
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	every := iterations / 10
	if every == 0 {
		every = 1
	}

	calls := make([]string, len(introspection))
	for i, method := range introspection {
		expr, err := jsvm.CallExpr(method)
		if err != nil {
			return nil, err
		}
		calls[i] = expr
	}

	start := time.Now()
	report := &Report{Iterations: iterations}

	first, err := sample(sctx, 0)
	if err != nil {
		return nil, err
	}
	report.add(first, opts)

	for i := 1; i <= iterations; i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		for j, code := range calls {
			if _, err := sctx.EvalImmediate(code); err != nil {
				return report, fmt.Errorf("iteration %d: %s: %w", i, introspection[j], err)
			}
		}

		if i%every == 0 {
			s, err := sample(sctx, i)
			if err != nil {
				return report, err
			}
			report.add(s, opts)
		}
	}

	report.Duration = time.Since(start)
	opts.Logger.Debug().
		Int("iterations", iterations).
		Int64("heap_growth", report.Growth()).
		Dur("duration", report.Duration).
		Msg("stress run finished")
	return report, nil
}

func (r *Report) add(s Sample, opts Options) {
	r.Samples = append(r.Samples, s)
	if opts.OnSample != nil {
		opts.OnSample(s)
	}
}

// sample reads heap counters and buffer cache totals. goja keeps guest
// objects on the Go heap, so the Go runtime counters are the interpreter's.
func sample(sctx *jsvm.Context, iteration int) (Sample, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	cache, err := sctx.Cache()
	if err != nil {
		return Sample{}, err
	}
	stats, err := cache.Stats()
	if err != nil {
		return Sample{}, fmt.Errorf("read buffer cache stats: %w", err)
	}

	return Sample{
		Iteration:    iteration,
		HeapAlloc:    ms.HeapAlloc,
		HeapObjects:  ms.HeapObjects,
		NumGC:        ms.NumGC,
		CacheEntries: stats.Entries,
		CacheBytes:   stats.Bytes,
	}, nil
}
