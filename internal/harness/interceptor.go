package harness

import (
	"fmt"
	"sync"

	"connkit/internal/jsvm/hostapi"
)

// recorder collects assertion failures for one test case in the order they
// happen.
type recorder struct {
	mu       sync.Mutex
	failures []string
}

func (r *recorder) fail(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failures...)
}

// assertionInterceptor serves canned responses for one test case and counts
// calls against its fetch assertions.
type assertionInterceptor struct {
	mu        sync.Mutex
	asserts   []FetchAssertion
	remaining []int
	calls     []hostapi.Request
	rec       *recorder
}

func newAssertionInterceptor(asserts []FetchAssertion, rec *recorder) *assertionInterceptor {
	remaining := make([]int, len(asserts))
	for i, a := range asserts {
		remaining[i] = a.Expected()
	}
	return &assertionInterceptor{
		asserts:   asserts,
		remaining: remaining,
		rec:       rec,
	}
}

// Intercept implements hostapi.Interceptor. A call past its declared count is
// recorded as a failure but still answered, so guest code carries on. An
// unmatched call is recorded and answered with undefined.
func (ic *assertionInterceptor) Intercept(req hostapi.Request) *hostapi.Response {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	ic.calls = append(ic.calls, req)

	for i, a := range ic.asserts {
		if a.URL != req.URL || a.Method != req.Method {
			continue
		}

		if ic.remaining[i] <= 0 {
			ic.rec.fail("fetch %s %s exceeded expected count %d", req.Method, req.URL, a.Expected())
		}
		ic.remaining[i]--

		resp, err := a.toResponse()
		if err != nil {
			ic.rec.fail("%v", err)
			return nil
		}
		return resp
	}

	ic.rec.fail("unexpected fetch %s %s", req.Method, req.URL)
	return nil
}

// unmet reports assertions that were called fewer times than declared.
func (ic *assertionInterceptor) unmet() []string {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	var out []string
	for i, a := range ic.asserts {
		if ic.remaining[i] > 0 {
			called := a.Expected() - ic.remaining[i]
			out = append(out, fmt.Sprintf("fetch %s %s called %d of %d expected times", a.Method, a.URL, called, a.Expected()))
		}
	}
	return out
}

// requests returns the calls seen so far, in order.
func (ic *assertionInterceptor) requests() []hostapi.Request {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return append([]hostapi.Request(nil), ic.calls...)
}
