package harness

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

// CaseResult is the recorded outcome of one test case.
type CaseResult struct {
	Name     string        `json:"name"`
	Method   string        `json:"method"`
	Passed   bool          `json:"passed"`
	Reason   string        `json:"reason,omitempty"`
	Failures []string      `json:"failures,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report is the result of one harness run.
type Report struct {
	Plugin   string        `json:"plugin"`
	Cases    []CaseResult  `json:"cases"`
	Duration time.Duration `json:"duration"`
}

// Passed returns the number of passing cases.
func (r *Report) Passed() int {
	n := 0
	for _, c := range r.Cases {
		if c.Passed {
			n++
		}
	}
	return n
}

// Failed returns the number of failing cases.
func (r *Report) Failed() int {
	return len(r.Cases) - r.Passed()
}

// OK reports whether every case passed.
func (r *Report) OK() bool {
	return r.Failed() == 0
}

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
)

// Print writes one PASS/FAIL line per case and a summary line.
func (r *Report) Print(w io.Writer, color bool) {
	paint := func(c, s string) string {
		if !color {
			return s
		}
		return c + s + colorReset
	}

	for _, c := range r.Cases {
		if c.Passed {
			fmt.Fprintf(w, "%s %s (%s)\n", paint(colorGreen, "PASS"), c.Name, c.Duration.Round(time.Millisecond))
			continue
		}
		fmt.Fprintf(w, "%s %s: %s\n", paint(colorRed, "FAIL"), c.Name, c.Reason)
		for _, extra := range c.Failures[1:] {
			fmt.Fprintf(w, "       %s\n", extra)
		}
	}

	summary := fmt.Sprintf("%d passed, %d failed", r.Passed(), r.Failed())
	if r.OK() {
		summary = paint(colorGreen, summary)
	} else {
		summary = paint(colorRed, summary)
	}
	fmt.Fprintf(w, "\n%s in %s\n", summary, r.Duration.Round(time.Millisecond))
}

// UseColor reports whether f is a terminal that should get colored output.
func UseColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
