// Package harness drives a loaded plugin through declarative test cases and
// asserts on every outbound fetch it makes.
package harness

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"connkit/internal/jsvm/hostapi"
)

// TestConfiguration is a parsed test file. JSON files parse as YAML.
type TestConfiguration struct {
	Setup Setup      `yaml:"setup" json:"setup"`
	Tests []TestCase `yaml:"tests" json:"tests"`
}

// Setup holds values applied once per run.
type Setup struct {
	// RuntimeOptions becomes the plugin's api.options.
	RuntimeOptions map[string]any `yaml:"runtime_options" json:"runtime_options"`
}

// TestCase calls one plugin method with positional arguments.
type TestCase struct {
	Name      string  `yaml:"name" json:"name"`
	Method    string  `yaml:"method" json:"method"`
	Arguments []any   `yaml:"arguments" json:"arguments"`
	Asserts   Asserts `yaml:"asserts" json:"asserts"`
}

// Asserts groups the expectations of a test case.
type Asserts struct {
	Fetch []FetchAssertion `yaml:"fetch" json:"fetch"`
}

// FetchAssertion expects count calls with exactly this url and method.
type FetchAssertion struct {
	URL      string          `yaml:"url" json:"url"`
	Method   string          `yaml:"method" json:"method"`
	Count    *int            `yaml:"count" json:"count"`
	Response *CannedResponse `yaml:"response" json:"response"`
}

// Expected returns the declared call count. An omitted count means one call.
func (a FetchAssertion) Expected() int {
	if a.Count == nil {
		return 1
	}
	return *a.Count
}

// CannedResponse is served to the plugin for a matched fetch.
type CannedResponse struct {
	Status  int               `yaml:"status" json:"status"`
	Headers map[string]string `yaml:"headers" json:"headers"`
	// Body is sent verbatim when it is a string and JSON-encoded otherwise.
	Body any `yaml:"body" json:"body"`
}

// toResponse builds the host response for a matched call. Without a canned
// response the call gets 200 with an empty binary body.
func (a FetchAssertion) toResponse() (*hostapi.Response, error) {
	if a.Response == nil {
		return &hostapi.Response{
			Status:  http.StatusOK,
			URL:     a.URL,
			Headers: map[string]string{"content-type": "application/octet-stream"},
			Body:    []byte{},
		}, nil
	}

	status := a.Response.Status
	if status == 0 {
		status = http.StatusOK
	}

	headers := make(map[string]string, len(a.Response.Headers)+1)
	for k, v := range a.Response.Headers {
		headers[strings.ToLower(k)] = v
	}

	var body []byte
	switch b := a.Response.Body.(type) {
	case nil:
		body = []byte{}
	case string:
		body = []byte(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode canned body for %s %s: %w", a.Method, a.URL, err)
		}
		body = data
		if _, ok := headers["content-type"]; !ok {
			headers["content-type"] = "application/json"
		}
	}

	return &hostapi.Response{
		Status:  status,
		URL:     a.URL,
		Headers: headers,
		Body:    body,
	}, nil
}

// LoadConfiguration reads a test configuration file.
func LoadConfiguration(path string) (*TestConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("harness: failed to read test configuration: %w", err)
	}
	return ParseConfiguration(data)
}

// ParseConfiguration parses YAML or JSON test configuration. Unknown keys are
// ignored.
func ParseConfiguration(data []byte) (*TestConfiguration, error) {
	cfg := &TestConfiguration{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("harness: failed to parse test configuration: %w", err)
	}

	if err := ValidateConfiguration(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateConfiguration checks required fields and normalises methods.
func ValidateConfiguration(cfg *TestConfiguration) error {
	if cfg == nil {
		return fmt.Errorf("harness: configuration is nil")
	}
	if cfg.Setup.RuntimeOptions == nil {
		cfg.Setup.RuntimeOptions = map[string]any{}
	}

	for i := range cfg.Tests {
		tc := &cfg.Tests[i]
		if tc.Name == "" {
			tc.Name = fmt.Sprintf("test-%d", i+1)
		}
		if tc.Method == "" {
			return fmt.Errorf("harness: tests[%d] (%s): method is required", i, tc.Name)
		}

		for j := range tc.Asserts.Fetch {
			fa := &tc.Asserts.Fetch[j]
			if fa.URL == "" {
				return fmt.Errorf("harness: tests[%d].asserts.fetch[%d]: url is required", i, j)
			}
			if fa.Method == "" {
				fa.Method = http.MethodGet
			}
			fa.Method = strings.ToUpper(fa.Method)
			if fa.Count != nil && *fa.Count < 0 {
				return fmt.Errorf("harness: tests[%d].asserts.fetch[%d]: count must not be negative", i, j)
			}
		}
	}
	return nil
}
