package jsvm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"connkit/internal/jsvm/hostapi"
)

// recordingInterceptor answers every call with a canned response and records
// the order of requests.
type recordingInterceptor struct {
	mu   sync.Mutex
	urls []string
	resp func(req hostapi.Request) *hostapi.Response
}

func (r *recordingInterceptor) Intercept(req hostapi.Request) *hostapi.Response {
	r.mu.Lock()
	r.urls = append(r.urls, req.URL)
	r.mu.Unlock()
	if r.resp == nil {
		return &hostapi.Response{Status: 200, Headers: map[string]string{"content-type": "application/json"}, Body: []byte(`{}`)}
	}
	return r.resp(req)
}

func await(t *testing.T, c *Context, code string) (any, error) {
	t.Helper()
	f, err := c.EvalDeferred(code)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Await(ctx)
}

func TestEvalImmediate(t *testing.T) {
	c := newTestContext(t, DefaultConfig(), testPlugin)

	v, err := c.EvalImmediate(`1 + 1`)
	if err != nil || v != int64(2) {
		t.Errorf("1 + 1 = %v, %v", v, err)
	}

	v, err = c.EvalImmediate(`Promise.resolve(5)`)
	if err != nil || v != int64(5) {
		t.Errorf("settled promise = %v, %v", v, err)
	}

	v, err = c.EvalImmediate(PluginGlobal + `.getConfigurationOptions()`)
	if err != nil {
		t.Fatalf("getConfigurationOptions failed: %v", err)
	}
	opts, ok := v.([]any)
	if !ok || len(opts) != 1 {
		t.Fatalf("options = %#v", v)
	}

	if _, err := c.EvalImmediate(`new Promise(function() {})`); !errors.Is(err, ErrNotSettled) {
		t.Errorf("pending promise err = %v, want ErrNotSettled", err)
	}

	_, err = c.EvalImmediate(`throw new TypeError("bad")`)
	var guest *GuestError
	if !errors.As(err, &guest) || !strings.Contains(guest.Message, "bad") {
		t.Errorf("throw err = %v, want GuestError", err)
	}

	if _, err := c.EvalImmediate(`Promise.reject(new Error("no"))`); !errors.Is(err, ErrGuest) {
		t.Errorf("rejected promise err = %v, want GuestError", err)
	}
}

func TestEvalDeferredWithInterceptor(t *testing.T) {
	c := newTestContext(t, DefaultConfig(), testPlugin)
	ic := &recordingInterceptor{resp: func(req hostapi.Request) *hostapi.Response {
		return &hostapi.Response{
			Status:  200,
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    []byte(`{"data":[{"id":"1"}],"pageSize":50}`),
		}
	}}
	if err := c.SetInterceptor(ic); err != nil {
		t.Fatal(err)
	}

	v, err := await(t, c, PluginGlobal+`.query("/root")`)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	result, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("result = %#v", v)
	}
	if result["pageSize"] != int64(50) {
		t.Errorf("pageSize = %v", result["pageSize"])
	}
	if len(ic.urls) != 1 || ic.urls[0] != "https://x/list?path=/root" {
		t.Errorf("urls = %v", ic.urls)
	}
}

func TestEvalDeferredPreservesFetchOrder(t *testing.T) {
	c := newTestContext(t, DefaultConfig(), testPlugin)
	ic := &recordingInterceptor{}
	if err := c.SetInterceptor(ic); err != nil {
		t.Fatal(err)
	}

	v, err := await(t, c, PluginGlobal+`.twoCalls()`)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if v != "done" {
		t.Errorf("v = %v", v)
	}
	if len(ic.urls) != 2 || ic.urls[0] != "https://x/first" || ic.urls[1] != "https://x/second" {
		t.Errorf("urls = %v, want first then second", ic.urls)
	}
}

func TestEvalDeferredRunsChainedContinuations(t *testing.T) {
	c := newTestContext(t, DefaultConfig(), testPlugin)
	if err := c.SetInterceptor(&recordingInterceptor{}); err != nil {
		t.Fatal(err)
	}

	v, err := await(t, c, PluginGlobal+`.twoCalls().then(function(v) { return v + "!"; })`)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if v != "done!" {
		t.Errorf("v = %v, want done!", v)
	}

	caught, err := await(t, c, PluginGlobal+`.fail().catch(function(e) { return "caught " + e.message; })`)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if caught != "caught boom" {
		t.Errorf("caught = %v", caught)
	}
}

func TestEvalDeferredBinaryResponse(t *testing.T) {
	c := newTestContext(t, DefaultConfig(), testPlugin)
	payload := []byte{1, 2, 3, 4, 5}
	ic := &recordingInterceptor{resp: func(req hostapi.Request) *hostapi.Response {
		return &hostapi.Response{Status: 200, Headers: map[string]string{"Content-Type": "application/octet-stream"}, Body: payload}
	}}
	if err := c.SetInterceptor(ic); err != nil {
		t.Fatal(err)
	}

	v, err := await(t, c, PluginGlobal+`.download("id-1")`)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	handle, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("handle = %#v", v)
	}
	if handle["bytes"] != int64(len(payload)) {
		t.Errorf("bytes = %v, want %d", handle["bytes"], len(payload))
	}

	cache, err := c.Cache()
	if err != nil {
		t.Fatalf("Cache failed: %v", err)
	}
	data, err := cache.Get(handle["id"].(string))
	if err != nil {
		t.Fatalf("cache lookup failed: %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("cached = %v", data)
	}
}

func TestEvalDeferredRejection(t *testing.T) {
	c := newTestContext(t, DefaultConfig(), testPlugin)

	_, err := await(t, c, PluginGlobal+`.fail()`)
	var guest *GuestError
	if !errors.As(err, &guest) {
		t.Fatalf("err = %v, want GuestError", err)
	}
	if !strings.Contains(guest.Message, "boom") {
		t.Errorf("message = %q", guest.Message)
	}
}

func TestEvalDeferredStalled(t *testing.T) {
	c := newTestContext(t, DefaultConfig(), testPlugin)

	_, err := await(t, c, PluginGlobal+`.never()`)
	if !errors.Is(err, ErrStalled) {
		t.Errorf("err = %v, want ErrStalled", err)
	}
}

func TestEvalDeferredPlainValue(t *testing.T) {
	c := newTestContext(t, DefaultConfig(), testPlugin)

	v, err := await(t, c, `"plain"`)
	if err != nil || v != "plain" {
		t.Errorf("v = %v, err = %v", v, err)
	}
}

func TestFutureAwaitIsIdempotent(t *testing.T) {
	c := newTestContext(t, DefaultConfig(), testPlugin)
	if err := c.SetInterceptor(&recordingInterceptor{}); err != nil {
		t.Fatal(err)
	}

	f, err := c.EvalDeferred(PluginGlobal + `.twoCalls()`)
	if err != nil {
		t.Fatal(err)
	}
	first, err := f.Await(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.Await(context.Background())
	if err != nil || second != first {
		t.Errorf("second Await = %v, %v; want %v", second, err, first)
	}
}

func TestEvalDeferredRealNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := newTestContext(t, DefaultConfig(), testPlugin)

	v, err := await(t, c, PluginGlobal+`.status("`+srv.URL+`")`)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if v != int64(http.StatusAccepted) {
		t.Errorf("status = %v", v)
	}
}

func TestAwaitTimeoutWithSlowNetwork(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := newTestContext(t, DefaultConfig(), testPlugin)
	f, err := c.EvalDeferred(PluginGlobal + `.status("` + srv.URL + `")`)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.Await(ctx); !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestConfigTimeoutBoundsNetworkWait(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(400 * time.Millisecond):
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := DefaultConfig()
	cfg.Timeout = 100 * time.Millisecond
	c := newTestContext(t, cfg, testPlugin)

	f, err := c.EvalDeferred(PluginGlobal + `.status("` + srv.URL + `")`)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err = f.Await(context.Background())
	elapsed := time.Since(start)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed > 300*time.Millisecond {
		t.Errorf("Await returned after %v, want about %v", elapsed, cfg.Timeout)
	}

	v, err := c.EvalImmediate("1 + 1")
	if err != nil || v != int64(2) {
		t.Errorf("context unusable after timeout: %v, %v", v, err)
	}
}

func TestCallExpr(t *testing.T) {
	expr, err := CallExpr("download", "id-1", 2, map[string]any{"a": true})
	if err != nil {
		t.Fatal(err)
	}
	want := PluginGlobal + `["download"]("id-1", 2, {"a":true})`
	if expr != want {
		t.Errorf("expr = %s, want %s", expr, want)
	}

	expr, err = CallExpr("getCapabilities")
	if err != nil {
		t.Fatal(err)
	}
	if expr != PluginGlobal+`["getCapabilities"]()` {
		t.Errorf("expr = %s", expr)
	}
}
