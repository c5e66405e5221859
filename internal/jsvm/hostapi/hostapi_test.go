package hostapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"connkit/internal/buffercache"
)

// queueScheduler runs host work inline and settles on flush.
type queueScheduler struct {
	queue []func() error
	errs  []error
}

func (q *queueScheduler) Go(work func() (any, error), settle func(any, error) error) {
	v, err := work()
	q.queue = append(q.queue, func() error { return settle(v, err) })
}

func (q *queueScheduler) Defer(settle func() error) {
	q.queue = append(q.queue, settle)
}

func (q *queueScheduler) flush() {
	for len(q.queue) > 0 {
		f := q.queue[0]
		q.queue = q.queue[1:]
		if err := f(); err != nil {
			q.errs = append(q.errs, err)
		}
	}
}

func newTestAPI(t *testing.T, options map[string]any) (*goja.Runtime, *Context, *queueScheduler) {
	t.Helper()
	vm := goja.New()
	sched := &queueScheduler{}
	hctx := &Context{
		Ctx:        context.Background(),
		Logger:     zerolog.Nop(),
		PluginName: "test",
		SessionID:  "session-1",
		Options:    options,
		Cache:      buffercache.NewMemory(),
		Scheduler:  sched,
		Config:     DefaultConfig(),
	}

	api, err := Register(vm, hctx)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_ = vm.Set("api", api)
	return vm, hctx, sched
}

func mustRun(t *testing.T, vm *goja.Runtime, script string) goja.Value {
	t.Helper()
	v, err := vm.RunString(script)
	if err != nil {
		t.Fatalf("script %q failed: %v", script, err)
	}
	return v
}

func TestRegister(t *testing.T) {
	vm, _, _ := newTestAPI(t, map[string]any{"token": "abc"})

	members := []string{"options", "platform", "sdkVersion", "fetch", "logError", "readBuffer"}
	for _, m := range members {
		v := mustRun(t, vm, "typeof api."+m)
		if v.String() == "undefined" {
			t.Errorf("api.%s not found", m)
		}
	}

	if got := mustRun(t, vm, "api.options.token").String(); got != "abc" {
		t.Errorf("api.options.token = %q, want abc", got)
	}
	if got := mustRun(t, vm, "api.sdkVersion").String(); got != SDKVersion {
		t.Errorf("api.sdkVersion = %q, want %q", got, SDKVersion)
	}
	if got := mustRun(t, vm, "api.platform.engine").String(); got != "goja" {
		t.Errorf("api.platform.engine = %q, want goja", got)
	}

	console := vm.Get("console")
	if console == nil || goja.IsUndefined(console) {
		t.Error("console not found")
	}
}

func TestOptionsFrozen(t *testing.T) {
	vm, _, _ := newTestAPI(t, map[string]any{"token": "abc"})

	mustRun(t, vm, `api.options.token = "changed"; api.options.extra = 1;`)
	if got := mustRun(t, vm, "api.options.token").String(); got != "abc" {
		t.Errorf("options mutated: token = %q", got)
	}
	if !mustRun(t, vm, "Object.isFrozen(api.platform)").ToBoolean() {
		t.Error("platform should be frozen")
	}
}

func TestUnregister(t *testing.T) {
	vm, _, _ := newTestAPI(t, nil)
	api := vm.Get("api").ToObject(vm)

	Unregister(vm, api)

	for _, name := range capabilityFuncs {
		if v := api.Get(name); v != nil && !goja.IsUndefined(v) {
			t.Errorf("api.%s should be removed after Unregister", name)
		}
	}
	if c := vm.Get("console"); c != nil && !goja.IsUndefined(c) {
		t.Error("console should be removed after Unregister")
	}
}

func TestFetchInterceptedJSON(t *testing.T) {
	vm, hctx, sched := newTestAPI(t, nil)
	hctx.SetInterceptor(InterceptorFunc(func(req Request) *Response {
		return &Response{
			Status:  200,
			URL:     req.URL,
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    []byte(`{"items":[1,2]}`),
		}
	}))

	mustRun(t, vm, `var out; api.fetch("https://x/list").then(function(r) { out = r; });`)
	sched.flush()

	if got := mustRun(t, vm, "out.text").String(); got != `{"items":[1,2]}` {
		t.Errorf("text = %q", got)
	}
	if !goja.IsUndefined(mustRun(t, vm, "out.bufferHandle")) {
		t.Error("bufferHandle should be undefined for JSON responses")
	}
	if !mustRun(t, vm, "out.ok").ToBoolean() {
		t.Error("ok should be true")
	}
	if got := mustRun(t, vm, "out.statusText").String(); got != "OK" {
		t.Errorf("statusText = %q, want OK", got)
	}
	if got := mustRun(t, vm, `out.headers["content-type"]`).String(); got != "application/json" {
		t.Errorf("content-type header = %q", got)
	}
}

func TestFetchInterceptedBinary(t *testing.T) {
	vm, hctx, sched := newTestAPI(t, nil)
	payload := []byte{0x89, 0x50, 0x4e, 0x47, 0x00, 0x01, 0x02}
	hctx.SetInterceptor(InterceptorFunc(func(req Request) *Response {
		return &Response{
			Status:  200,
			Headers: map[string]string{"content-type": "image/png"},
			Body:    payload,
		}
	}))

	mustRun(t, vm, `var out; api.fetch("https://x/img").then(function(r) { out = r; });`)
	sched.flush()

	if !goja.IsUndefined(mustRun(t, vm, "out.text")) {
		t.Error("text should be undefined for binary responses")
	}
	if got := mustRun(t, vm, "out.bufferHandle.bytes").ToInteger(); got != int64(len(payload)) {
		t.Errorf("bytes = %d, want %d", got, len(payload))
	}

	id := mustRun(t, vm, "out.bufferHandle.id").String()
	cached, err := hctx.Cache.Get(id)
	if err != nil {
		t.Fatalf("cache lookup failed: %v", err)
	}
	if string(cached) != string(payload) {
		t.Errorf("cached = %v, want %v", cached, payload)
	}

	if got := mustRun(t, vm, "api.readBuffer(out.bufferHandle).byteLength").ToInteger(); got != int64(len(payload)) {
		t.Errorf("readBuffer byteLength = %d", got)
	}
	if got := mustRun(t, vm, "new Uint8Array(api.readBuffer(out.bufferHandle.id))[0]").ToInteger(); got != 0x89 {
		t.Errorf("first byte = %x", got)
	}
}

func TestFetchInterceptorUndefined(t *testing.T) {
	vm, hctx, sched := newTestAPI(t, nil)
	hctx.SetInterceptor(InterceptorFunc(func(req Request) *Response { return nil }))

	mustRun(t, vm, `var settled = false, out = 1; api.fetch("https://x/none").then(function(r) { settled = true; out = r; });`)
	sched.flush()

	if !mustRun(t, vm, "settled").ToBoolean() {
		t.Fatal("promise did not settle")
	}
	if !goja.IsUndefined(mustRun(t, vm, "out")) {
		t.Error("expected undefined response")
	}
}

func TestFetchRequestParsing(t *testing.T) {
	vm, hctx, sched := newTestAPI(t, nil)
	var got Request
	hctx.SetInterceptor(InterceptorFunc(func(req Request) *Response {
		got = req
		return nil
	}))

	mustRun(t, vm, `api.fetch("https://x/items", {method: "post", headers: {"X-Token": "t"}, body: {a: 1}});`)
	sched.flush()

	if got.Method != "POST" {
		t.Errorf("method = %q, want POST", got.Method)
	}
	if got.Headers["X-Token"] != "t" {
		t.Errorf("headers = %v", got.Headers)
	}
	if string(got.Body) != `{"a":1}` {
		t.Errorf("body = %q", got.Body)
	}

	mustRun(t, vm, `api.fetch("https://x/default");`)
	if got.Method != "GET" {
		t.Errorf("default method = %q, want GET", got.Method)
	}
}

func TestFetchRequiresURL(t *testing.T) {
	vm, _, _ := newTestAPI(t, nil)
	if _, err := vm.RunString(`api.fetch()`); err == nil {
		t.Error("expected TypeError for missing url")
	}
}

func TestFetchRealNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"method":"` + r.Method + `"}`))
	}))
	defer srv.Close()

	vm, _, sched := newTestAPI(t, nil)
	mustRun(t, vm, `var out, failed; api.fetch("`+srv.URL+`", {method: "PUT"}).then(function(r) { out = r; }, function(e) { failed = String(e); });`)
	sched.flush()

	if f := vm.Get("failed"); f != nil && !goja.IsUndefined(f) {
		t.Fatalf("fetch failed: %s", f.String())
	}
	if got := mustRun(t, vm, "JSON.parse(out.text).method").String(); got != "PUT" {
		t.Errorf("server saw method %q, want PUT", got)
	}
	if got := mustRun(t, vm, "out.status").ToInteger(); got != 200 {
		t.Errorf("status = %d", got)
	}
}

func TestFetchAllowlistRejects(t *testing.T) {
	vm, hctx, sched := newTestAPI(t, nil)
	hctx.SetTransport(NewNetworkTransport(Config{HTTPAllowlist: []string{"allowed.example"}}))

	mustRun(t, vm, `var failed; api.fetch("https://blocked.example/x").catch(function(e) { failed = String(e); });`)
	sched.flush()

	f := vm.Get("failed")
	if f == nil || goja.IsUndefined(f) {
		t.Fatal("expected rejection for URL outside the allowlist")
	}
}

func TestIsStructuredText(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"application/vnd.api+json", true},
		{"text/plain", true},
		{"text/html; charset=utf-8", true},
		{"application/xml", true},
		{"application/octet-stream", false},
		{"image/png", false},
		{"application/pdf", false},
	}

	for _, tt := range tests {
		if got := IsStructuredText(tt.contentType); got != tt.want {
			t.Errorf("IsStructuredText(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

func TestBuildResponseLikeSniffsMissingContentType(t *testing.T) {
	like, err := BuildResponseLike(buffercache.NewMemory(), &Response{Status: 200, Body: []byte(`{"a":1}`)})
	if err != nil {
		t.Fatalf("BuildResponseLike failed: %v", err)
	}
	if like.Text == nil {
		t.Error("JSON body without content type should be sniffed as text")
	}

	like, err = BuildResponseLike(buffercache.NewMemory(), &Response{Status: 404, Body: []byte{0x00, 0xff, 0x10, 0x80}})
	if err != nil {
		t.Fatalf("BuildResponseLike failed: %v", err)
	}
	if like.BufferHandle == nil || like.BufferHandle.Bytes != 4 {
		t.Errorf("binary body should produce a 4-byte handle, got %+v", like.BufferHandle)
	}
	if like.OK {
		t.Error("ok should be false for 404")
	}
}

func TestReadBufferMissing(t *testing.T) {
	vm, _, _ := newTestAPI(t, nil)
	if _, err := vm.RunString(`api.readBuffer("nope")`); err == nil {
		t.Error("expected error for unknown buffer id")
	}
	if _, err := vm.RunString(`api.readBuffer()`); err == nil {
		t.Error("expected error for missing argument")
	}
}

func TestLogMethods(t *testing.T) {
	vm, _, _ := newTestAPI(t, nil)

	scripts := []string{
		`api.logError("error message")`,
		`api.logError("with object", {a: 1}, [1, 2])`,
		`console.log("console log")`,
		`console.warn("multiple", "args", 123)`,
		`console.debug(undefined, null)`,
	}

	for _, script := range scripts {
		if _, err := vm.RunString(script); err != nil {
			t.Errorf("script '%s' failed: %v", script, err)
		}
	}
}

func TestHTTPAllowlist(t *testing.T) {
	tests := []struct {
		url       string
		allowlist []string
		allowed   bool
	}{
		{"https://api.example.com/data", nil, true},
		{"https://api.example.com/data", []string{}, true},
		{"https://api.example.com/data", []string{"example.com"}, true},
		{"https://api.example.com/data", []string{"other.com"}, false},
		{"https://api.example.com/data", []string{"api.example.com"}, true},
		{"https://API.Example.com:8443/data", []string{"api.example.com"}, true},
		{"https://api.example.com/data", []string{"https://api.example.com"}, true},
		{"https://evil.example/?x=api.example.com", []string{"api.example.com"}, false},
		{"https://api.example.com.evil.example/", []string{"api.example.com"}, false},
		{"https://notexample.com/", []string{"example.com"}, false},
		{"https://user:pw@evil.example/api.example.com", []string{"api.example.com"}, false},
		{"not a url", []string{"example.com"}, false},
	}

	for _, tt := range tests {
		result := isURLAllowed(tt.url, tt.allowlist)
		if result != tt.allowed {
			t.Errorf("isURLAllowed(%s, %v) = %v, want %v", tt.url, tt.allowlist, result, tt.allowed)
		}
	}
}

func TestFetchSettleReportsInterrupt(t *testing.T) {
	vm, hctx, sched := newTestAPI(t, nil)
	hctx.SetInterceptor(InterceptorFunc(func(Request) *Response {
		return &Response{Status: 200, Headers: map[string]string{"Content-Type": "text/plain"}, Body: []byte("x")}
	}))

	mustRun(t, vm, `api.fetch("https://x/a").then(function() { for (;;) {} });`)
	vm.Interrupt("stop")
	defer vm.ClearInterrupt()
	sched.flush()

	if len(sched.errs) != 1 {
		t.Fatalf("settle errors = %v, want one", sched.errs)
	}
	var interrupted *goja.InterruptedError
	if !errors.As(sched.errs[0], &interrupted) {
		t.Errorf("err = %v, want *goja.InterruptedError", sched.errs[0])
	}
}
