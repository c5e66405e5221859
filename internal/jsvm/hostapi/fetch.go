package hostapi

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/dop251/goja"
	"github.com/gabriel-vasile/mimetype"

	"connkit/internal/buffercache"
)

// Request is what the guest passed to api.fetch.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
}

// Response is a host-side response before it is marshalled for the guest.
type Response struct {
	Status     int
	StatusText string
	URL        string
	Headers    map[string]string
	Body       []byte
}

// Header returns the value of a header, matched case-insensitively.
func (r *Response) Header(name string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Interceptor stands in for the network while a test case runs. Returning nil
// resolves the guest's fetch promise with undefined.
type Interceptor interface {
	Intercept(req Request) *Response
}

// InterceptorFunc adapts a function to the Interceptor interface.
type InterceptorFunc func(req Request) *Response

// Intercept implements Interceptor.
func (f InterceptorFunc) Intercept(req Request) *Response {
	return f(req)
}

// ResponseLike is the value the guest receives from api.fetch. Exactly one of
// Text and BufferHandle is set.
type ResponseLike struct {
	OK           bool                `json:"ok"`
	Status       int                 `json:"status"`
	StatusText   string              `json:"statusText"`
	URL          string              `json:"url"`
	Headers      map[string]string   `json:"headers"`
	Text         *string             `json:"text,omitempty"`
	BufferHandle *buffercache.Handle `json:"bufferHandle,omitempty"`
}

// registerFetch registers api.fetch.
func registerFetch(vm *goja.Runtime, api *goja.Object, hctx *Context) error {
	_ = api.Set("fetch", func(call goja.FunctionCall) goja.Value {
		req, err := parseRequest(call)
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}

		promise, resolve, reject := vm.NewPromise()
		// resolve and reject run guest continuations; their error is an
		// interrupt or an uncaught throw and must reach the pumping caller.
		settle := func(v any, err error) error {
			if err != nil {
				return reject(vm.NewGoError(err))
			}
			resp, _ := v.(*Response)
			if resp == nil {
				return resolve(goja.Undefined())
			}
			like, err := BuildResponseLike(hctx.Cache, resp)
			if err != nil {
				return reject(vm.NewGoError(err))
			}
			return resolve(like.toObject(vm))
		}

		if ic := hctx.Interceptor(); ic != nil {
			resp := ic.Intercept(req)
			hctx.Scheduler.Defer(func() error { return settle(resp, nil) })
			return vm.ToValue(promise)
		}

		transport := hctx.getTransport()
		hctx.Scheduler.Go(func() (any, error) {
			return transport.Do(hctx.Ctx, req)
		}, settle)
		return vm.ToValue(promise)
	})
	return nil
}

// parseRequest reads fetch(url, init) arguments.
func parseRequest(call goja.FunctionCall) (Request, error) {
	urlArg := call.Argument(0)
	if goja.IsUndefined(urlArg) || goja.IsNull(urlArg) {
		return Request{}, fmt.Errorf("fetch: url is required")
	}

	req := Request{
		URL:     urlArg.String(),
		Method:  http.MethodGet,
		Headers: map[string]string{},
	}

	initArg := call.Argument(1)
	if goja.IsUndefined(initArg) || goja.IsNull(initArg) {
		return req, nil
	}
	init, ok := initArg.Export().(map[string]interface{})
	if !ok {
		return Request{}, fmt.Errorf("fetch: options must be an object")
	}

	if m, ok := init["method"].(string); ok && m != "" {
		req.Method = strings.ToUpper(m)
	}
	if h, ok := init["headers"].(map[string]interface{}); ok {
		for k, v := range h {
			req.Headers[k] = fmt.Sprintf("%v", v)
		}
	}

	switch body := init["body"].(type) {
	case nil:
	case string:
		req.Body = []byte(body)
	case goja.ArrayBuffer:
		req.Body = append([]byte(nil), body.Bytes()...)
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(body)
		if err != nil {
			return Request{}, fmt.Errorf("fetch: marshal body: %w", err)
		}
		req.Body = b
	default:
		req.Body = []byte(fmt.Sprintf("%v", body))
	}

	return req, nil
}

// BuildResponseLike marshals a host response for the guest. Structured text
// bodies are attached as text; anything else is stored in cache and only the
// handle crosses the boundary.
func BuildResponseLike(cache buffercache.Store, resp *Response) (ResponseLike, error) {
	statusText := resp.StatusText
	if statusText == "" {
		statusText = http.StatusText(resp.Status)
	}

	headers := make(map[string]string, len(resp.Headers))
	for k, v := range resp.Headers {
		headers[strings.ToLower(k)] = v
	}

	like := ResponseLike{
		OK:         resp.Status >= 200 && resp.Status < 300,
		Status:     resp.Status,
		StatusText: statusText,
		URL:        resp.URL,
		Headers:    headers,
	}

	contentType := resp.Header("Content-Type")
	if contentType == "" {
		contentType = mimetype.Detect(resp.Body).String()
	}

	if IsStructuredText(contentType) {
		text := string(resp.Body)
		like.Text = &text
		return like, nil
	}

	if cache == nil {
		return ResponseLike{}, fmt.Errorf("fetch: binary response but no buffer cache configured")
	}
	handle, err := cache.Put(resp.Body)
	if err != nil {
		return ResponseLike{}, fmt.Errorf("fetch: cache response body: %w", err)
	}
	like.BufferHandle = &handle
	return like, nil
}

// IsStructuredText reports whether a content type is read eagerly as text.
func IsStructuredText(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}

	switch {
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return true
	case mediaType == "application/xml", strings.HasSuffix(mediaType, "+xml"):
		return true
	case strings.HasPrefix(mediaType, "text/"):
		return true
	}
	return false
}

// toObject builds the guest-visible response object.
func (r ResponseLike) toObject(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("ok", r.OK)
	_ = obj.Set("status", r.Status)
	_ = obj.Set("statusText", r.StatusText)
	_ = obj.Set("url", r.URL)

	headers := vm.NewObject()
	for k, v := range r.Headers {
		_ = headers.Set(k, v)
	}
	_ = obj.Set("headers", headers)

	if r.Text != nil {
		_ = obj.Set("text", *r.Text)
	}
	if r.BufferHandle != nil {
		handle := vm.NewObject()
		_ = handle.Set("id", r.BufferHandle.ID)
		_ = handle.Set("bytes", r.BufferHandle.Bytes)
		_ = obj.Set("bufferHandle", handle)
	}
	return obj
}
