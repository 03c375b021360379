// Package jshost runs the wx_api promise shim inside an embedded JavaScript
// runtime and exposes it as a host.Host.
//
// The runtime is single-threaded: every interaction with the VM is a task on one
// event-loop goroutine. Host calls may stay pending across many tasks (for
// example while a picker waits on a timer-driven wx implementation); callers
// block on their own result channel, not on the loop.
package jshost

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redforks/wx-js-sdk/internal/host"
	"github.com/redforks/wx-js-sdk/internal/signing"

	"github.com/dop251/goja"
)

//go:embed wx-jsapi.js
var shimSource string

const (
	apiNamespace = "wx_api"

	// reported when a rejection value cannot be turned into JSON text
	unserializableReason = "2c35df0"
)

var ErrClosed = errors.New("js host is closed")

type Options struct {
	// Script defines the global wx object the shim wraps. It runs before the shim.
	Script     string
	ScriptName string
	// PageURL, when set, is published as location.href.
	PageURL string
	Logger  *slog.Logger
}

type Runtime struct {
	vm     *goja.Runtime
	logger *slog.Logger

	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

type callResult struct {
	raw json.RawMessage
	err error
}

func New(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := strings.TrimSpace(opts.ScriptName)
	if name == "" {
		name = "wx.js"
	}
	r := &Runtime{
		vm:     goja.New(),
		logger: logger,
		tasks:  make(chan func(), 64),
		done:   make(chan struct{}),
	}
	r.installGlobals(opts.PageURL)

	if _, err := r.vm.RunScript(name, opts.Script); err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	if _, err := r.vm.RunScript("wx-jsapi.js", shimSource); err != nil {
		return nil, fmt.Errorf("load wx-jsapi shim: %w", err)
	}
	go r.loop()
	return r, nil
}

func (r *Runtime) installGlobals(pageURL string) {
	console := r.vm.NewObject()
	_ = console.Set("log", r.consoleFunc(slog.LevelInfo))
	_ = console.Set("error", r.consoleFunc(slog.LevelError))
	r.vm.Set("console", console)
	r.vm.Set("setTimeout", r.setTimeout)

	if strings.TrimSpace(pageURL) != "" {
		location := r.vm.NewObject()
		_ = location.Set("href", pageURL)
		r.vm.Set("location", location)
	}
}

func (r *Runtime) consoleFunc(level slog.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		r.logger.Log(context.Background(), level, "js console", "text", strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (r *Runtime) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("setTimeout: callback is not a function"))
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		r.post(func() {
			if _, err := fn(goja.Undefined()); err != nil {
				r.logger.Error("js timer callback failed", "error", err)
			}
		})
	})
	return goja.Undefined()
}

func (r *Runtime) loop() {
	for {
		select {
		case <-r.done:
			return
		case task := <-r.tasks:
			task()
		}
	}
}

func (r *Runtime) post(task func()) bool {
	select {
	case <-r.done:
		return false
	case r.tasks <- task:
		return true
	}
}

// Close stops the event loop and interrupts any running script.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.vm.Interrupt("js host closed")
	})
}

// Invoke calls wx_api[capability] with the decoded payload and waits for the
// returned promise to settle. A rejection or exception is a *host.ForeignError.
func (r *Runtime) Invoke(ctx context.Context, capability string, payload json.RawMessage) (json.RawMessage, error) {
	results := make(chan callResult, 1)
	deliver := func(raw json.RawMessage, err error) {
		select {
		case results <- callResult{raw: raw, err: err}:
		default:
		}
	}
	if !r.post(func() { r.start(capability, payload, deliver) }) {
		return nil, ErrClosed
	}
	select {
	case res := <-results:
		return res.raw, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return nil, ErrClosed
	}
}

func (r *Runtime) start(capability string, payload json.RawMessage, deliver func(json.RawMessage, error)) {
	ns := r.vm.Get(apiNamespace)
	if ns == nil || goja.IsUndefined(ns) || goja.IsNull(ns) {
		deliver(nil, fmt.Errorf("%w: %s namespace missing", host.ErrUnknownCapability, apiNamespace))
		return
	}
	nsObj := ns.ToObject(r.vm)
	fn, ok := goja.AssertFunction(nsObj.Get(capability))
	if !ok {
		deliver(nil, fmt.Errorf("%w: %s", host.ErrUnknownCapability, capability))
		return
	}

	arg := goja.Undefined()
	if len(payload) > 0 {
		parsed, err := r.parseJSON(string(payload))
		if err != nil {
			deliver(nil, &host.ForeignError{Capability: capability, Message: exceptionText(err)})
			return
		}
		arg = parsed
	}

	ret, err := fn(nsObj, arg)
	if err != nil {
		deliver(nil, &host.ForeignError{Capability: capability, Message: r.errorText(err)})
		return
	}
	if _, isPromise := ret.Export().(*goja.Promise); !isPromise {
		raw, err := r.stringify(ret)
		deliver(raw, err)
		return
	}

	then, ok := goja.AssertFunction(ret.ToObject(r.vm).Get("then"))
	if !ok {
		deliver(nil, &host.ForeignError{Capability: capability, Message: "promise without then"})
		return
	}
	onFulfilled := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		raw, err := r.stringify(call.Argument(0))
		deliver(raw, err)
		return goja.Undefined()
	})
	onRejected := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		msg := unserializableReason
		if raw, err := r.stringify(call.Argument(0)); err == nil {
			msg = string(raw)
		}
		deliver(nil, &host.ForeignError{Capability: capability, Message: msg})
		return goja.Undefined()
	})
	if _, err := then(ret, onFulfilled, onRejected); err != nil {
		deliver(nil, &host.ForeignError{Capability: capability, Message: r.errorText(err)})
	}
}

// CurrentURL reads location.href from the runtime.
func (r *Runtime) CurrentURL(ctx context.Context) (string, error) {
	type hrefResult struct {
		href string
		ok   bool
	}
	results := make(chan hrefResult, 1)
	posted := r.post(func() {
		location := r.vm.Get("location")
		if location == nil || goja.IsUndefined(location) || goja.IsNull(location) {
			results <- hrefResult{}
			return
		}
		href := location.ToObject(r.vm).Get("href")
		if href == nil || goja.IsUndefined(href) || goja.IsNull(href) {
			results <- hrefResult{}
			return
		}
		results <- hrefResult{href: href.String(), ok: true}
	})
	if !posted {
		return "", ErrClosed
	}
	select {
	case res := <-results:
		if !res.ok {
			return "", signing.ErrURLUnavailable
		}
		return res.href, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-r.done:
		return "", ErrClosed
	}
}

func (r *Runtime) parseJSON(text string) (goja.Value, error) {
	parse, ok := goja.AssertFunction(r.vm.Get("JSON").ToObject(r.vm).Get("parse"))
	if !ok {
		return nil, errors.New("JSON.parse unavailable")
	}
	return parse(goja.Undefined(), r.vm.ToValue(text))
}

func (r *Runtime) stringify(v goja.Value) (json.RawMessage, error) {
	if v == nil || goja.IsUndefined(v) {
		return json.RawMessage("null"), nil
	}
	stringify, ok := goja.AssertFunction(r.vm.Get("JSON").ToObject(r.vm).Get("stringify"))
	if !ok {
		return nil, errors.New("JSON.stringify unavailable")
	}
	out, err := stringify(goja.Undefined(), v)
	if err != nil {
		return nil, fmt.Errorf("stringify host value: %w", err)
	}
	if goja.IsUndefined(out) {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(out.String()), nil
}

func (r *Runtime) errorText(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		if obj, ok := ex.Value().(*goja.Object); ok {
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				return msg.String()
			}
		}
		if raw, serr := r.stringify(ex.Value()); serr == nil {
			return string(raw)
		}
	}
	return exceptionText(err)
}

func exceptionText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
