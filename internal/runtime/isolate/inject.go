package isolate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	"github.com/GriffinCanCode/probehost/internal/runtime/bridge"
)

// inject installs run-scoped globals and builds the ctx object handed to
// probe. Nothing here is shared with any other isolate.
func (iso *Isolate) inject(rc RunContext) error {
	vm := iso.vm
	host := iso.bridge.Capabilities

	if err := iso.setupTimers(); err != nil {
		return err
	}
	if err := vm.Set("console", iso.consoleObject(host.Log)); err != nil {
		return err
	}

	app := vm.NewObject()
	for k, v := range map[string]string{
		"pluginDataDir": rc.PluginDataDir,
		"appDataDir":    rc.AppDataDir,
		"version":       rc.Version,
		"platform":      rc.Platform,
	} {
		if err := app.Set(k, v); err != nil {
			return err
		}
	}

	hostObj := vm.NewObject()
	sqlite := iso.sqliteObject(host.SQLite)
	for k, v := range map[string]*goja.Object{
		"fs":       iso.fsObject(host.FS),
		"http":     iso.httpObject(host.HTTP),
		"sqlite":   sqlite,
		"storage":  sqlite,
		"keychain": iso.keychainObject(host.Keychain),
		"log":      iso.logObject(host.Log),
	} {
		if err := hostObj.Set(k, v); err != nil {
			return err
		}
	}

	ctxObj := vm.NewObject()
	now := rc.Now.UTC()
	if err := ctxObj.Set("nowIso", now.Format("2006-01-02T15:04:05.000Z")); err != nil {
		return err
	}
	if err := ctxObj.Set("nowMs", now.UnixMilli()); err != nil {
		return err
	}
	if err := ctxObj.Set("app", app); err != nil {
		return err
	}
	if err := ctxObj.Set("host", hostObj); err != nil {
		return err
	}
	iso.ctxObj = ctxObj
	return nil
}

// throw raises err inside the script as an Error whose message is err's text.
// Failures caused by the run ending also interrupt the VM so the script
// cannot catch its way past the deadline.
func (iso *Isolate) throw(err error) {
	if iso.ctx.Err() != nil && (errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, bridge.ErrClosed)) {
		iso.vm.Interrupt(ErrInterrupted)
	}
	panic(iso.vm.NewGoError(err))
}

func (iso *Isolate) stringArg(call goja.FunctionCall, i int, name string) string {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		iso.throw(argError(name + " is required"))
	}
	return v.String()
}

func (iso *Isolate) fsObject(fs bridge.Filesystem) *goja.Object {
	vm := iso.vm
	obj := vm.NewObject()
	_ = obj.Set("exists", func(call goja.FunctionCall) goja.Value {
		ok, err := fs.Exists(iso.ctx, iso.stringArg(call, 0, "path"))
		if err != nil {
			iso.throw(err)
		}
		return vm.ToValue(ok)
	})
	_ = obj.Set("readText", func(call goja.FunctionCall) goja.Value {
		text, err := fs.ReadText(iso.ctx, iso.stringArg(call, 0, "path"))
		if err != nil {
			iso.throw(err)
		}
		return vm.ToValue(text)
	})
	_ = obj.Set("writeText", func(call goja.FunctionCall) goja.Value {
		path := iso.stringArg(call, 0, "path")
		text := iso.stringArg(call, 1, "text")
		if err := fs.WriteText(iso.ctx, path, text); err != nil {
			iso.throw(err)
		}
		return goja.Undefined()
	})
	_ = obj.Set("listDir", func(call goja.FunctionCall) goja.Value {
		names, err := fs.ListDir(iso.ctx, iso.stringArg(call, 0, "path"))
		if err != nil {
			iso.throw(err)
		}
		items := make([]interface{}, len(names))
		for i, n := range names {
			items[i] = n
		}
		return vm.NewArray(items...)
	})
	return obj
}

func (iso *Isolate) sqliteObject(store bridge.Store) *goja.Object {
	vm := iso.vm
	obj := vm.NewObject()
	_ = obj.Set("query", func(call goja.FunctionCall) goja.Value {
		out, err := store.Query(iso.ctx, iso.stringArg(call, 0, "path"), iso.stringArg(call, 1, "sql"))
		if err != nil {
			iso.throw(err)
		}
		return vm.ToValue(out)
	})
	_ = obj.Set("exec", func(call goja.FunctionCall) goja.Value {
		if err := store.Exec(iso.ctx, iso.stringArg(call, 0, "path"), iso.stringArg(call, 1, "sql")); err != nil {
			iso.throw(err)
		}
		return goja.Undefined()
	})
	return obj
}

func (iso *Isolate) httpObject(client bridge.HTTPClient) *goja.Object {
	vm := iso.vm
	obj := vm.NewObject()
	_ = obj.Set("request", func(call goja.FunctionCall) goja.Value {
		resp, err := client.Request(iso.ctx, iso.parseRequest(call.Argument(0)))
		if err != nil {
			iso.throw(err)
		}
		return iso.responseObject(resp)
	})
	_ = obj.Set("requestAsync", func(call goja.FunctionCall) goja.Value {
		results, err := client.RequestAsync(iso.ctx, iso.parseRequest(call.Argument(0)))
		if err != nil {
			iso.throw(err)
		}

		promise, resolve, reject := vm.NewPromise()
		go func() {
			var res bridge.AsyncResult
			select {
			case res = <-results:
			case <-iso.ctx.Done():
				return
			}
			iso.loop.RunOnLoop(func(vm *goja.Runtime) {
				if iso.ctx.Err() != nil {
					return
				}
				if res.Err != nil {
					_ = reject(vm.NewGoError(res.Err))
					return
				}
				_ = resolve(iso.responseObject(res.Response))
			})
		}()
		return vm.ToValue(promise)
	})
	return obj
}

func (iso *Isolate) parseRequest(arg goja.Value) bridge.Request {
	obj, ok := arg.(*goja.Object)
	if !ok {
		iso.throw(argError("request must be an object"))
	}

	req := bridge.Request{
		Method: valueString(obj.Get("method")),
		URL:    valueString(obj.Get("url")),
	}
	if h, ok := obj.Get("headers").(*goja.Object); ok {
		req.Headers = make(map[string]string)
		for _, k := range h.Keys() {
			req.Headers[k] = h.Get(k).String()
		}
	}
	if body := obj.Get("bodyText"); body != nil && !goja.IsUndefined(body) && !goja.IsNull(body) {
		s := body.String()
		req.BodyText = &s
	}
	if t := obj.Get("timeoutMs"); t != nil && !goja.IsUndefined(t) && !goja.IsNull(t) {
		req.TimeoutMs = int(t.ToInteger())
	}
	return req
}

func (iso *Isolate) responseObject(resp *bridge.Response) *goja.Object {
	vm := iso.vm
	headers := vm.NewObject()
	for k, v := range resp.Headers {
		_ = headers.Set(k, v)
	}
	obj := vm.NewObject()
	_ = obj.Set("status", resp.Status)
	_ = obj.Set("bodyText", resp.BodyText)
	_ = obj.Set("headers", headers)
	return obj
}

func (iso *Isolate) keychainObject(keychain bridge.Keychain) *goja.Object {
	vm := iso.vm
	obj := vm.NewObject()
	_ = obj.Set("read", func(call goja.FunctionCall) goja.Value {
		account := ""
		if a := call.Argument(1); !goja.IsUndefined(a) && !goja.IsNull(a) {
			account = a.String()
		}
		secret, ok, err := keychain.Read(iso.ctx, iso.stringArg(call, 0, "service"), account)
		if err != nil {
			iso.throw(err)
		}
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(secret)
	})
	return obj
}

func (iso *Isolate) logObject(sink bridge.LogSink) *goja.Object {
	obj := iso.vm.NewObject()
	for _, level := range []bridge.Level{bridge.LevelInfo, bridge.LevelWarn, bridge.LevelError} {
		level := level
		_ = obj.Set(string(level), func(call goja.FunctionCall) goja.Value {
			sink.Log(level, iso.joinArgs(call.Arguments))
			return goja.Undefined()
		})
	}
	return obj
}

func (iso *Isolate) consoleObject(sink bridge.LogSink) *goja.Object {
	obj := iso.vm.NewObject()
	levels := map[string]bridge.Level{
		"log":   bridge.LevelInfo,
		"info":  bridge.LevelInfo,
		"debug": bridge.LevelInfo,
		"warn":  bridge.LevelWarn,
		"error": bridge.LevelError,
	}
	for name, level := range levels {
		level := level
		_ = obj.Set(name, func(call goja.FunctionCall) goja.Value {
			sink.Log(level, iso.joinArgs(call.Arguments))
			return goja.Undefined()
		})
	}
	return obj
}

// setupTimers replaces the loop's setTimeout so callback errors are logged
// instead of dropped.
func (iso *Isolate) setupTimers() error {
	vm := iso.vm
	if err := vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			iso.throw(argError("setTimeout callback must be a function"))
		}
		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		if delay < 0 {
			delay = 0
		}
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}
		timer := iso.loop.SetTimeout(func(*goja.Runtime) {
			if iso.ctx.Err() != nil {
				return
			}
			if _, err := fn(goja.Undefined(), args...); err != nil && !iso.interrupted(err) {
				iso.logCallbackError("setTimeout callback", err)
			}
		}, delay)
		if timer == nil {
			return goja.Undefined()
		}
		return vm.ToValue(timer)
	}); err != nil {
		return err
	}
	return vm.Set("clearTimeout", func(call goja.FunctionCall) goja.Value {
		if timer, ok := call.Argument(0).Export().(*eventloop.Timer); ok {
			iso.loop.ClearTimeout(timer)
		}
		return goja.Undefined()
	})
}

func valueString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func (iso *Isolate) joinArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = iso.safeString(a)
	}
	return strings.Join(parts, " ")
}

func argError(msg string) error {
	return fmt.Errorf("%w: %s", bridge.ErrInvalidArgument, msg)
}

// safeString never lets a throwing toString escape into the host.
func (iso *Isolate) safeString(v goja.Value) (s string) {
	defer func() {
		if r := recover(); r != nil {
			iso.rearm(r)
			s = "[unprintable]"
		}
	}()
	return v.String()
}

// safeGet reads a property, treating a throwing getter as absent.
func (iso *Isolate) safeGet(obj *goja.Object, name string) (v goja.Value) {
	defer func() {
		if r := recover(); r != nil {
			iso.rearm(r)
			v = nil
		}
	}()
	return obj.Get(name)
}

// rearm restores an interrupt swallowed while reading script values, so
// the script still stops at its next instruction.
func (iso *Isolate) rearm(r interface{}) {
	if ie, ok := r.(*goja.InterruptedError); ok {
		iso.vm.Interrupt(ie.Value())
	}
}
