package isolate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	goruntime "runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/probehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/probehost/internal/runtime/bridge"
	"github.com/GriffinCanCode/probehost/internal/shared/paths"
)

// Options configures every isolate a Manager creates.
type Options struct {
	Layout           paths.Layout
	Version          string
	MaxCallStackSize int
	Bridge           bridge.Options
}

// Manager creates one isolate per run. The only state it shares between
// runs is the pooled HTTP transport.
type Manager struct {
	opts      Options
	transport http.RoundTripper
	logger    *logging.Logger
	metrics   *monitoring.Metrics
}

// NewManager creates a Manager.
func NewManager(opts Options, logger *logging.Logger, metrics *monitoring.Metrics) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	transport := opts.Bridge.Transport
	if transport == nil {
		transport = bridge.NewTransport()
	}
	return &Manager{opts: opts, transport: transport, logger: logger, metrics: metrics}
}

// NewRunContext prepares the per-run data for a plugin, creating its data
// directory.
func (m *Manager) NewRunContext(pluginID string, now time.Time) (RunContext, error) {
	dir, err := m.opts.Layout.EnsurePluginDataDir(pluginID)
	if err != nil {
		return RunContext{}, err
	}
	return RunContext{
		Now:           now,
		PluginDataDir: dir,
		AppDataDir:    m.opts.Layout.Root,
		Version:       m.opts.Version,
		Platform:      goruntime.GOOS,
	}, nil
}

// Isolate is one disposable script context. The runtime lives on its own
// event loop goroutine; every method hands work to that goroutine and
// waits for it, so any goroutine may call them.
type Isolate struct {
	desc    Descriptor
	program *goja.Program
	loop    *eventloop.EventLoop
	bridge  *bridge.Bridge
	logger  *logging.Logger
	metrics *monitoring.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	// Set by the setup job and only touched on the loop afterwards,
	// except vm.Interrupt.
	vm      *goja.Runtime
	probe   goja.Callable
	ctxObj  *goja.Object
	promise promiseIntrinsics

	disposeOnce sync.Once
}

// promiseIntrinsics are captured before the script runs, so a script that
// replaces Promise or its prototype cannot change how the host awaits it.
type promiseIntrinsics struct {
	ctor    *goja.Object
	resolve goja.Callable
	then    goja.Callable
}

// Create builds a fresh runtime, compiles the script and injects ctx.
// The script does not run until Load.
func (m *Manager) Create(ctx context.Context, desc Descriptor, rc RunContext, logger *logging.Logger) (*Isolate, error) {
	if logger == nil {
		logger = m.logger
	}
	if err := paths.ValidatePluginID(desc.ID); err != nil {
		return nil, &LoadError{Message: err.Error()}
	}
	if strings.TrimSpace(desc.Script) == "" {
		return nil, &LoadError{Message: "script is empty"}
	}
	filename := desc.Filename
	if filename == "" {
		filename = desc.ID + "/plugin.js"
	}

	program, err := goja.Compile(filename, desc.Script, false)
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("compile: %v", err)}
	}

	layout := paths.New(rc.AppDataDir)
	scope, err := bridge.NewScope(layout, desc.ID)
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("prepare data dir: %v", err)}
	}

	bridgeOpts := m.opts.Bridge
	bridgeOpts.Transport = m.transport

	runCtx, cancel := context.WithCancel(ctx)
	iso := &Isolate{
		desc:    desc,
		program: program,
		loop:    eventloop.NewEventLoop(eventloop.EnableConsole(false)),
		bridge:  bridge.New(scope, bridgeOpts, logger, m.metrics),
		logger:  logger,
		metrics: m.metrics,
		ctx:     runCtx,
		cancel:  cancel,
	}
	m.metrics.IsolateCreated()
	iso.loop.Start()

	setup := make(chan error, 1)
	iso.loop.RunOnLoop(func(vm *goja.Runtime) {
		defer func() {
			if r := recover(); r != nil {
				setup <- fmt.Errorf("%v", r)
			}
		}()
		iso.vm = vm
		setup <- iso.setup(rc, m.opts.MaxCallStackSize)
	})
	if err := <-setup; err != nil {
		iso.Dispose()
		return nil, &LoadError{Message: fmt.Sprintf("inject context: %v", err)}
	}
	return iso, nil
}

func (iso *Isolate) setup(rc RunContext, maxCallStack int) error {
	harden(iso.vm, maxCallStack)

	promiseCtor := iso.vm.Get("Promise").ToObject(iso.vm)
	resolve, ok := goja.AssertFunction(promiseCtor.Get("resolve"))
	if !ok {
		return errors.New("Promise.resolve is unavailable")
	}
	then, ok := goja.AssertFunction(promiseCtor.Get("prototype").ToObject(iso.vm).Get("then"))
	if !ok {
		return errors.New("Promise.prototype.then is unavailable")
	}
	iso.promise = promiseIntrinsics{ctor: promiseCtor, resolve: resolve, then: then}

	return iso.inject(rc)
}

// Load runs the script body and resolves its registration.
func (iso *Isolate) Load(ctx context.Context) error {
	return iso.onLoop(ctx, func(vm *goja.Runtime) error {
		if _, err := vm.RunProgram(iso.program); err != nil {
			if iso.interrupted(err) {
				return ErrInterrupted
			}
			return &LoadError{Message: "script threw while loading: " + iso.describeError(err)}
		}

		reg := vm.GlobalObject().Get(RegistrationKey)
		if reg == nil || goja.IsUndefined(reg) || goja.IsNull(reg) {
			return &LoadError{Message: "plugin did not register " + RegistrationKey}
		}
		obj, ok := reg.(*goja.Object)
		if !ok {
			return &LoadError{Message: RegistrationKey + " is not an object"}
		}

		id := obj.Get("id")
		if id == nil || goja.IsUndefined(id) || id.String() != iso.desc.ID {
			got := "undefined"
			if id != nil {
				got = id.String()
			}
			return &LoadError{Message: fmt.Sprintf("registered id %q does not match plugin %q", got, iso.desc.ID)}
		}

		probe, ok := goja.AssertFunction(obj.Get("probe"))
		if !ok {
			return &LoadError{Message: "registered probe is not a function"}
		}
		iso.probe = probe
		return nil
	})
}

// Invoke calls probe(ctx). A synchronous throw comes back as *ThrownError.
func (iso *Isolate) Invoke(ctx context.Context) (goja.Value, error) {
	var v goja.Value
	err := iso.onLoop(ctx, func(vm *goja.Runtime) error {
		if iso.probe == nil {
			return &LoadError{Message: "probe not loaded"}
		}
		var err error
		v, err = iso.probe(goja.Undefined(), iso.ctxObj)
		if err != nil {
			if iso.interrupted(err) {
				return ErrInterrupted
			}
			return iso.thrownError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Await settles v. Non-thenables are returned as is; thenables settle on
// the loop while Await waits for them or for ctx.
func (iso *Isolate) Await(ctx context.Context, v goja.Value) (goja.Value, error) {
	type settlement struct {
		value goja.Value
		err   error
	}
	settled := make(chan settlement, 1)

	pending := false
	err := iso.onLoop(ctx, func(vm *goja.Runtime) error {
		promise, err := iso.asPromise(v)
		if err != nil || promise == nil {
			return err
		}
		pending = true

		onFulfilled := func(call goja.FunctionCall) goja.Value {
			settled <- settlement{value: call.Argument(0)}
			return goja.Undefined()
		}
		onRejected := func(call goja.FunctionCall) goja.Value {
			settled <- settlement{err: iso.rejection(call.Argument(0))}
			return goja.Undefined()
		}
		if _, err := iso.promise.then(promise, vm.ToValue(onFulfilled), vm.ToValue(onRejected)); err != nil {
			if iso.interrupted(err) {
				return ErrInterrupted
			}
			return iso.thrownError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !pending {
		return v, nil
	}

	select {
	case s := <-settled:
		return s.value, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-iso.ctx.Done():
		return nil, ErrDisposed
	}
}

// Export converts a settled value into plain Go data. Undefined becomes nil.
// A getter that throws while being read surfaces as *ThrownError.
func (iso *Isolate) Export(ctx context.Context, v goja.Value) (interface{}, error) {
	var out interface{}
	err := iso.onLoop(ctx, func(*goja.Runtime) error {
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return nil
		}
		out = v.Export()
		return nil
	})
	return out, err
}

// Context is cancelled when the isolate is disposed.
func (iso *Isolate) Context() context.Context {
	return iso.ctx
}

// Dispose tears the isolate down. Safe from any goroutine, any number of
// times, and it never waits on the script.
func (iso *Isolate) Dispose() {
	iso.disposeOnce.Do(func() {
		iso.cancel()
		if iso.vm != nil {
			iso.vm.Interrupt(ErrDisposed)
		}
		iso.bridge.Close()
		iso.metrics.IsolateDisposed()
		// Terminate waits for the job in flight, which may be a capability
		// call that is still unwinding.
		go iso.loop.Terminate()
	})
}

// onLoop runs fn on the loop and waits for it, for ctx or for disposal.
// Jobs that reach the loop after disposal do not run.
func (iso *Isolate) onLoop(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	done := make(chan error, 1)
	queued := iso.loop.RunOnLoop(func(vm *goja.Runtime) {
		if iso.ctx.Err() != nil {
			done <- ErrDisposed
			return
		}
		defer func() {
			if r := recover(); r != nil {
				done <- iso.recovered(r)
			}
		}()
		done <- fn(vm)
	})
	if !queued {
		return ErrDisposed
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-iso.ctx.Done():
		return ErrDisposed
	}
}

// recovered turns a panic on the loop into an error. Script exceptions
// raised outside a call, such as from a getter during Export, are thrown
// errors; anything else is a host bug.
func (iso *Isolate) recovered(r interface{}) error {
	switch v := r.(type) {
	case *goja.Exception:
		return iso.thrownError(v)
	case *goja.InterruptedError:
		return ErrInterrupted
	}
	iso.logger.Error("isolate job panicked",
		zap.String("plugin", iso.desc.ID),
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()))
	return fmt.Errorf("internal error: %v", r)
}

func (iso *Isolate) asPromise(v goja.Value) (goja.Value, error) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, nil
	}
	if _, ok := obj.Export().(*goja.Promise); ok {
		return obj, nil
	}
	if _, ok := goja.AssertFunction(obj.Get("then")); !ok {
		return nil, nil
	}

	// Foreign thenable: adopt it through Promise.resolve.
	adopted, err := iso.promise.resolve(iso.promise.ctor, v)
	if err != nil {
		if iso.interrupted(err) {
			return nil, ErrInterrupted
		}
		return nil, iso.thrownError(err)
	}
	return adopted, nil
}

func (iso *Isolate) interrupted(err error) bool {
	var ie *goja.InterruptedError
	return errors.As(err, &ie)
}

// thrownError describes an engine error and keeps the host error behind it.
func (iso *Isolate) thrownError(err error) *ThrownError {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return iso.rejection(ex.Value())
	}
	return &ThrownError{Message: err.Error(), Cause: err}
}

// rejection describes a thrown or rejected value.
func (iso *Isolate) rejection(v goja.Value) *ThrownError {
	return &ThrownError{Message: iso.describeValue(v), Cause: iso.goCause(v)}
}

// goCause returns the Go error wrapped by an Error from vm.NewGoError.
func (iso *Isolate) goCause(v goja.Value) error {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	inner := iso.safeGet(obj, "value")
	if inner == nil {
		return nil
	}
	err, _ := inner.Export().(error)
	return err
}

// describeError renders an engine error as the message the caller sees.
func (iso *Isolate) describeError(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return iso.describeValue(ex.Value())
	}
	return err.Error()
}

// describeValue prefers an Error's message, then the value's string form.
func (iso *Isolate) describeValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "probe failed without an error value"
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := iso.safeGet(obj, "message"); msg != nil && !goja.IsUndefined(msg) && !goja.IsNull(msg) {
			if s, ok := msg.Export().(string); ok && s != "" {
				return s
			}
		}
	}

	if s := iso.safeString(v); s != "[unprintable]" {
		return s
	}
	return "probe failed with an unprintable value"
}

func (iso *Isolate) logCallbackError(where string, err error) {
	iso.logger.Warn("uncaught error in "+where,
		zap.String("error", iso.describeError(err)))
}
