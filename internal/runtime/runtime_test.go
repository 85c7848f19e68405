package runtime

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/probehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/probehost/internal/runtime/output"
	"github.com/GriffinCanCode/probehost/internal/shared/paths"
)

func newHost(t *testing.T) (*Host, paths.Layout) {
	t.Helper()
	layout := paths.New(t.TempDir())
	host := NewHost(Options{
		Layout:         layout,
		Version:        "0.1.0-test",
		DefaultTimeout: 5 * time.Second,
	}, nil, monitoring.NewMetrics())
	return host, layout
}

// plugin wraps a probe body in the registration boilerplate.
func plugin(id, body string) Descriptor {
	return Descriptor{ID: id, Script: fmt.Sprintf(`(function () {
  function text(label, value) { return { type: "text", label: label, value: value } }
  function probe(ctx) {
%s
  }
  globalThis.__openusage_plugin = { id: %q, probe: probe }
})()`, body, id)}
}

func requireKind(t *testing.T, res RunResult, kind Kind) {
	t.Helper()
	require.NotNil(t, res.Err, "expected %s, got output %+v", kind, res.Output)
	require.Equal(t, kind, res.Err.Kind, "detail: %s", res.Err.Detail)
	assert.Nil(t, res.Output)
}

func TestScenarioTextLine(t *testing.T) {
	host, _ := newHost(t)

	res := host.RunProbe(context.Background(), plugin("mock", `
    return { lines: [{ type: "text", label: "X", value: "Y" }] }`), time.Second)

	require.True(t, res.OK(), "err: %v", res.Err)
	require.Len(t, res.Output.Lines, 1)
	assert.Equal(t, output.Text{Label: "X", Value: "Y"}, res.Output.Lines[0])
	assert.Equal(t, "mock", res.PluginID)
	assert.NotEmpty(t, res.RunID.String())
}

func TestScenarioThrowString(t *testing.T) {
	host, _ := newHost(t)

	res := host.RunProbe(context.Background(), plugin("mock", `throw "boom"`), time.Second)

	requireKind(t, res, KindThrownError)
	assert.Equal(t, "boom", res.Err.Detail)
}

func TestScenarioNeverSettles(t *testing.T) {
	host, _ := newHost(t)

	start := time.Now()
	res := host.RunProbe(context.Background(), plugin("mock", `
    return new Promise(function () {})`), time.Second)
	elapsed := time.Since(start)

	requireKind(t, res, KindTimeout)
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 1500*time.Millisecond)
}

func TestScenarioUnknownLineType(t *testing.T) {
	host, _ := newHost(t)

	res := host.RunProbe(context.Background(), plugin("mock", `
    return { lines: [{ type: "nope" }] }`), time.Second)

	requireKind(t, res, KindUnknownLineType)
	assert.Equal(t, "nope", res.Err.Detail)
	assert.Equal(t, "invalid probe output", res.Err.Kind.Diagnostic())
}

func TestValidationKinds(t *testing.T) {
	host, _ := newHost(t)

	tests := []struct {
		name string
		body string
		kind Kind
	}{
		{"string", `return "not an object"`, KindNonObjectReturn},
		{"undefined", `return`, KindNonObjectReturn},
		{"array", `return [1, 2]`, KindNonObjectReturn},
		{"empty object", `return {}`, KindMissingLines},
		{"lines not array", `return { lines: "x" }`, KindMissingLines},
		{"one bad among good", `return { lines: [text("A", "1"), { type: "nope", label: "Bad", value: "data" }] }`, KindUnknownLineType},
		{"async empty object", `return Promise.resolve({})`, KindMissingLines},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := host.RunProbe(context.Background(), plugin("mock", tt.body), time.Second)
			requireKind(t, res, tt.kind)
		})
	}
}

func TestAllVariantsPreserveOrder(t *testing.T) {
	host, _ := newHost(t)

	res := host.RunProbe(context.Background(), plugin("mock", `
    return { lines: [
      { type: "badge", label: "Mode", text: "ok", color: "#000000" },
      { type: "progress", label: "Percent", value: 42, max: 100, unit: "percent" },
      { type: "progress", label: "Dollars", value: 12.34, max: 100, unit: "dollars", color: undefined },
      text("Now", ctx.nowIso),
    ] }`), time.Second)

	require.True(t, res.OK(), "err: %v", res.Err)
	require.Len(t, res.Output.Lines, 4)
	assert.Equal(t, output.Badge{Label: "Mode", Text: "ok", Color: "#000000"}, res.Output.Lines[0])
	assert.Equal(t, output.Progress{Label: "Percent", Value: 42, Max: 100, Unit: output.UnitPercent}, res.Output.Lines[1])
	assert.Equal(t, output.Progress{Label: "Dollars", Value: 12.34, Max: 100, Unit: output.UnitDollars}, res.Output.Lines[2])
	assert.Equal(t, res.StartedAt.UTC().Format("2006-01-02T15:04:05.000Z"), res.Output.Lines[3].(output.Text).Value)
}

func TestSyncThrowIsNeverTimeout(t *testing.T) {
	host, _ := newHost(t)

	for _, timeout := range []time.Duration{200 * time.Millisecond, 10 * time.Second} {
		res := host.RunProbe(context.Background(), plugin("mock", `
      var pending = new Promise(function () {})
      throw new Error("mock plugin: thrown error")`), timeout)

		requireKind(t, res, KindThrownError)
		assert.Equal(t, "mock plugin: thrown error", res.Err.Detail)
		assert.Equal(t, "probe() failed", res.Err.Kind.Diagnostic())
	}
}

func TestRejectedPromise(t *testing.T) {
	host, _ := newHost(t)

	tests := []struct {
		body   string
		detail string
	}{
		{`return Promise.reject(new Error("mock plugin: rejected promise"))`, "mock plugin: rejected promise"},
		{`return Promise.reject(42)`, "42"},
		{`return Promise.reject("nope")`, "nope"},
		{`return Promise.reject({ code: 7 })`, "[object Object]"},
		{`return Promise.reject()`, "probe failed without an error value"},
		{`return (async function () { throw new TypeError("late") })()`, "late"},
	}

	for _, tt := range tests {
		res := host.RunProbe(context.Background(), plugin("mock", tt.body), time.Second)
		requireKind(t, res, KindThrownError)
		assert.Equal(t, tt.detail, res.Err.Detail)
	}
}

func TestAsyncResolutionThroughTimers(t *testing.T) {
	host, _ := newHost(t)

	res := host.RunProbe(context.Background(), plugin("mock", `
    return new Promise(function (resolve) {
      var cancelled = setTimeout(function () { resolve({ lines: [text("which", "cancelled")] }) }, 10)
      clearTimeout(cancelled)
      setTimeout(function (v) { resolve({ lines: [text("which", v)] }) }, 20, "fired")
    })`), time.Second)

	require.True(t, res.OK(), "err: %v", res.Err)
	assert.Equal(t, output.Text{Label: "which", Value: "fired"}, res.Output.Lines[0])
}

func TestThenableAdopted(t *testing.T) {
	host, _ := newHost(t)

	res := host.RunProbe(context.Background(), plugin("mock", `
    return { then: function (resolve) { resolve({ lines: [] }) } }`), time.Second)

	require.True(t, res.OK(), "err: %v", res.Err)
	assert.Empty(t, res.Output.Lines)
}

func TestBusyLoopTimesOut(t *testing.T) {
	host, _ := newHost(t)

	for name, body := range map[string]string{
		"sync loop":  `while (true) {}`,
		"async loop": `return Promise.resolve().then(function () { while (true) {} })`,
	} {
		t.Run(name, func(t *testing.T) {
			start := time.Now()
			res := host.RunProbe(context.Background(), plugin("mock", body), 300*time.Millisecond)
			requireKind(t, res, KindTimeout)
			assert.Less(t, time.Since(start), time.Second)
		})
	}
}

func TestTopLevelLoopTimesOut(t *testing.T) {
	host, _ := newHost(t)

	res := host.RunProbe(context.Background(), Descriptor{ID: "mock", Script: `while (true) {}`}, 300*time.Millisecond)
	requireKind(t, res, KindTimeout)
}

func TestCallerCancellation(t *testing.T) {
	host, _ := newHost(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	res := host.RunProbe(ctx, plugin("mock", `return new Promise(function () {})`), 5*time.Second)
	requireKind(t, res, KindTimeout)
	assert.Equal(t, "run cancelled", res.Err.Detail)
	assert.Less(t, res.Duration, time.Second)
}

func TestLoadErrors(t *testing.T) {
	host, _ := newHost(t)

	tests := []struct {
		name string
		desc Descriptor
	}{
		{"syntax error", Descriptor{ID: "mock", Script: `function (`}},
		{"no registration", Descriptor{ID: "mock", Script: `var x = 1`}},
		{"probe not a function", Descriptor{ID: "mock", Script: `globalThis.__openusage_plugin = { id: "mock", probe: 3 }`}},
		{"id mismatch", Descriptor{ID: "mock", Script: `globalThis.__openusage_plugin = { id: "other", probe: function () {} }`}},
		{"throws while loading", Descriptor{ID: "mock", Script: `throw new Error("top level")`}},
		{"empty script", Descriptor{ID: "mock", Script: "  "}},
		{"bad id", Descriptor{ID: "../escape", Script: `var x`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := host.RunProbe(context.Background(), tt.desc, time.Second)
			requireKind(t, res, KindLoadError)
			assert.Equal(t, "plugin failed to load", res.Err.Kind.Diagnostic())
		})
	}
}

func TestHardenedGlobals(t *testing.T) {
	host, _ := newHost(t)

	res := host.RunProbe(context.Background(), plugin("mock", `
    var blocked = "no"
    try { (function () {}).constructor("return 1")() } catch (e) { blocked = "yes" }
    return { lines: [
      text("eval", typeof eval),
      text("require", typeof require),
      text("process", typeof process),
      text("ctor", blocked),
      text("setInterval", typeof setInterval),
      text("setImmediate", typeof setImmediate),
      text("setTimeout", typeof setTimeout),
    ] }`), time.Second)

	require.True(t, res.OK(), "err: %v", res.Err)
	values := make([]string, 0, 7)
	for _, l := range res.Output.Lines {
		values = append(values, l.(output.Text).Value)
	}
	assert.Equal(t, []string{"undefined", "undefined", "undefined", "yes", "undefined", "undefined", "function"}, values)
}

func TestRunContextFields(t *testing.T) {
	host, layout := newHost(t)

	res := host.RunProbe(context.Background(), plugin("mock", `
    return { lines: [
      text("plugin", ctx.app.pluginDataDir),
      text("app", ctx.app.appDataDir),
      text("version", ctx.app.version),
      text("storage", String(ctx.host.storage === ctx.host.sqlite)),
      text("nowMs", String(typeof ctx.nowMs)),
    ] }`), time.Second)

	require.True(t, res.OK(), "err: %v", res.Err)
	assert.Equal(t, layout.PluginDataDir("mock"), res.Output.Lines[0].(output.Text).Value)
	assert.Equal(t, layout.Root, res.Output.Lines[1].(output.Text).Value)
	assert.Equal(t, "0.1.0-test", res.Output.Lines[2].(output.Text).Value)
	assert.Equal(t, "true", res.Output.Lines[3].(output.Text).Value)
	assert.Equal(t, "number", res.Output.Lines[4].(output.Text).Value)
	assert.DirExists(t, layout.PluginDataDir("mock"))
}

func TestCapabilityErrorsSurfaceAsThrown(t *testing.T) {
	host, layout := newHost(t)

	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"fs outside roots", `ctx.host.fs.readText("/definitely/not/a/real/path-" + String(Date.now()))`, "fs.readText: path outside allowed roots"},
		{"http bad method", `ctx.host.http.request({ method: "NOPE_METHOD", url: "https://example.com/", timeoutMs: 1000 })`, "http.request: unsupported method"},
		{"sqlite dot command", `ctx.host.sqlite.query(ctx.app.appDataDir + "/does-not-matter.db", ".schema")`, "sqlite.query: administrative statement not allowed"},
		{"missing argument", `ctx.host.fs.readText()`, "invalid argument: path is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := host.RunProbe(context.Background(), plugin("mock", tt.body+"\n    return { lines: [] }"), 2*time.Second)
			requireKind(t, res, KindThrownError)
			assert.Contains(t, res.Err.Detail, tt.detail)
		})
	}
	assert.NoFileExists(t, filepath.Join(layout.Root, "does-not-matter.db"))
}

func TestCapabilityErrorsCatchable(t *testing.T) {
	host, _ := newHost(t)

	res := host.RunProbe(context.Background(), plugin("mock", `
    var msg = ""
    try { ctx.host.fs.writeText("/etc/probehost-escape", "x") } catch (e) { msg = e.message }
    ctx.host.log.warn("write failed: " + msg)
    return { lines: [text("error", msg)] }`), time.Second)

	require.True(t, res.OK(), "err: %v", res.Err)
	assert.Contains(t, res.Output.Lines[0].(output.Text).Value, "fs.writeText: path outside allowed roots")
}

func TestMockStyleConfigRoundTrip(t *testing.T) {
	host, layout := newHost(t)
	desc := plugin("mock", `
    var configPath = ctx.app.pluginDataDir + "/config.json"
    if (!ctx.host.fs.exists(configPath)) {
      ctx.host.fs.writeText(configPath, JSON.stringify({ mode: "ok" }))
    }
    var config = JSON.parse(ctx.host.fs.readText(configPath))
    if (config.mode === "throw") throw new Error("configured to throw")
    return { lines: [text("Mode", config.mode)] }`)

	res := host.RunProbe(context.Background(), desc, time.Second)
	require.True(t, res.OK(), "err: %v", res.Err)
	assert.Equal(t, output.Text{Label: "Mode", Value: "ok"}, res.Output.Lines[0])

	require.NoError(t, os.WriteFile(filepath.Join(layout.PluginDataDir("mock"), "config.json"), []byte(`{"mode":"throw"}`), 0o644))
	res = host.RunProbe(context.Background(), desc, time.Second)
	requireKind(t, res, KindThrownError)
	assert.Equal(t, "configured to throw", res.Err.Detail)
}

func TestHTTPCapabilityEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"planUsage":{"totalSpend":1234,"limit":2000}}`))
	}))
	defer srv.Close()

	host, _ := newHost(t)
	script := fmt.Sprintf(`
    var sync = ctx.host.http.request({ method: "POST", url: %q, headers: { "Content-Type": "application/json" }, bodyText: "{}", timeoutMs: 1000 })
    var usage = JSON.parse(sync.bodyText).planUsage
    return ctx.host.http.requestAsync({ method: "GET", url: %q }).then(function (resp) {
      return { lines: [
        { type: "progress", label: "Plan", value: usage.totalSpend / 100, max: usage.limit / 100, unit: "dollars" },
        text("status", String(resp.status) + " " + resp.headers["content-type"]),
      ] }
    })`, srv.URL, srv.URL)

	res := host.RunProbe(context.Background(), plugin("cursor", script), 2*time.Second)
	require.True(t, res.OK(), "err: %v", res.Err)
	assert.Equal(t, output.Progress{Label: "Plan", Value: 12.34, Max: 20, Unit: output.UnitDollars}, res.Output.Lines[0])
	assert.Equal(t, output.Text{Label: "status", Value: "200 application/json"}, res.Output.Lines[1])
}

func TestHTTPTimeoutShorterThanDeadlineIsThrown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	host, _ := newHost(t)
	res := host.RunProbe(context.Background(), plugin("mock", fmt.Sprintf(`
    ctx.host.http.request({ method: "GET", url: %q, timeoutMs: 50 })`, srv.URL)), 2*time.Second)

	requireKind(t, res, KindThrownError)
	assert.Contains(t, res.Err.Detail, "request timed out")
}

func TestPendingRequestTimesOutAtDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	host, _ := newHost(t)
	for name, call := range map[string]string{
		"sync":  "ctx.host.http.request",
		"async": "return ctx.host.http.requestAsync",
	} {
		t.Run(name, func(t *testing.T) {
			start := time.Now()
			res := host.RunProbe(context.Background(), plugin("mock", fmt.Sprintf(`
    try { %s({ method: "GET", url: %q, timeoutMs: 30000 }) } catch (e) { return { lines: [] } }`, call, srv.URL)), 300*time.Millisecond)

			requireKind(t, res, KindTimeout)
			assert.Less(t, time.Since(start), time.Second)
		})
	}
}

func TestUncaughtPendingRequestIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	host, _ := newHost(t)
	for name, call := range map[string]string{
		"sync":  "ctx.host.http.request",
		"async": "return ctx.host.http.requestAsync",
	} {
		t.Run(name, func(t *testing.T) {
			desc := plugin("mock", fmt.Sprintf(`
    %s({ method: "GET", url: %q, timeoutMs: 30000 })
    return { lines: [] }`, call, srv.URL))
			for i := 0; i < 10; i++ {
				res := host.RunProbe(context.Background(), desc, 150*time.Millisecond)
				requireKind(t, res, KindTimeout)
			}
		})
	}
}

func TestCapabilityCallsKeepIssueOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		arrived []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrived = append(arrived, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	host, _ := newHost(t)
	desc := plugin("mock", fmt.Sprintf(`
    var base = %q
    var pending = []
    for (var i = 0; i < 8; i++) {
      pending.push(ctx.host.http.requestAsync({ method: "GET", url: base + "/" + i }))
    }
    var last = ctx.host.http.request({ method: "GET", url: base + "/sync" })
    return Promise.all(pending).then(function (rs) {
      return { lines: rs.map(function (r) { return text("async", r.bodyText) }).concat([text("sync", last.bodyText)]) }
    })`, srv.URL))

	for run := 0; run < 5; run++ {
		mu.Lock()
		arrived = nil
		mu.Unlock()

		res := host.RunProbe(context.Background(), desc, 5*time.Second)
		require.True(t, res.OK(), "err: %v", res.Err)
		require.Len(t, res.Output.Lines, 9)
		assert.Equal(t, "/3", res.Output.Lines[3].(output.Text).Value)
		assert.Equal(t, "/sync", res.Output.Lines[8].(output.Text).Value)

		mu.Lock()
		assert.Equal(t, []string{"/0", "/1", "/2", "/3", "/4", "/5", "/6", "/7", "/sync"}, arrived)
		mu.Unlock()
	}
}

func TestThrowingGetterIsThrownError(t *testing.T) {
	host, _ := newHost(t)
	res := host.RunProbe(context.Background(), plugin("mock", `
    return { get lines() { throw new Error("getter exploded") } }`), time.Second)

	requireKind(t, res, KindThrownError)
	assert.Equal(t, "getter exploded", res.Err.Detail)
}

func TestConcurrentRunsAreIsolated(t *testing.T) {
	host, _ := newHost(t)
	desc := plugin("mock", `
    globalThis.counter = (globalThis.counter || 0) + 1
    var seen = ctx.nowIso
    ctx.nowIso = "mutated"
    ctx.host.fs = null
    Object.prototype.polluted = "yes"
    return new Promise(function (resolve) {
      setTimeout(function () {
        resolve({ lines: [text("counter", String(globalThis.counter)), text("seen", seen)] })
      }, 10)
    })`)

	const runs = 12
	results := make([]RunResult, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = host.RunProbe(context.Background(), desc, 2*time.Second)
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		require.True(t, res.OK(), "err: %v", res.Err)
		assert.Equal(t, "1", res.Output.Lines[0].(output.Text).Value)
		assert.NotEqual(t, "mutated", res.Output.Lines[1].(output.Text).Value)
	}

	// A later run of a different plugin sees no pollution either.
	res := host.RunProbe(context.Background(), plugin("other", `
    return { lines: [text("polluted", String(({}).polluted)), text("fs", typeof ctx.host.fs.exists)] }`), time.Second)
	require.True(t, res.OK(), "err: %v", res.Err)
	assert.Equal(t, "undefined", res.Output.Lines[0].(output.Text).Value)
	assert.Equal(t, "function", res.Output.Lines[1].(output.Text).Value)
}

func TestRunErrorString(t *testing.T) {
	err := &RunError{Kind: KindUnknownLineType, Detail: "nope"}
	assert.Equal(t, "unknown_line_type: nope", err.Error())
	assert.True(t, KindMissingLines.Validation())
	assert.False(t, KindTimeout.Validation())
}
