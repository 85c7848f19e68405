// Package batch runs a selection of plugins concurrently and reports each
// result as it lands.
package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/probehost/internal/history"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/probehost/internal/plugin"
	"github.com/GriffinCanCode/probehost/internal/runtime"
	"github.com/GriffinCanCode/probehost/internal/runtime/output"
	"github.com/GriffinCanCode/probehost/internal/settings"
	"github.com/GriffinCanCode/probehost/internal/shared/id"
)

// ErrorLabel is the label of the badge a failed run is rendered as.
const ErrorLabel = "Error"

// Runner executes a single probe.
type Runner interface {
	RunProbe(ctx context.Context, desc runtime.Descriptor, timeout time.Duration) runtime.RunResult
}

// SettingsSource provides the user's plugin settings.
type SettingsSource interface {
	Load() (settings.PluginSettings, error)
}

// Options configures a Coordinator.
type Options struct {
	MaxConcurrency int
	Timeout        time.Duration
}

// Coordinator starts batches. Safe for concurrent use.
type Coordinator struct {
	runner   Runner
	registry *plugin.Registry
	settings SettingsSource
	history  *history.History
	emitter  Emitter
	opts     Options

	logger  *logging.Logger
	metrics *monitoring.Metrics

	wg sync.WaitGroup
}

// New creates a Coordinator. settingsSource and hist may be nil.
func New(runner Runner, registry *plugin.Registry, settingsSource SettingsSource, hist *history.History,
	emitter Emitter, opts Options, logger *logging.Logger, metrics *monitoring.Metrics) *Coordinator {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if emitter == nil {
		emitter = Emitters(nil)
	}
	return &Coordinator{
		runner:   runner,
		registry: registry,
		settings: settingsSource,
		history:  hist,
		emitter:  emitter,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}
}

// Start selects plugins and runs them in the background. It returns as
// soon as the selection is known. ctx bounds the runs, not the call.
func (c *Coordinator) Start(ctx context.Context, batchID string, pluginIDs []string) Started {
	bid := id.BatchIDOrNew(batchID)
	selected := c.selectPlugins(pluginIDs)
	started := startedFor(bid, selected)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.execute(ctx, bid, selected, nil)
	}()
	return started
}

// Run is Start but waits for the batch and also returns the outputs in
// selection order.
func (c *Coordinator) Run(ctx context.Context, batchID string, pluginIDs []string) (Started, []PluginOutput) {
	bid := id.BatchIDOrNew(batchID)
	selected := c.selectPlugins(pluginIDs)
	outputs := make([]PluginOutput, len(selected))
	c.execute(ctx, bid, selected, outputs)
	return startedFor(bid, selected), outputs
}

// Wait blocks until every batch started with Start has completed.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Selection returns the plugins a batch with pluginIDs would run. nil
// means every enabled plugin in settings order; explicit ids keep their
// first occurrence and unknown ids are dropped.
func (c *Coordinator) Selection(pluginIDs []string) []string {
	return startedFor("", c.selectPlugins(pluginIDs)).PluginIDs
}

func (c *Coordinator) selectPlugins(pluginIDs []string) []*plugin.Plugin {
	if pluginIDs == nil {
		pluginIDs = c.enabledIDs()
	}

	selected := make([]*plugin.Plugin, 0, len(pluginIDs))
	seen := make(map[string]struct{}, len(pluginIDs))
	for _, pid := range pluginIDs {
		if _, dup := seen[pid]; dup {
			continue
		}
		seen[pid] = struct{}{}
		if p, ok := c.registry.Get(pid); ok {
			selected = append(selected, p)
		}
	}
	return selected
}

func (c *Coordinator) enabledIDs() []string {
	known := c.registry.IDs()
	if c.settings == nil {
		return known
	}
	s, err := c.settings.Load()
	if err != nil {
		c.logger.Warn("failed to load plugin settings, running all plugins", zap.Error(err))
		return known
	}
	return settings.EnabledIDs(settings.Normalize(s, known))
}

func (c *Coordinator) execute(ctx context.Context, bid id.BatchID, selected []*plugin.Plugin, outputs []PluginOutput) {
	start := time.Now()
	c.metrics.RecordBatch(len(selected))
	c.logger.Info("probe batch starting",
		zap.String("batch_id", bid.String()),
		zap.Strings("plugins", startedFor(bid, selected).PluginIDs))

	g := new(errgroup.Group)
	g.SetLimit(c.opts.MaxConcurrency)
	for i, p := range selected {
		i, p := i, p
		g.Go(func() error {
			out := c.runOne(ctx, p)
			if outputs != nil {
				outputs[i] = out
			}
			c.emitter.Emit(Event{Type: EventResult, BatchID: bid.String(), Output: &out})
			return nil
		})
	}
	_ = g.Wait()

	c.logger.Info("probe batch complete",
		zap.String("batch_id", bid.String()),
		zap.Int("plugins", len(selected)),
		zap.Duration("duration", time.Since(start)))
	c.emitter.Emit(Event{Type: EventComplete, BatchID: bid.String()})
}

func (c *Coordinator) runOne(ctx context.Context, p *plugin.Plugin) (out PluginOutput) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("probe panicked",
				zap.String("plugin", p.ID()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			out = errorOutput(p, runtime.KindThrownError)
		}
	}()

	res := c.runner.RunProbe(ctx, p.Descriptor(), c.opts.Timeout)
	if c.history != nil {
		c.history.Observe(res)
	}
	return Render(p, res)
}

// Render turns a run result into the plugin's output. A failed run becomes
// a single error badge carrying the stable diagnostic for its kind.
func Render(p *plugin.Plugin, res runtime.RunResult) PluginOutput {
	if !res.OK() {
		kind := runtime.KindThrownError
		if res.Err != nil {
			kind = res.Err.Kind
		}
		return errorOutput(p, kind)
	}
	lines := res.Output.Lines
	if lines == nil {
		lines = []output.Line{}
	}
	return PluginOutput{ProviderID: p.ID(), DisplayName: p.Name(), Lines: lines}
}

func errorOutput(p *plugin.Plugin, kind runtime.Kind) PluginOutput {
	return PluginOutput{
		ProviderID:  p.ID(),
		DisplayName: p.Name(),
		Lines:       []output.Line{output.Badge{Label: ErrorLabel, Text: kind.Diagnostic()}},
		Failure:     kind,
	}
}

func startedFor(bid id.BatchID, selected []*plugin.Plugin) Started {
	ids := make([]string, len(selected))
	for i, p := range selected {
		ids[i] = p.ID()
	}
	return Started{BatchID: bid.String(), PluginIDs: ids}
}

func (s Started) String() string {
	return fmt.Sprintf("batch %s (%d plugins)", s.BatchID, len(s.PluginIDs))
}
