package runtime

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/probehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/probehost/internal/runtime/bridge"
	"github.com/GriffinCanCode/probehost/internal/runtime/isolate"
	"github.com/GriffinCanCode/probehost/internal/runtime/output"
	"github.com/GriffinCanCode/probehost/internal/runtime/supervisor"
	"github.com/GriffinCanCode/probehost/internal/shared/id"
	"github.com/GriffinCanCode/probehost/internal/shared/paths"
)

// Descriptor is the plugin identity and script a run executes.
type Descriptor = isolate.Descriptor

// Options configures a Host.
type Options struct {
	Layout           paths.Layout
	Version          string
	DefaultTimeout   time.Duration
	MaxCallStackSize int
	Bridge           bridge.Options
}

// RunResult is either Output or Err.
type RunResult struct {
	PluginID  string
	RunID     id.RunID
	StartedAt time.Time
	Duration  time.Duration
	Output    *output.Output
	Err       *RunError
}

// OK reports whether the run produced validated output.
func (r RunResult) OK() bool {
	return r.Err == nil && r.Output != nil
}

// Outcome is "ok" or the failure kind.
func (r RunResult) Outcome() string {
	if r.Err != nil {
		return string(r.Err.Kind)
	}
	return "ok"
}

// Host runs probes. Safe for concurrent use; runs share nothing but the
// HTTP connection pool.
type Host struct {
	opts       Options
	manager    *isolate.Manager
	supervisor *supervisor.Supervisor
	logger     *logging.Logger
	metrics    *monitoring.Metrics
	now        func() time.Time
}

// NewHost creates a Host.
func NewHost(opts Options, logger *logging.Logger, metrics *monitoring.Metrics) *Host {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 10 * time.Second
	}
	manager := isolate.NewManager(isolate.Options{
		Layout:           opts.Layout,
		Version:          opts.Version,
		MaxCallStackSize: opts.MaxCallStackSize,
		Bridge:           opts.Bridge,
	}, logger, metrics)

	return &Host{
		opts:       opts,
		manager:    manager,
		supervisor: supervisor.New(manager, logger),
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// DefaultTimeout is used when RunProbe gets a non-positive timeout.
func (h *Host) DefaultTimeout() time.Duration {
	return h.opts.DefaultTimeout
}

// RunProbe runs desc once and returns within timeout.
func (h *Host) RunProbe(ctx context.Context, desc Descriptor, timeout time.Duration) RunResult {
	if timeout <= 0 {
		timeout = h.opts.DefaultTimeout
	}
	runID := id.NewRunID()
	started := h.now()
	log := h.logger.ForRun(desc.ID, runID)

	res := RunResult{PluginID: desc.ID, RunID: runID, StartedAt: started}
	log.Debug("probe started", zap.Duration("timeout", timeout))

	rc, err := h.manager.NewRunContext(desc.ID, started)
	if err != nil {
		res.Err = &RunError{Kind: KindLoadError, Detail: err.Error()}
		return h.finish(log, res, time.Since(started))
	}

	st := h.supervisor.Run(ctx, desc, rc, timeout, log)
	switch st.Outcome {
	case supervisor.OutcomeValue:
		out, verr := output.Validate(st.Value)
		if verr != nil {
			var ve *output.ValidationError
			if errors.As(verr, &ve) {
				res.Err = fromValidation(ve)
			} else {
				res.Err = &RunError{Kind: KindNonObjectReturn, Detail: verr.Error()}
			}
		} else {
			res.Output = out
		}
	case supervisor.OutcomeThrown:
		res.Err = &RunError{Kind: KindThrownError, Detail: st.Message}
	case supervisor.OutcomeTimeout:
		res.Err = &RunError{Kind: KindTimeout, Detail: st.Message}
	default:
		res.Err = &RunError{Kind: KindLoadError, Detail: st.Message}
	}

	return h.finish(log, res, st.Duration)
}

func (h *Host) finish(log *logging.Logger, res RunResult, d time.Duration) RunResult {
	res.Duration = d
	h.metrics.RecordProbeRun(res.PluginID, res.Outcome(), d)

	if res.Err == nil {
		log.Info("probe finished",
			zap.String("kind", "ok"),
			zap.Int("lines", len(res.Output.Lines)),
			zap.Duration("duration", d))
		return res
	}

	fields := []zap.Field{
		zap.String("kind", string(res.Err.Kind)),
		zap.String("detail", res.Err.Detail),
		zap.Duration("duration", d),
	}
	if v := res.Err.Validation; v != nil && v.Reason == output.UnknownLineType {
		fields = append(fields, zap.Int("index", v.Index), zap.String("problem", v.Problem))
	}
	log.Warn("probe failed", fields...)
	return res
}
