package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/probehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/probehost/internal/runtime/bridge"
	"github.com/GriffinCanCode/probehost/internal/runtime/isolate"
)

// Outcome classifies a settlement.
type Outcome int

const (
	OutcomeValue Outcome = iota
	OutcomeThrown
	OutcomeTimeout
	OutcomeLoadError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValue:
		return "value"
	case OutcomeThrown:
		return "thrown_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeLoadError:
		return "load_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Settlement is the single result of one run.
type Settlement struct {
	Outcome  Outcome
	Value    interface{} // exported result for OutcomeValue
	Message  string      // thrown/load message or timeout detail
	Duration time.Duration
}

// Supervisor runs probes under a deadline.
type Supervisor struct {
	manager *isolate.Manager
	logger  *logging.Logger
}

// New creates a Supervisor.
func New(manager *isolate.Manager, logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Supervisor{manager: manager, logger: logger}
}

// Run executes one probe and returns no later than timeout after the script
// starts, whatever the script does. Compiling and preparing the isolate are
// not timed. The isolate is disposed on every path.
func (s *Supervisor) Run(ctx context.Context, desc isolate.Descriptor, rc isolate.RunContext, timeout time.Duration, logger *logging.Logger) Settlement {
	start := time.Now()
	if logger == nil {
		logger = s.logger
	}

	settle := func(st Settlement) Settlement {
		if st.Outcome == OutcomeTimeout {
			st = timeoutSettlement(ctx, timeout)
		}
		st.Duration = time.Since(start)
		return st
	}

	iso, err := s.manager.Create(ctx, desc, rc, logger)
	if err != nil {
		return settle(classify(ctx, err))
	}
	defer iso.Dispose()

	runCtx, cancel := context.WithTimeout(iso.Context(), timeout)
	defer cancel()

	outcome := make(chan Settlement, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("probe execution panicked",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				outcome <- Settlement{Outcome: OutcomeThrown, Message: fmt.Sprintf("internal error: %v", r)}
			}
		}()
		outcome <- execute(runCtx, iso)
	}()

	select {
	case st := <-outcome:
		return settle(st)
	case <-runCtx.Done():
		// A result that raced the deadline still wins.
		select {
		case st := <-outcome:
			return settle(st)
		default:
		}
		return settle(Settlement{Outcome: OutcomeTimeout})
	}
}

func execute(ctx context.Context, iso *isolate.Isolate) Settlement {
	if err := iso.Load(ctx); err != nil {
		return classify(ctx, err)
	}

	v, err := iso.Invoke(ctx)
	if err != nil {
		return classify(ctx, err)
	}

	v, err = iso.Await(ctx, v)
	if err != nil {
		return classify(ctx, err)
	}

	out, err := iso.Export(ctx, v)
	if err != nil {
		return classify(ctx, err)
	}
	return Settlement{Outcome: OutcomeValue, Value: out}
}

func classify(ctx context.Context, err error) Settlement {
	var (
		loadErr   *isolate.LoadError
		thrownErr *isolate.ThrownError
	)
	switch {
	case errors.As(err, &loadErr):
		return Settlement{Outcome: OutcomeLoadError, Message: loadErr.Message}
	case errors.As(err, &thrownErr):
		// A capability that failed because the run ended is the deadline,
		// not the script.
		if ctx.Err() != nil && endedByRun(thrownErr.Cause) {
			return Settlement{Outcome: OutcomeTimeout}
		}
		return Settlement{Outcome: OutcomeThrown, Message: thrownErr.Message}
	case errors.Is(err, isolate.ErrInterrupted),
		errors.Is(err, isolate.ErrDisposed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return Settlement{Outcome: OutcomeTimeout}
	default:
		return Settlement{Outcome: OutcomeThrown, Message: err.Error()}
	}
}

func endedByRun(cause error) bool {
	return cause != nil && (errors.Is(cause, context.DeadlineExceeded) ||
		errors.Is(cause, context.Canceled) ||
		errors.Is(cause, bridge.ErrClosed))
}

func timeoutSettlement(parent context.Context, timeout time.Duration) Settlement {
	if errors.Is(parent.Err(), context.Canceled) {
		return Settlement{Outcome: OutcomeTimeout, Message: "run cancelled"}
	}
	return Settlement{Outcome: OutcomeTimeout, Message: fmt.Sprintf("probe did not settle within %s", timeout)}
}
