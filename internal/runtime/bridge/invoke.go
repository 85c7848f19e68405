package bridge

import (
	"context"

	"github.com/GriffinCanCode/probehost/internal/infrastructure/monitoring"
)

// invoker funnels a capability call through the run's executor and records it.
type invoker struct {
	exec    *Executor
	metrics *monitoring.Metrics
}

func (i invoker) do(ctx context.Context, capability, op string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	return i.start(ctx, capability, op, fn)()
}

// start queues fn before returning, so calls reach the executor in the
// order they were issued. The returned func waits for the result.
func (i invoker) start(ctx context.Context, capability, op string, fn func(ctx context.Context) (interface{}, error)) func() (interface{}, error) {
	timer := monitoring.NewTimer(i.metrics, capability, op)
	pending := i.exec.submit(ctx, fn)
	return func() (interface{}, error) {
		v, err := await(ctx, pending)
		err = capErr(capability, op, err)
		timer.Stop(err)
		return v, err
	}
}
