// Package runtime is the plugin host runtime: it loads a probe script into
// a fresh isolate, supervises it under a deadline and turns whatever it
// produces into validated output or a classified failure.
//
// Flow: Host.RunProbe -> isolate.Manager (context) -> supervisor (run and
// race the deadline) -> output.Validate. Capability calls made by the
// script go through the run's private bridge.
package runtime
