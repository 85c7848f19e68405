package batch

import (
	"github.com/GriffinCanCode/probehost/internal/runtime"
	"github.com/GriffinCanCode/probehost/internal/runtime/output"
)

// EventType names a batch event.
type EventType string

const (
	EventResult   EventType = "probe:result"
	EventComplete EventType = "probe:batch-complete"
)

// PluginOutput is one plugin's rendered result.
type PluginOutput struct {
	ProviderID  string        `json:"providerId"`
	DisplayName string        `json:"displayName"`
	Lines       []output.Line `json:"lines"`

	// Failure is the kind of a failed run. It stays off the wire, where a
	// failure is only the error badge.
	Failure runtime.Kind `json:"-"`
}

// Failed reports whether out renders a failed run.
func (o PluginOutput) Failed() bool {
	return o.Failure != ""
}

// Event is emitted once per finished run and once when the batch is done.
type Event struct {
	Type    EventType     `json:"type"`
	BatchID string        `json:"batchId"`
	Output  *PluginOutput `json:"output,omitempty"`
}

// Started describes an accepted batch.
type Started struct {
	BatchID   string   `json:"batchId"`
	PluginIDs []string `json:"pluginIds"`
}

// Emitter receives batch events. Emit is called from run goroutines and
// must be safe for concurrent use.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Emitters fans an event out to each emitter in turn.
type Emitters []Emitter

func (es Emitters) Emit(e Event) {
	for _, em := range es {
		if em != nil {
			em.Emit(e)
		}
	}
}
