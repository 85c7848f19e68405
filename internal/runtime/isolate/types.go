package isolate

import (
	"errors"
	"time"
)

// RegistrationKey is the global a plugin script assigns its registration to.
const RegistrationKey = "__openusage_plugin"

var (
	ErrDisposed    = errors.New("isolate disposed")
	ErrInterrupted = errors.New("isolate interrupted")
)

// Descriptor identifies the script to run.
type Descriptor struct {
	ID     string
	Script string
	// Filename appears in stack traces; defaults to "<id>/plugin.js".
	Filename string
}

// RunContext is the per-run data injected as ctx. Never reused.
type RunContext struct {
	Now           time.Time
	PluginDataDir string
	AppDataDir    string
	Version       string
	Platform      string
}

// LoadError means the script did not parse, threw while loading or did
// not register a usable probe.
type LoadError struct {
	Message string
}

func (e *LoadError) Error() string { return e.Message }

// ThrownError carries the string form of a thrown or rejected value.
// Cause is the host error behind a failed capability call, if any.
type ThrownError struct {
	Message string
	Cause   error
}

func (e *ThrownError) Error() string { return e.Message }

func (e *ThrownError) Unwrap() error { return e.Cause }
