package bridge

import (
	"net/http"
	"time"

	"github.com/GriffinCanCode/probehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/monitoring"
)

// Options configures the capabilities of a run.
type Options struct {
	HTTP          HTTPOptions
	Transport     http.RoundTripper
	SQLiteTimeout time.Duration

	// Keychain overrides the OS keychain, mainly for tests.
	Keychain Keychain
}

// Capabilities is the enumerable host surface handed to one run.
type Capabilities struct {
	FS       Filesystem
	HTTP     HTTPClient
	SQLite   Store
	Keychain Keychain
	Log      LogSink
}

// Bridge owns one run's capabilities and their executor.
type Bridge struct {
	Capabilities

	Scope *Scope
	exec  *Executor
}

// New builds a bridge bound to scope. Close must be called when the run ends.
func New(scope *Scope, opts Options, logger *logging.Logger, metrics *monitoring.Metrics) *Bridge {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.HTTP.DefaultTimeout == 0 {
		opts.HTTP = DefaultHTTPOptions()
	}
	if opts.SQLiteTimeout == 0 {
		opts.SQLiteTimeout = 5 * time.Second
	}

	exec := NewExecutor(logger)
	inv := invoker{exec: exec, metrics: metrics}

	keychain := opts.Keychain
	if keychain == nil {
		keychain = &OSKeychain{inv: inv}
	}

	return &Bridge{
		Capabilities: Capabilities{
			FS:       &FS{scope: scope, inv: inv},
			HTTP:     newHTTP(opts.Transport, opts.HTTP, inv),
			SQLite:   &SQLite{baseDir: scope.PluginDataDir, busyTimeout: opts.SQLiteTimeout, inv: inv},
			Keychain: keychain,
			Log:      &Log{logger: logger},
		},
		Scope: scope,
		exec:  exec,
	}
}

// Close stops the executor. Queued calls fail with ErrClosed; a call in
// flight finishes on its own once the run context is cancelled.
func (b *Bridge) Close() {
	b.exec.Close()
}
