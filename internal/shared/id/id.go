// Package id provides centralized ID generation for the probe host.
//
// Run IDs are prefixed ULIDs (run_01J...) and sort by start time. Batch IDs
// are UUIDv4 strings unless the caller supplies one.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// RunID identifies one probe run
type RunID string

// BatchID identifies a probe batch
type BatchID string

const (
	RunPrefix = "run"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewRunID generates a new run ID
func NewRunID() RunID {
	return RunID(Default().GenerateWithPrefix(RunPrefix))
}

// NewBatchID generates a new random batch ID
func NewBatchID() BatchID {
	return BatchID(uuid.NewString())
}

// BatchIDOrNew trims a caller-supplied batch ID and falls back to a fresh one
// when it is blank.
func BatchIDOrNew(candidate string) BatchID {
	if trimmed := strings.TrimSpace(candidate); trimmed != "" {
		return BatchID(trimmed)
	}
	return NewBatchID()
}

func (id RunID) String() string   { return string(id) }
func (id BatchID) String() string { return string(id) }

// Timestamp extracts the creation time from a run ID
func (id RunID) Timestamp() (time.Time, error) {
	raw := strings.TrimPrefix(string(id), RunPrefix+"_")
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
