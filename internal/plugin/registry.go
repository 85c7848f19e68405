package plugin

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/probehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/monitoring"
)

// Registry holds the plugins discovered from the configured roots.
type Registry struct {
	mu      sync.RWMutex
	plugins []*Plugin
	byID    map[string]*Plugin

	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logging.Logger, metrics *monitoring.Metrics) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		byID:    make(map[string]*Plugin),
		logger:  logger,
		metrics: metrics,
	}
}

// Load rediscovers plugins from roots, bundled roots first and the user
// root last, and replaces the registry contents. Invalid plugins are
// logged and skipped.
func (r *Registry) Load(ctx context.Context, roots, ignore []string) error {
	found, errs := Discover(ctx, roots, ignore)
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, err := range errs {
		r.reject(err)
	}

	plugins, byID := r.resolve(found)

	r.mu.Lock()
	r.plugins = plugins
	r.byID = byID
	r.mu.Unlock()

	r.metrics.SetPluginsLoaded(len(plugins))
	r.logger.Info("plugins loaded",
		zap.Int("count", len(plugins)),
		zap.Int("rejected", len(errs)),
		zap.Strings("roots", roots))
	return nil
}

// resolve drops duplicate ids. The higher version wins; on a tie the later
// root wins. The survivor keeps the position of the first occurrence.
func (r *Registry) resolve(found []*Plugin) ([]*Plugin, map[string]*Plugin) {
	plugins := make([]*Plugin, 0, len(found))
	index := make(map[string]int, len(found))

	for _, p := range found {
		i, dup := index[p.ID()]
		if !dup {
			index[p.ID()] = len(plugins)
			plugins = append(plugins, p)
			continue
		}

		current := plugins[i]
		cmp := p.Manifest.SemVer().Compare(current.Manifest.SemVer())
		winner, loser := current, p
		if cmp > 0 || (cmp == 0 && p.Root > current.Root) {
			winner, loser = p, current
			plugins[i] = p
		}
		r.metrics.RecordManifestReject(string(RejectDuplicate))
		r.logger.Warn("duplicate plugin id",
			zap.String("plugin", p.ID()),
			zap.String("kept", winner.Dir),
			zap.String("kept_version", winner.Manifest.Version),
			zap.String("dropped", loser.Dir))
	}

	byID := make(map[string]*Plugin, len(plugins))
	for _, p := range plugins {
		byID[p.ID()] = p
	}
	return plugins, byID
}

func (r *Registry) reject(err error) {
	reason := RejectParse
	var me *ManifestError
	if errors.As(err, &me) {
		reason = me.Reason
	}
	r.metrics.RecordManifestReject(string(reason))
	r.logger.Warn("plugin skipped", zap.String("reason", string(reason)), zap.Error(err))
}

// List returns plugins in discovery order.
func (r *Registry) List() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Get looks up a plugin by id.
func (r *Registry) Get(id string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// IDs returns plugin ids in discovery order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.plugins))
	for i, p := range r.plugins {
		ids[i] = p.ID()
	}
	return ids
}

// Metas returns the list view of every plugin.
func (r *Registry) Metas() []Meta {
	plugins := r.List()
	metas := make([]Meta, len(plugins))
	for i, p := range plugins {
		metas[i] = p.Meta()
	}
	return metas
}

// Add registers p directly. Used for plugins supplied in-process.
func (r *Registry) Add(p *Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[p.ID()]; exists {
		for i, existing := range r.plugins {
			if existing.ID() == p.ID() {
				r.plugins[i] = p
			}
		}
	} else {
		r.plugins = append(r.plugins, p)
	}
	r.byID[p.ID()] = p
}
