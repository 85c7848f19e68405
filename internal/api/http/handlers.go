package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/probehost/internal/batch"
	"github.com/GriffinCanCode/probehost/internal/history"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/probehost/internal/plugin"
	"github.com/GriffinCanCode/probehost/internal/settings"
	"github.com/GriffinCanCode/probehost/internal/shared/paths"
)

// BatchStarter starts probe batches in the background.
type BatchStarter interface {
	Start(ctx context.Context, batchID string, pluginIDs []string) batch.Started
}

// Deps are the collaborators of the REST handlers.
type Deps struct {
	Registry *plugin.Registry
	Batches  BatchStarter
	Settings *settings.Store
	History  *history.History
	Metrics  *monitoring.Metrics
	Logger   *logging.Logger
	Version  string

	// BatchContext bounds batches started over HTTP. Request contexts end
	// with the response, so batches cannot use them.
	BatchContext context.Context
}

// Handlers contains all HTTP handlers
type Handlers struct {
	deps Deps
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.BatchContext == nil {
		deps.BatchContext = context.Background()
	}
	return &Handlers{deps: deps}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/healthz", h.Health)
	r.GET("/api/plugins", h.ListPlugins)
	r.GET("/api/plugins/:id/stats", h.PluginStats)
	r.POST("/api/batches", h.StartBatch)
	r.GET("/api/settings", h.GetSettings)
	r.PUT("/api/settings", h.PutSettings)
	r.GET("/api/metrics", h.MetricsSnapshot)
}

// Health handles health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": h.deps.Version,
		"plugins": len(h.deps.Registry.IDs()),
	})
}

// ListPlugins lists every registered plugin in discovery order
func (h *Handlers) ListPlugins(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Registry.Metas())
}

// PluginStats returns duration statistics of a plugin's recent runs
func (h *Handlers) PluginStats(c *gin.Context) {
	pluginID := c.Param("id")
	if err := paths.ValidatePluginID(pluginID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := h.deps.Registry.Get(pluginID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "plugin not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":  h.deps.History.Stats(pluginID),
		"recent": h.deps.History.Recent(pluginID),
	})
}

// StartBatchRequest is the body of POST /api/batches. Omitting pluginIds
// runs every enabled plugin.
type StartBatchRequest struct {
	BatchID   string   `json:"batchId"`
	PluginIDs []string `json:"pluginIds"`
}

// StartBatch starts a probe batch. Results stream over /ws.
func (h *Handlers) StartBatch(c *gin.Context) {
	var req StartBatchRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	started := h.deps.Batches.Start(h.deps.BatchContext, req.BatchID, req.PluginIDs)
	c.JSON(http.StatusAccepted, started)
}

// GetSettings returns the plugin settings normalized against the registry
func (h *Handlers) GetSettings(c *gin.Context) {
	s, err := h.deps.Settings.Load()
	if err != nil {
		h.deps.Logger.Error("failed to load settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, settings.Normalize(s, h.deps.Registry.IDs()))
}

// PutSettings replaces the plugin settings
func (h *Handlers) PutSettings(c *gin.Context) {
	var req settings.PluginSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	normalized := settings.Normalize(req, h.deps.Registry.IDs())
	if err := h.deps.Settings.Save(normalized); err != nil {
		h.deps.Logger.Error("failed to save settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
		return
	}
	c.JSON(http.StatusOK, normalized)
}

// MetricsSnapshot returns the JSON view of the run metrics
func (h *Handlers) MetricsSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Metrics.GetSnapshot())
}
