// Package server exposes the harvest pipeline over HTTP: trigger a scan,
// confirm or decline it, watch progress and download the archive.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aluiziolira/go-harvest-models/config"
	"github.com/aluiziolira/go-harvest-models/models"
	"github.com/aluiziolira/go-harvest-models/scraper"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	models.PipelineState
	Running     bool                `json:"running"`
	Strategy    string              `json:"strategy,omitempty"`
	Identifiers []models.Identifier `json:"identifiers,omitempty"`
	Archive     string              `json:"archive,omitempty"`
}

// NewRouter creates the gin engine. Metrics are mounted at /metrics when
// metrics is non-nil.
func NewRouter(cfg *config.Config, ctrl *Controller, metrics *scraper.Metrics) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "phase": ctrl.State().Phase})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	v1.POST("/scan", scan(ctrl))
	v1.GET("/status", status(ctrl))
	v1.POST("/confirm", answer(ctrl, true))
	v1.POST("/decline", answer(ctrl, false))
	v1.GET("/archive", archive(ctrl))

	return r
}

func scan(ctrl *Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ctrl.Start(); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, ErrRunActive) {
				code = http.StatusConflict
			}
			c.JSON(code, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "started"})
	}
}

func status(ctrl *Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := StatusResponse{
			PipelineState: ctrl.State(),
			Running:       ctrl.Running(),
		}
		if found := ctrl.Pending(); found != nil {
			resp.Strategy = found.Strategy
			resp.Identifiers = found.IDs
		}
		if result := ctrl.Result(); result != nil {
			resp.Archive = result.Filename
			if resp.Strategy == "" {
				resp.Strategy = result.Strategy
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

func answer(ctrl *Controller, ok bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ctrl.Answer(ok) {
			c.JSON(http.StatusConflict, gin.H{"error": "no scan is waiting for confirmation"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"confirmed": ok})
	}
}

func archive(ctrl *Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := ctrl.Result()
		if result == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no archive available"})
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		c.Data(http.StatusOK, "application/zip", result.Archive)
	}
}
