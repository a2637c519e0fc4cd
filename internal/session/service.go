// Package session exposes the reactive engine over HTTP: session
// lifecycle, trigger submission, render payload retrieval, and the
// websocket stream.
package session

import (
	"github.com/gin-gonic/gin"

	"github.com/lumen-lab/project-lumen/internal/engine"
	"github.com/lumen-lab/project-lumen/internal/render"
)

// Service wires the session manager and the websocket hub into gin
// route handlers.
type Service struct {
	sessions         *engine.Manager
	hub              *render.Hub
	maxBodySizeBytes int
}

// NewService creates the HTTP service. maxBodySizeMB bounds request
// bodies the same way across all endpoints.
func NewService(sessions *engine.Manager, hub *render.Hub, maxBodySizeMB int) *Service {
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1
	}
	return &Service{
		sessions:         sessions,
		hub:              hub,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes mounts the v1 session API on the router.
func (s *Service) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/v1")
	{
		v1.POST("/sessions", s.OpenSessionHandler)
		v1.DELETE("/sessions/:id", s.CloseSessionHandler)
		v1.POST("/sessions/:id/events", s.EventHandler)
		v1.GET("/sessions/:id/components", s.ComponentsHandler)
		v1.GET("/sessions/:id/stream", s.StreamHandler)
		v1.POST("/dashboards/:id/save", s.SaveDashboardHandler)
	}
}
