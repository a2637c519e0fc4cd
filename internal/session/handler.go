package session

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/lumen-lab/project-lumen/internal/api/v1"
	httperr "github.com/lumen-lab/project-lumen/internal/core/errors"
	"github.com/lumen-lab/project-lumen/internal/dashboard"
	"github.com/lumen-lab/project-lumen/internal/engine"
	"github.com/lumen-lab/project-lumen/internal/resolve"
)

const (
	msgReadBodyFailed  = "Failed to read request body"
	msgInvalidJSON     = "Invalid JSON body"
	msgOpenFailed      = "Failed to open session"
	msgSaveFailed      = "Failed to save dashboard"
	msgSessionMismatch = "Session does not belong to this dashboard"
)

// handlerError carries the structured HTTP error shape from a helper
// back to the route handler. Helpers return this instead of writing to
// gin.Context directly, keeping them decoupled from HTTP.
type handlerError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *handlerError) Error() string {
	return e.message
}

// OpenSessionHandler handles POST /v1/sessions.
func (s *Service) OpenSessionHandler(c *gin.Context) {
	var req struct {
		DashboardID string `json:"dashboard_id"`
	}
	if herr := s.bindJSON(c, &req); herr != nil {
		writeError(c, herr)
		return
	}
	if req.DashboardID == "" {
		writeError(c, &handlerError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "dashboard_id is required",
		})
		return
	}

	sess, result, err := s.sessions.Open(c.Request.Context(), req.DashboardID)
	if err != nil {
		if errors.Is(err, dashboard.ErrDashboardNotFound) {
			writeError(c, &handlerError{
				statusCode: http.StatusNotFound,
				errorType:  httperr.HttpDashboardNotFound,
				message:    err.Error(),
			})
			return
		}
		slog.Error("Failed to open session", "dashboard_id", req.DashboardID, "error", err)
		writeError(c, &handlerError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgOpenFailed,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id":   sess.ID,
		"dashboard_id": sess.DashboardID,
		"version":      result.Version,
		"components":   sess.Components(),
	})
}

// CloseSessionHandler handles DELETE /v1/sessions/:id.
func (s *Service) CloseSessionHandler(c *gin.Context) {
	sessionID := c.Param("id")
	if _, herr := s.lookupSession(sessionID); herr != nil {
		writeError(c, herr)
		return
	}
	s.sessions.Close(sessionID)
	s.hub.CloseSession(sessionID)
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

// EventHandler handles POST /v1/sessions/:id/events.
func (s *Service) EventHandler(c *gin.Context) {
	sess, herr := s.lookupSession(c.Param("id"))
	if herr != nil {
		writeError(c, herr)
		return
	}

	var evt v1.TriggerEvent
	if herr := s.bindJSON(c, &evt); herr != nil {
		writeError(c, herr)
		return
	}

	slog.Info("Received Trigger",
		"session_id", sess.ID,
		"event_type", evt.Type,
		"component_id", evt.ComponentID)

	result, err := sess.HandleEvent(c.Request.Context(), &evt)
	if err != nil {
		writeError(c, classifyEngineError(err))
		return
	}

	c.JSON(http.StatusOK, result)
}

// ComponentsHandler handles GET /v1/sessions/:id/components.
func (s *Service) ComponentsHandler(c *gin.Context) {
	sess, herr := s.lookupSession(c.Param("id"))
	if herr != nil {
		writeError(c, herr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sess.ID,
		"version":    sess.Version(),
		"components": sess.Components(),
	})
}

// StreamHandler handles GET /v1/sessions/:id/stream: a websocket
// subscription for render payload pushes.
func (s *Service) StreamHandler(c *gin.Context) {
	sess, herr := s.lookupSession(c.Param("id"))
	if herr != nil {
		writeError(c, herr)
		return
	}
	s.hub.Serve(c.Writer, c.Request, sess.ID)
}

// SaveDashboardHandler handles POST /v1/dashboards/:id/save. Only the
// definition persists; live filter values never do.
func (s *Service) SaveDashboardHandler(c *gin.Context) {
	dashboardID := c.Param("id")

	var req struct {
		SessionID string `json:"session_id"`
	}
	if herr := s.bindJSON(c, &req); herr != nil {
		writeError(c, herr)
		return
	}

	sess, herr := s.lookupSession(req.SessionID)
	if herr != nil {
		writeError(c, herr)
		return
	}
	if sess.DashboardID != dashboardID {
		writeError(c, &handlerError{
			statusCode: http.StatusConflict,
			errorType:  httperr.HttpDashboardNotFound,
			message:    msgSessionMismatch,
		})
		return
	}

	if err := s.sessions.Save(c.Request.Context(), sess.ID); err != nil {
		slog.Error("Failed to save dashboard", "dashboard_id", dashboardID, "session_id", sess.ID, "error", err)
		writeError(c, &handlerError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgSaveFailed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// bindJSON reads a size-limited request body and binds it as JSON.
func (s *Service) bindJSON(c *gin.Context, out interface{}) *handlerError {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1)

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return &handlerError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}
	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return &handlerError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	if err := c.ShouldBindJSON(out); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return &handlerError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}
	return nil
}

func (s *Service) lookupSession(sessionID string) (*engine.Session, *handlerError) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, &handlerError{
			statusCode: http.StatusNotFound,
			errorType:  httperr.HttpSessionNotFound,
			message:    err.Error(),
		}
	}
	return sess, nil
}

// classifyEngineError maps cascade errors onto the HTTP error taxonomy.
func classifyEngineError(err error) *handlerError {
	var bindingErr *dashboard.BindingError
	switch {
	case errors.As(err, &bindingErr):
		return &handlerError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpBindingError,
			message:    err.Error(),
			details: map[string]interface{}{
				"component_id": bindingErr.ComponentID,
				"dataset_id":   bindingErr.DatasetID,
			},
		}
	case errors.Is(err, dashboard.ErrNotFound):
		return &handlerError{
			statusCode: http.StatusNotFound,
			errorType:  httperr.HttpComponentNotFound,
			message:    err.Error(),
		}
	case errors.Is(err, resolve.ErrDatasetNotFound):
		return &handlerError{
			statusCode: http.StatusNotFound,
			errorType:  httperr.HttpDatasetNotFound,
			message:    err.Error(),
		}
	}

	var remoteErr *resolve.RemoteError
	if errors.As(err, &remoteErr) {
		return &handlerError{
			statusCode: http.StatusBadGateway,
			errorType:  httperr.HttpDataLayerError,
			message:    err.Error(),
			details:    map[string]interface{}{"dataset_id": remoteErr.DatasetID},
		}
	}

	return &handlerError{
		statusCode: http.StatusBadRequest,
		errorType:  httperr.HttpInvalidEventError,
		message:    err.Error(),
	}
}

// writeError serializes a handlerError as the JSON HTTP response.
func writeError(c *gin.Context, err *handlerError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
