package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/logger"
	"github.com/flowforge/core/internal/orchestrator"
	"github.com/flowforge/core/internal/storage"
)

// Server wires the inbound HTTP routes onto a gin.Engine. Grounded on the
// teacher's cmd/server wiring of internal/infrastructure/api/rest handler
// structs, collapsed to one struct since every route here drives the same
// collaborator: the orchestrator.
type Server struct {
	orch       *orchestrator.Orchestrator
	executions storage.ExecutionRepository
	log        *logger.Logger
	jwtSecret  string
}

// New builds a Server bound to orch for dispatch/control and executions
// for the read-only status endpoint. jwtSecret, when non-empty, requires
// every route this package mounts to carry a valid bearer token.
func New(orch *orchestrator.Orchestrator, executions storage.ExecutionRepository, log *logger.Logger, jwtSecret string) *Server {
	return &Server{orch: orch, executions: executions, log: log, jwtSecret: jwtSecret}
}

// Register mounts every route this package owns onto engine.
func (s *Server) Register(engine *gin.Engine) {
	v1 := engine.Group("/api/v1")
	v1.Use(BearerAuth(s.jwtSecret))
	v1.POST("/triggers/:event_type", s.handleTrigger)
	v1.POST("/webhooks/:event_type", s.handleTrigger)
	v1.POST("/executions", s.handleManualStart)
	v1.GET("/executions/:execution_id", s.handleGetExecution)
	v1.POST("/executions/:execution_id/cancel", s.handleCancel)
	v1.POST("/executions/:execution_id/resume", s.handleResume)
}

// handleTrigger implements spec.md §6.3's webhook ingress: any inbound
// event is resolved against internal/trigger and, if matched, starts a
// new execution. A nil execution with no error means TRIGGER_NOT_MATCHED,
// which spec.md §7 treats as a no-op rather than a failure — reported as
// 202 with matched:false rather than an error status.
func (s *Server) handleTrigger(c *gin.Context) {
	eventType := c.Param("event_type")
	payload := map[string]interface{}{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			respondError(c, &domain.ValidationError{Field: "body", Message: err.Error()})
			return
		}
	}

	exec, err := s.orch.Dispatch(c.Request.Context(), eventType, payload)
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "dispatch trigger failed", "event_type", eventType, "error", err)
		respondError(c, err)
		return
	}
	if exec == nil {
		c.JSON(http.StatusAccepted, gin.H{"matched": false})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"matched": true, "execution_id": exec.ExecutionID})
}

type manualStartRequest struct {
	WorkflowID    string                 `json:"workflow_id" binding:"required"`
	TriggerNodeID string                 `json:"trigger_node_id"`
	Input         map[string]interface{} `json:"input"`
}

// handleManualStart implements the manual-trigger path spec.md §4.2 lists
// alongside webhook/scheduled/event triggers: a caller names a workflow
// (and optionally a specific trigger node) directly, bypassing trigger
// resolution.
func (s *Server) handleManualStart(c *gin.Context) {
	var req manualStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &domain.ValidationError{Field: "body", Message: err.Error()})
		return
	}
	payload, err := json.Marshal(req.Input)
	if err != nil {
		respondError(c, &domain.ValidationError{Field: "input", Message: err.Error()})
		return
	}
	exec, err := s.orch.CreateAndStartExecution(c.Request.Context(), req.WorkflowID, req.TriggerNodeID, payload, "", "", "")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"execution_id": exec.ExecutionID, "status": exec.Status})
}

// handleGetExecution is the status-polling counterpart to the observer
// WebSocket: a read of the durable Execution row, independent of whether
// any client is subscribed for live updates.
func (s *Server) handleGetExecution(c *gin.Context) {
	exec, err := s.executions.FindByID(c.Request.Context(), c.Param("execution_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

func (s *Server) handleCancel(c *gin.Context) {
	executionID := c.Param("execution_id")
	if err := s.orch.CancelExecution(c.Request.Context(), executionID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"execution_id": executionID, "status": "cancelled"})
}

type resumeRequest struct {
	Input interface{} `json:"input"`
}

// handleResume implements the `_resume_input` half of spec.md §4.7: a
// human answered a pending human_confirmation interrupt.
func (s *Server) handleResume(c *gin.Context) {
	executionID := c.Param("execution_id")
	var req resumeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, &domain.ValidationError{Field: "body", Message: err.Error()})
			return
		}
	}
	if err := s.orch.ResumeExecution(c.Request.Context(), executionID, req.Input); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"execution_id": executionID, "status": "running"})
}
