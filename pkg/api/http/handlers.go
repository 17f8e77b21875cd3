package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/internal/application/stream"
	"github.com/metahuman-os/cortex/pkg/domain"
)

// StreamRunRequest is the body of a streamed run request.
type StreamRunRequest struct {
	// RunID lets the caller choose the id used for cancellation. A
	// generated id is reported in every frame when omitted.
	RunID string `json:"run_id"`
	// Message is the user's input, seeded into the run context.
	Message string `json:"message"`
	// Context adds further initial run context values.
	Context map[string]interface{} `json:"context"`
	// TimeoutSeconds overrides the configured run timeout.
	TimeoutSeconds int `json:"timeout_seconds"`
}

// CancelRunRequest is the body of a cancellation request.
type CancelRunRequest struct {
	Reason string `json:"reason"`
}

// ErrorResponse is the error envelope for non-streaming endpoints.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine code and a human message.
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"active_runs": len(s.streamer.ActiveRuns()),
	})
}

// handleStreamRun executes a workflow and streams frames over SSE until
// the run terminates. Errors after the stream has started are reported
// as frames, not HTTP status codes.
func (s *Server) handleStreamRun(c *gin.Context) {
	workflow := c.Param("workflow")

	var req StreamRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	input := make(map[string]interface{}, len(req.Context)+1)
	for k, v := range req.Context {
		input[k] = v
	}
	if req.Message != "" {
		input["message"] = req.Message
	}

	writer, err := newSSEWriter(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STREAMING_UNSUPPORTED",
				Message: err.Error(),
			},
		})
		return
	}

	runReq := stream.RunRequest{
		RunID:    req.RunID,
		Workflow: workflow,
		Input:    input,
	}
	if req.TimeoutSeconds > 0 {
		runReq.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	if err := s.streamer.Run(c.Request.Context(), runReq, writer); err != nil {
		// already reported to the client as a terminal frame
		s.logger.Debug("streamed run ended with error",
			zap.String("workflow", workflow),
			zap.Error(err))
	}
}

func (s *Server) handleCancelRun(c *gin.Context) {
	runID := c.Param("id")

	var req CancelRunRequest
	_ = c.ShouldBindJSON(&req)

	if !s.streamer.Cancel(runID, req.Reason) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "RUN_NOT_FOUND",
				Message: "no active run with that id",
			},
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": runID,
		"status": "cancellation_requested",
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	runs := s.streamer.ActiveRuns()
	if runs == nil {
		runs = []stream.RunInfo{}
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// handleValidateGraph validates a posted graph document without running
// it, returning every issue found.
func (s *Server) handleValidateGraph(c *gin.Context) {
	var doc domain.GraphDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	res := s.validator.Validate(&doc)
	errs := res.Errors
	if errs == nil {
		errs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":  res.Valid,
		"errors": errs,
	})
}

func (s *Server) handleListWorkflows(c *gin.Context) {
	names, err := s.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORE_ERROR",
				Message: err.Error(),
			},
		})
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"workflows": names,
		"total":     len(names),
	})
}

func (s *Server) handleGetWorkflow(c *gin.Context) {
	name := c.Param("name")

	doc, marker, err := s.store.Load(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "WORKFLOW_NOT_FOUND",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workflow": doc,
		"marker":   marker,
	})
}

// handleSaveWorkflow validates and stores a workflow document, dropping
// any cached copy so the next run picks up the new version.
func (s *Server) handleSaveWorkflow(c *gin.Context) {
	name := c.Param("name")

	var doc domain.GraphDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}
	doc.Name = name

	if res := s.validator.Validate(&doc); !res.Valid {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_GRAPH",
				Message: "graph validation failed",
				Details: res.Errors,
			},
		})
		return
	}

	if err := s.store.Save(c.Request.Context(), &doc); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORE_ERROR",
				Message: err.Error(),
			},
		})
		return
	}
	s.streamer.InvalidateDocument(name)

	c.JSON(http.StatusOK, gin.H{
		"workflow": name,
		"status":   "saved",
	})
}
