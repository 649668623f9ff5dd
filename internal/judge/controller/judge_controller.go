// Package controller exposes the judge node's HTTP surface: status polling
// and the operator actions (rejudge, cancel).
package controller

import (
	"github.com/gin-gonic/gin"

	"arbiter/internal/judge/queue"
	"arbiter/internal/judge/repository"
	"arbiter/pkg/utils/response"
)

// JudgeController handles judge status and scheduling requests.
type JudgeController struct {
	status *repository.StatusRepository
	queue  *queue.Queue
}

// NewJudgeController creates a new controller.
func NewJudgeController(status *repository.StatusRepository, q *queue.Queue) *JudgeController {
	return &JudgeController{status: status, queue: q}
}

// GetStatus returns judging progress for one submission.
func (h *JudgeController) GetStatus(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	status, err := h.status.Get(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// Submit queues a submission for judging.
func (h *JudgeController) Submit(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	outcome, err := h.queue.Submit(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"outcome": outcome.String()})
}

// Rejudge resets a finished submission and queues it again.
func (h *JudgeController) Rejudge(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	outcome, err := h.queue.Rejudge(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"outcome": outcome.String()})
}

// Cancel requests termination of a queued or running submission.
func (h *JudgeController) Cancel(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	if err := h.queue.Cancel(c.Request.Context(), submissionID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"cancelled": true})
}

// Health reports queue depth so load balancers can drain busy nodes.
func (h *JudgeController) Health(c *gin.Context) {
	response.Success(c, gin.H{
		"queue_depth": h.queue.Depth(),
		"active":      h.queue.ActiveCount(),
	})
}
