package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"workshop-tracker-backend/internal/model"
	"workshop-tracker-backend/internal/workflow"
)

// StageDefinitions returns the ordered production stages.
func (h *Handler) StageDefinitions(c *gin.Context) {
	var defs []model.StageDefinition
	if err := h.store.DB().Order("position ASC").Find(&defs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stage definitions"})
		return
	}
	c.JSON(http.StatusOK, defs)
}

// MachineCurrentStage returns the machine's current stage together with the
// actions the session user may request on it.
func (h *Handler) MachineCurrentStage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid machine ID"})
		return
	}

	machine, err := h.store.GetMachine(c.Request.Context(), id)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}

	var current *model.WorkflowStage
	for i := range machine.Stages {
		if machine.Stages[i].Name == machine.CurrentStage {
			current = &machine.Stages[i]
			break
		}
	}
	if current == nil {
		c.JSON(http.StatusOK, gin.H{
			"machine_id":    machine.ID,
			"current_stage": nil,
			"actions":       []workflow.Action{},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"machine_id":    machine.ID,
		"current_stage": current,
		"actions":       workflow.ActionsFor(current.Status),
	})
}

// MachineHistory returns the completed-stage snapshots of one machine,
// oldest first.
func (h *Handler) MachineHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid machine ID"})
		return
	}

	var history []model.StageHistory
	err = h.store.DB().
		Where("machine_id = ?", id).
		Order("completed_at ASC").
		Find(&history).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load machine history"})
		return
	}
	c.JSON(http.StatusOK, history)
}

type validateRequest struct {
	Remarks string `json:"remarks"`
}

// ValidateStage completes the machine's current stage on behalf of its
// assignee and advances the workflow.
func (h *Handler) ValidateStage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid machine ID"})
		return
	}

	var req validateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	message, err := h.store.ValidateCurrentStage(c.Request.Context(), id, req.Remarks, actor(c))
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// MyTasks returns the session user's open tasks.
func (h *Handler) MyTasks(c *gin.Context) {
	tasks, err := h.store.MyTasks(c.Request.Context(), actor(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load tasks"})
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// Dashboard returns the per-user dashboard counters.
func (h *Handler) Dashboard(c *gin.Context) {
	counts, err := h.store.Dashboard(c.Request.Context(), actor(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load dashboard"})
		return
	}
	c.JSON(http.StatusOK, counts)
}

// RecentActivities returns the latest completed-stage snapshots.
func (h *Handler) RecentActivities(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	activities, err := h.store.RecentActivities(c.Request.Context(), actor(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load activities"})
		return
	}
	c.JSON(http.StatusOK, activities)
}
