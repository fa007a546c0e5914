package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"workshop-tracker-backend/internal/model"
	"workshop-tracker-backend/internal/workflow"
)

// workflowView is the per-machine workflow payload: the ordered stages plus
// the actions the session user may request on each.
type workflowView struct {
	MachineID      int64           `json:"machine_id"`
	SerialNumber   string          `json:"serialNumber"`
	CurrentStage   string          `json:"current_stage"`
	WorkflowStatus string          `json:"workflow_status"`
	Stages         []workflowStage `json:"stages"`
}

type workflowStage struct {
	model.WorkflowStage
	Actions []workflow.Action `json:"actions"`
}

func buildWorkflowView(m *model.Machine) workflowView {
	view := workflowView{
		MachineID:      m.ID,
		SerialNumber:   m.SerialNumber,
		CurrentStage:   m.CurrentStage,
		WorkflowStatus: m.WorkflowStatus,
		Stages:         make([]workflowStage, 0, len(m.Stages)),
	}
	for _, s := range m.Stages {
		view.Stages = append(view.Stages, workflowStage{
			WorkflowStage: s,
			Actions:       workflow.ActionsFor(s.Status),
		})
	}
	return view
}

// ListWorkflows returns the workflow of every machine the session user may
// see, mirroring the machine list's role filtering.
func (h *Handler) ListWorkflows(c *gin.Context) {
	act := actor(c)

	query := h.store.DB().
		Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("created_at DESC")
	if !act.IsAdmin() {
		query = query.Where("current_stage = ? OR assigned_user_id = ?", act.StageAccess, act.UserID)
	}

	var machines []model.Machine
	if err := query.Find(&machines).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load workflows"})
		return
	}

	views := make([]workflowView, 0, len(machines))
	for i := range machines {
		views = append(views, buildWorkflowView(&machines[i]))
	}
	c.JSON(http.StatusOK, views)
}

// GetWorkflow returns one machine's workflow.
func (h *Handler) GetWorkflow(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("machineID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid machine ID"})
		return
	}

	machine, err := h.store.GetMachine(c.Request.Context(), id)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildWorkflowView(machine))
}

type stageUpdateRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// UpdateWorkflowStage applies one requested status change to one stage. The
// transition table is the authority; anything it does not allow is rejected.
func (h *Handler) UpdateWorkflowStage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("machineID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid machine ID"})
		return
	}
	stageName := c.Param("stageName")

	var req stageUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !model.ValidStageStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown stage status: " + req.Status})
		return
	}

	machine, err := h.store.TransitionStage(c.Request.Context(), id, stageName, req.Status, req.Notes, actor(c))
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildWorkflowView(machine))
}

type assignRequest struct {
	UserID int64 `json:"user_id"`
}

// AssignStageUser assigns a user to a stage and makes them the machine's
// assignee when the stage is the current one. Admin only.
func (h *Handler) AssignStageUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("machineID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid machine ID"})
		return
	}
	stageName := c.Param("stageName")

	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	db := h.store.DB()
	var user model.User
	err = db.First(&user, req.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot assign a disabled user"})
		return
	}

	var machine model.Machine
	err = db.First(&machine, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Machine not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load machine"})
		return
	}

	var stage model.WorkflowStage
	err = db.Where("machine_id = ? AND name = ?", id, stageName).First(&stage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stage not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stage"})
		return
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&stage).Association("AssignedUsers").Replace(&user); err != nil {
			return err
		}
		if machine.CurrentStage == stage.Name {
			machine.AssignedUserID = &user.ID
			machine.AssignedUsername = user.Username
			return tx.Save(&machine).Error
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign user"})
		return
	}

	if h.notify != nil {
		h.notify(user.ID, fmt.Sprintf("Machine %s : étape %q vous est assignée", machine.SerialNumber, stage.Label))
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User assigned successfully",
		"stage":   stage.Name,
		"user":    user.Username,
	})
}
