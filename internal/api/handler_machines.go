package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"workshop-tracker-backend/internal/model"
)

type machineRequest struct {
	SerialNumber  string  `json:"serialNumber"`
	FicheNumber   string  `json:"ficheNumber"`
	MachineType   string  `json:"machineType"`
	ClientID      *int64  `json:"clientId"`
	PrixHT        float64 `json:"prixHT"`
	PrixTTC       float64 `json:"prixTTC"`
	PaymentStatus string  `json:"paymentStatus"`
	PaymentType   string  `json:"paymentType"`
	Facturation   string  `json:"facturation"`
	Confirmation  string  `json:"confirmation"`
	Remarques     string  `json:"remarques"`
}

// ListMachines returns machines newest first. Admins see everything; other
// roles see machines currently in their stage or assigned to them.
func (h *Handler) ListMachines(c *gin.Context) {
	act := actor(c)

	query := h.store.DB().Order("created_at DESC")
	if !act.IsAdmin() {
		query = query.Where("current_stage = ? OR assigned_user_id = ?", act.StageAccess, act.UserID)
	}

	var machines []model.Machine
	if err := query.Find(&machines).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load machines"})
		return
	}
	c.JSON(http.StatusOK, machines)
}

// CreateMachine registers a machine and builds its workflow instance. The
// first stage is assigned immediately so work can start without an admin
// touching the record again.
func (h *Handler) CreateMachine(c *gin.Context) {
	var req machineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.SerialNumber == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "serialNumber is required"})
		return
	}

	machine := model.Machine{
		SerialNumber:  req.SerialNumber,
		FicheNumber:   req.FicheNumber,
		MachineType:   req.MachineType,
		PrixHT:        req.PrixHT,
		PrixTTC:       req.PrixTTC,
		PaymentStatus: req.PaymentStatus,
		PaymentType:   req.PaymentType,
		Facturation:   req.Facturation,
		Confirmation:  req.Confirmation,
		Remarques:     req.Remarques,
		CreatedBy:     actor(c).Username,
	}

	if req.ClientID != nil {
		var client model.Client
		err := h.store.DB().First(&client, *req.ClientID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Client not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load client"})
			return
		}
		machine.ClientID = &client.ID
		machine.ClientName = client.Name
		machine.ClientSociety = client.Society
	}

	if err := h.store.CreateMachine(c.Request.Context(), &machine); err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, machine)
}

// GetMachine returns one machine with its ordered workflow stages.
func (h *Handler) GetMachine(c *gin.Context) {
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
	c.JSON(http.StatusOK, machine)
}

// UpdateMachine updates the editable record fields. Workflow state is never
// writable here; it only moves through the stage endpoints.
func (h *Handler) UpdateMachine(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid machine ID"})
		return
	}

	db := h.store.DB()
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

	var req machineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if req.SerialNumber != "" {
		machine.SerialNumber = req.SerialNumber
	}
	if req.FicheNumber != "" {
		machine.FicheNumber = req.FicheNumber
	}
	if req.MachineType != "" {
		machine.MachineType = req.MachineType
	}
	if req.PrixHT != 0 {
		machine.PrixHT = req.PrixHT
	}
	if req.PrixTTC != 0 {
		machine.PrixTTC = req.PrixTTC
	}
	if req.PaymentStatus != "" {
		machine.PaymentStatus = req.PaymentStatus
	}
	if req.PaymentType != "" {
		machine.PaymentType = req.PaymentType
	}
	if req.Facturation != "" {
		machine.Facturation = req.Facturation
	}
	if req.Confirmation != "" {
		machine.Confirmation = req.Confirmation
	}
	if req.Remarques != "" {
		machine.Remarques = req.Remarques
	}
	if req.ClientID != nil {
		var client model.Client
		err := db.First(&client, *req.ClientID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Client not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load client"})
			return
		}
		machine.ClientID = &client.ID
		machine.ClientName = client.Name
		machine.ClientSociety = client.Society
	}

	if err := db.Save(&machine).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update machine"})
		return
	}
	c.JSON(http.StatusOK, machine)
}

// DeleteMachine removes a machine together with its workflow and history.
func (h *Handler) DeleteMachine(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid machine ID"})
		return
	}

	deletedHistory, err := h.store.DeleteMachine(c.Request.Context(), id)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":                 "Machine deleted successfully",
		"deleted_history_entries": deletedHistory,
	})
}

// MachineStatistics returns the per-stage distribution of machines.
func (h *Handler) MachineStatistics(c *gin.Context) {
	total, completed, stats, err := h.store.MachineStatistics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute statistics"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_machines":     total,
		"completed_machines": completed,
		"stages":             stats,
	})
}
