package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"workshop-tracker-backend/internal/model"
)

type clientRequest struct {
	Name     string `json:"clientName"`
	Society  string `json:"clientSociety"`
	Email    string `json:"clientEmail"`
	Phone    string `json:"clientPhone"`
	Address  string `json:"clientAddress"`
	Location string `json:"clientLocation"`
}

// ListClients returns every client, newest first.
func (h *Handler) ListClients(c *gin.Context) {
	var clients []model.Client
	if err := h.store.DB().Order("created_at DESC").Find(&clients).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load clients"})
		return
	}
	c.JSON(http.StatusOK, clients)
}

// CreateClient registers a new client. Name, society, phone and address are
// required; the rest is optional.
func (h *Handler) CreateClient(c *gin.Context) {
	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Name == "" || req.Society == "" || req.Phone == "" || req.Address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "clientName, clientSociety, clientPhone and clientAddress are required"})
		return
	}

	client := model.Client{
		Name:      req.Name,
		Society:   req.Society,
		Email:     req.Email,
		Phone:     req.Phone,
		Address:   req.Address,
		Location:  req.Location,
		IsActive:  true,
		CreatedBy: actor(c).Username,
	}
	if err := h.store.DB().Create(&client).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create client"})
		return
	}
	c.JSON(http.StatusCreated, client)
}

// GetClient returns one client by ID.
func (h *Handler) GetClient(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client ID"})
		return
	}

	var client model.Client
	err = h.store.DB().First(&client, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load client"})
		return
	}
	c.JSON(http.StatusOK, client)
}

// UpdateClient updates a client's fields and propagates the denormalized name
// and society onto its machines.
func (h *Handler) UpdateClient(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client ID"})
		return
	}

	db := h.store.DB()
	var client model.Client
	err = db.First(&client, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load client"})
		return
	}

	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if req.Name != "" {
		client.Name = req.Name
	}
	if req.Society != "" {
		client.Society = req.Society
	}
	if req.Email != "" {
		client.Email = req.Email
	}
	if req.Phone != "" {
		client.Phone = req.Phone
	}
	if req.Address != "" {
		client.Address = req.Address
	}
	if req.Location != "" {
		client.Location = req.Location
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&client).Error; err != nil {
			return err
		}
		return tx.Model(&model.Machine{}).
			Where("client_id = ?", client.ID).
			Updates(map[string]interface{}{
				"client_name":    client.Name,
				"client_society": client.Society,
			}).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update client"})
		return
	}
	c.JSON(http.StatusOK, client)
}

// DeleteClient removes a client. Machines keep their denormalized client
// fields; the foreign key is cleared by the association constraint.
func (h *Handler) DeleteClient(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client ID"})
		return
	}

	db := h.store.DB()
	var client model.Client
	err = db.First(&client, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load client"})
		return
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Machine{}).
			Where("client_id = ?", id).
			Update("client_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&client).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete client"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Client deleted successfully"})
}
