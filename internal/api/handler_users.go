package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"workshop-tracker-backend/internal/model"
)

type userRequest struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Role           string `json:"role"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Department     string `json:"department"`
	Phone          string `json:"phone"`
	Specialization string `json:"specialization"`
	IsActive       *bool  `json:"is_active"`
}

// ListUsers returns every account, newest first.
func (h *Handler) ListUsers(c *gin.Context) {
	var users []model.User
	if err := h.store.DB().Order("created_at DESC").Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

// CreateUser registers a new account. Stage access is derived from the role,
// never taken from the request.
func (h *Handler) CreateUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" || req.Role == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username, email, password and role are required"})
		return
	}
	if !model.ValidRole(req.Role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown role: " + req.Role})
		return
	}

	db := h.store.DB()
	var count int64
	db.Model(&model.User{}).Where("username = ?", req.Username).Count(&count)
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Username already exists"})
		return
	}
	db.Model(&model.User{}).Where("email = ?", req.Email).Count(&count)
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already exists"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	user := model.User{
		Username:       req.Username,
		Email:          req.Email,
		PasswordHash:   string(hash),
		Role:           req.Role,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Department:     req.Department,
		Phone:          req.Phone,
		Specialization: req.Specialization,
		StageAccess:    model.StageAccessForRole[req.Role],
		IsActive:       true,
		CanValidateAll: req.Role == model.RoleAdmin,
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := db.Create(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}
	c.JSON(http.StatusCreated, user)
}

// GetUser returns one account by ID. Non-admins may only fetch their own.
func (h *Handler) GetUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	if act := actor(c); !act.IsAdmin() && act.UserID != id {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}

	var user model.User
	err = h.store.DB().First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateUser updates an account. The password changes only when a non-empty
// one is supplied; a role change re-derives the stage access. Non-admins may
// only edit their own profile, and never their role or active flag.
func (h *Handler) UpdateUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	act := actor(c)
	if !act.IsAdmin() && act.UserID != id {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}

	db := h.store.DB()
	var user model.User
	err = db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}

	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if req.Username != "" && req.Username != user.Username {
		var count int64
		db.Model(&model.User{}).Where("username = ? AND id <> ?", req.Username, id).Count(&count)
		if count > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Username already exists"})
			return
		}
		user.Username = req.Username
	}
	if req.Email != "" && req.Email != user.Email {
		var count int64
		db.Model(&model.User{}).Where("email = ? AND id <> ?", req.Email, id).Count(&count)
		if count > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already exists"})
			return
		}
		user.Email = req.Email
	}
	if req.Role != "" && req.Role != user.Role {
		if !act.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only admins can change roles"})
			return
		}
		if !model.ValidRole(req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown role: " + req.Role})
			return
		}
		user.Role = req.Role
		user.StageAccess = model.StageAccessForRole[req.Role]
		user.CanValidateAll = req.Role == model.RoleAdmin
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		user.PasswordHash = string(hash)
	}
	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.Department != "" {
		user.Department = req.Department
	}
	if req.Phone != "" {
		user.Phone = req.Phone
	}
	if req.Specialization != "" {
		user.Specialization = req.Specialization
	}
	if req.IsActive != nil && act.IsAdmin() {
		user.IsActive = *req.IsActive
	}

	if err := db.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser removes an account. Admins cannot delete themselves, and a user
// still assigned to machines must be unassigned first.
func (h *Handler) DeleteUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	if actor(c).UserID == id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot delete your own account"})
		return
	}

	db := h.store.DB()
	var user model.User
	err = db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}

	var assigned int64
	db.Model(&model.Machine{}).Where("assigned_user_id = ?", id).Count(&assigned)
	if assigned > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "User has machines assigned; reassign them first"})
		return
	}

	if err := db.Delete(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// Roles returns the recognized roles with their labels and stage access, used
// to populate role selectors.
func (h *Handler) Roles(c *gin.Context) {
	roles := make([]gin.H, 0, len(model.RoleLabels))
	for _, role := range []string{
		model.RoleAdmin,
		model.RoleSupervisor,
		model.RoleAssemblyTech,
		model.RoleTestingTech,
		model.RoleDeliveryTech,
		model.RoleInstallationTech,
	} {
		roles = append(roles, gin.H{
			"key":          role,
			"label":        model.RoleLabels[role],
			"stage_access": model.StageAccessForRole[role],
		})
	}
	c.JSON(http.StatusOK, roles)
}

// UsersByStage returns the active users eligible for one stage: those whose
// stage access matches, plus admins.
func (h *Handler) UsersByStage(c *gin.Context) {
	stage := strings.TrimSpace(c.Param("stage"))
	if stage == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Stage name required"})
		return
	}

	var users []model.User
	err := h.store.DB().
		Where("is_active = ?", true).
		Where("stage_access = ? OR stage_access = ?", stage, "all").
		Order("username ASC").
		Find(&users).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load users"})
		return
	}
	c.JSON(http.StatusOK, users)
}
