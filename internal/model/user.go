package model

import "time"

// Role keys understood by the application. The backend is the authority on
// what each role may do; UI visibility derived from roles is cosmetic.
const (
	RoleAdmin            = "admin"
	RoleSupervisor       = "supervisor"
	RoleAssemblyTech     = "assembly_tech"
	RoleTestingTech      = "testing_tech"
	RoleDeliveryTech     = "delivery_tech"
	RoleInstallationTech = "installation_tech"
)

// RoleLabels maps role keys to their display names.
var RoleLabels = map[string]string{
	RoleAdmin:            "Administrator",
	RoleSupervisor:       "Supervisor",
	RoleAssemblyTech:     "Assembly Technician",
	RoleTestingTech:      "Testing Technician",
	RoleDeliveryTech:     "Delivery Technician",
	RoleInstallationTech: "Installation Technician",
}

// StageAccessForRole maps a role to the stage it may work on.
// Admin gets the special value "all".
var StageAccessForRole = map[string]string{
	RoleAdmin:            "all",
	RoleSupervisor:       "material_collection",
	RoleAssemblyTech:     "assembly",
	RoleTestingTech:      "testing",
	RoleDeliveryTech:     "delivery",
	RoleInstallationTech: "installation",
}

// ValidRole reports whether the given role key is recognized.
func ValidRole(role string) bool {
	_, ok := RoleLabels[role]
	return ok
}

// User represents an application account.
type User struct {
	ID             int64  `gorm:"primaryKey" json:"id"`
	Username       string `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email          string `gorm:"uniqueIndex;size:256;not null" json:"email"`
	PasswordHash   string `gorm:"size:128;not null" json:"-"`
	Role           string `gorm:"size:32;not null;index" json:"role"`
	FirstName      string `gorm:"size:128" json:"first_name"`
	LastName       string `gorm:"size:128" json:"last_name"`
	Department     string `gorm:"size:128" json:"department"`
	Phone          string `gorm:"size:32" json:"phone"`
	Specialization string `gorm:"size:128" json:"specialization"`
	StageAccess    string `gorm:"size:64;index" json:"stage_access"`
	IsActive       bool   `gorm:"not null;default:true" json:"is_active"`
	CanValidateAll bool   `gorm:"not null;default:false" json:"can_validate_all"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
