package model

import "time"

// Statuses a workflow stage can be in. The server owns all transitions;
// clients only request them.
const (
	StagePending    = "pending"
	StageInProgress = "in_progress"
	StageCompleted  = "completed"
	StageBlocked    = "blocked"
)

// ValidStageStatus reports whether the given status is one of the four
// recognized stage statuses.
func ValidStageStatus(status string) bool {
	switch status {
	case StagePending, StageInProgress, StageCompleted, StageBlocked:
		return true
	}
	return false
}

// StageDefinition describes one step of the production process. Definitions
// are ordered by Position and seeded at migration time.
type StageDefinition struct {
	ID                     int64  `gorm:"primaryKey" json:"id"`
	Name                   string `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Label                  string `gorm:"size:128;not null" json:"label"`
	Position               int    `gorm:"not null" json:"order"`
	EstimatedDurationHours int    `json:"estimated_duration_hours"`
	RequiredRole           string `gorm:"size:32;not null" json:"required_role"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowStage is one step of a machine's workflow instance.
type WorkflowStage struct {
	ID                     int64      `gorm:"primaryKey" json:"id"`
	MachineID              int64      `gorm:"index;not null" json:"machine_id"`
	Name                   string     `gorm:"size:64;not null" json:"name"`
	Label                  string     `gorm:"size:128;not null" json:"label"`
	Position               int        `gorm:"not null" json:"order"`
	Status                 string     `gorm:"size:32;not null;default:pending" json:"status"`
	Notes                  string     `gorm:"size:1024" json:"notes"`
	EstimatedDurationHours int        `json:"estimated_duration_hours"`
	StartedAt              *time.Time `json:"started_at"`
	CompletedAt            *time.Time `json:"completed_at"`
	UpdatedByID            int64      `json:"updated_by_id"`
	UpdatedByUsername      string     `gorm:"size:64" json:"updated_by_username"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Associations
	AssignedUsers []*User `gorm:"many2many:stage_assignments;" json:"assigned_users"`
}

// StageHistory is a snapshot written when a stage completes. It feeds the
// recent-activity feed and per-user completed task counts.
type StageHistory struct {
	ID            int64      `gorm:"primaryKey" json:"id"`
	MachineID     int64      `gorm:"index;not null" json:"machine_id"`
	MachineSerial string     `gorm:"size:128" json:"machine_serial"`
	MachineType   string     `gorm:"size:128" json:"machine_type"`
	ClientName    string     `gorm:"size:256" json:"client_name"`
	ClientSociety string     `gorm:"size:256" json:"client_society"`
	StageName     string     `gorm:"size:64;not null" json:"stage_name"`
	StageLabel    string     `gorm:"size:128" json:"stage_label"`
	Status        string     `gorm:"size:32;not null" json:"status"`
	UserID        int64      `gorm:"index" json:"assigned_user_id"`
	Username      string     `gorm:"size:64" json:"assigned_username"`
	StartedAt     *time.Time `json:"started_at"`
	CompletedAt   *time.Time `gorm:"index" json:"completed_at"`
	Remarks       string     `gorm:"size:1024" json:"remarks"`

	CreatedAt time.Time `json:"created_at"`
}
