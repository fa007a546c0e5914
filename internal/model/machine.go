package model

import "time"

// Machine statuses as displayed to users. Free text in the original data,
// so these are conventions rather than an enum.
const (
	MachineStatusActive    = "En cours"
	MachineStatusCompleted = "Completed"
)

// Machine represents a tracked workshop machine and its embedded workflow.
type Machine struct {
	ID           int64  `gorm:"primaryKey" json:"id"`
	SerialNumber string `gorm:"size:128;not null;index" json:"serialNumber"`
	FicheNumber  string `gorm:"size:128" json:"ficheNumber"`
	MachineType  string `gorm:"size:128" json:"machineType"`
	Status       string `gorm:"size:64;not null" json:"status"`

	// Client reference plus denormalized display fields, kept in sync on
	// create/update so list rendering needs no join.
	ClientID      *int64 `gorm:"index" json:"clientId"`
	ClientName    string `gorm:"size:256" json:"clientName"`
	ClientSociety string `gorm:"size:256" json:"clientSociety"`

	// Current stage summary, derived from the workflow stages.
	CurrentStage      string     `gorm:"size:64;index" json:"current_stage"`
	CurrentStageLabel string     `gorm:"size:128" json:"current_stage_label"`
	WorkflowStatus    string     `gorm:"size:32" json:"workflow_status"`
	AssignedUserID    *int64     `gorm:"index" json:"assigned_user_id"`
	AssignedUsername  string     `gorm:"size:64" json:"assigned_username"`
	StageStartedAt    *time.Time `json:"stage_started_at"`

	PrixHT        float64 `json:"prixHT"`
	PrixTTC       float64 `json:"prixTTC"`
	PaymentStatus string  `gorm:"size:64" json:"paymentStatus"`
	PaymentType   string  `gorm:"size:64" json:"paymentType"`
	Facturation   string  `gorm:"size:64" json:"facturation"`
	Confirmation  string  `gorm:"size:64" json:"confirmation"`
	Remarques     string  `gorm:"size:1024" json:"remarques"`

	CreatedBy   string     `gorm:"size:64" json:"created_by"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"dateAdded"`
	UpdatedAt   time.Time  `json:"dateUpdated"`

	// Associations
	Client *Client         `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	Stages []WorkflowStage `gorm:"foreignKey:MachineID;constraint:OnDelete:CASCADE" json:"stages,omitempty"`
}
