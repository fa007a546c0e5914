package model

import "time"

// Client represents a customer organization.
type Client struct {
	ID       int64  `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"size:256;not null" json:"clientName"`
	Society  string `gorm:"size:256;not null" json:"clientSociety"`
	Email    string `gorm:"size:256" json:"clientEmail"`
	Phone    string `gorm:"size:32;not null" json:"clientPhone"`
	Address  string `gorm:"size:512;not null" json:"clientAddress"`
	Location string `gorm:"size:256" json:"clientLocation"`
	IsActive bool   `gorm:"not null;default:true" json:"is_active"`

	CreatedBy string    `gorm:"size:64" json:"created_by"`
	CreatedAt time.Time `json:"dateAdded"`
	UpdatedAt time.Time `json:"dateUpdated"`

	// Associations
	Machines []Machine `gorm:"foreignKey:ClientID" json:"-"`
}
