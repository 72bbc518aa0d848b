package models

import "time"

type User struct {
	ID                int       `gorm:"primary_key" json:"id"`
	LegacyId          string    `gorm:"size:64;index" json:"legacy_id"`
	Email             string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	FirstName         string    `gorm:"size:100" json:"first_name"`
	LastName          string    `gorm:"size:100" json:"last_name"`
	Phone             string    `gorm:"size:40" json:"phone"`
	IsHost            bool      `gorm:"not null;default:false" json:"is_host"`
	ProposalsSent     int       `gorm:"not null;default:0" json:"proposals_sent"`
	ProposalsReceived int       `gorm:"not null;default:0" json:"proposals_received"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
