package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListingStatus string

const (
	ListingStatusDraft    ListingStatus = "Draft"
	ListingStatusActive   ListingStatus = "Active"
	ListingStatusPaused   ListingStatus = "Paused"
	ListingStatusArchived ListingStatus = "Archived"
)

type Listing struct {
	ID           int             `gorm:"primary_key" json:"id"`
	LegacyId     string          `gorm:"size:64;index" json:"legacy_id"`
	HostId       int             `gorm:"index;not null" json:"host_id"`
	Title        string          `gorm:"size:255;not null" json:"title"`
	Neighborhood string          `gorm:"size:120" json:"neighborhood"`
	Borough      string          `gorm:"size:60" json:"borough"`
	NightlyRate  decimal.Decimal `gorm:"type:decimal(20,8)" json:"nightly_rate"`
	WeeklyRate   decimal.Decimal `gorm:"type:decimal(20,8)" json:"weekly_rate"`
	MonthlyRate  decimal.Decimal `gorm:"type:decimal(20,8)" json:"monthly_rate"`
	// Nights of the week offered, as a 7-bit mask (Sun=bit 0).
	NightsOffered int           `gorm:"not null;default:127" json:"nights_offered"`
	Status        ListingStatus `gorm:"size:20;not null;default:'Draft'" json:"status"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}
