package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type LeaseStatus string

const (
	LeaseStatusPendingSignature LeaseStatus = "Pending Signature"
	LeaseStatusActive           LeaseStatus = "Active"
	LeaseStatusEnded            LeaseStatus = "Ended"
	LeaseStatusCancelled        LeaseStatus = "Cancelled"
)

type Lease struct {
	ID         int             `gorm:"primary_key" json:"id"`
	LegacyId   string          `gorm:"size:64;index" json:"legacy_id"`
	ProposalId int             `gorm:"index;not null" json:"proposal_id"`
	ListingId  int             `gorm:"index;not null" json:"listing_id"`
	GuestId    int             `gorm:"index;not null" json:"guest_id"`
	HostId     int             `gorm:"index;not null" json:"host_id"`
	StartDate  time.Time       `gorm:"not null" json:"start_date"`
	EndDate    time.Time       `gorm:"not null" json:"end_date"`
	WeeklyRent decimal.Decimal `gorm:"type:decimal(20,8)" json:"weekly_rent"`
	Deposit    decimal.Decimal `gorm:"type:decimal(20,8)" json:"deposit"`
	Status     LeaseStatus     `gorm:"size:30;not null;default:'Pending Signature'" json:"status"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
