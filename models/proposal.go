package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProposalStatus string

const (
	ProposalStatusSubmitted ProposalStatus = "Submitted"
	ProposalStatusCountered ProposalStatus = "Countered"
	ProposalStatusAccepted  ProposalStatus = "Accepted"
	ProposalStatusDeclined  ProposalStatus = "Declined"
	ProposalStatusExpired   ProposalStatus = "Expired"
)

// Proposal is a guest's offer to rent a listing for a repeating weekly
// schedule between two dates.
type Proposal struct {
	ID        int            `gorm:"primary_key" json:"id"`
	LegacyId  string         `gorm:"size:64;index" json:"legacy_id"`
	ListingId int            `gorm:"index;not null" json:"listing_id"`
	GuestId   int            `gorm:"index;not null" json:"guest_id"`
	HostId    int            `gorm:"index;not null" json:"host_id"`
	// Requested nights of the week, 7-bit mask (Sun=bit 0).
	NightsRequested int             `gorm:"not null" json:"nights_requested"`
	MoveInDate      time.Time       `gorm:"not null" json:"move_in_date"`
	MoveOutDate     time.Time       `gorm:"not null" json:"move_out_date"`
	WeeklyRent      decimal.Decimal `gorm:"type:decimal(20,8)" json:"weekly_rent"`
	Status          ProposalStatus  `gorm:"size:20;not null;default:'Submitted'" json:"status"`
	ThreadId        int             `gorm:"index" json:"thread_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
