package models

import "time"

type MessageThread struct {
	ID         int       `gorm:"primary_key" json:"id"`
	LegacyId   string    `gorm:"size:64;index" json:"legacy_id"`
	ListingId  int       `gorm:"index;not null" json:"listing_id"`
	ProposalId int       `gorm:"index" json:"proposal_id"`
	GuestId    int       `gorm:"index;not null" json:"guest_id"`
	HostId     int       `gorm:"index;not null" json:"host_id"`
	Subject    string    `gorm:"size:255" json:"subject"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Message struct {
	ID        int       `gorm:"primary_key" json:"id"`
	LegacyId  string    `gorm:"size:64;index" json:"legacy_id"`
	ThreadId  int       `gorm:"index;not null" json:"thread_id"`
	SenderId  int       `gorm:"index;not null" json:"sender_id"`
	// IsSystem marks messages generated by the platform (e.g. the proposal
	// summary dropped into a new thread), not typed by a user.
	IsSystem  bool      `gorm:"not null;default:false" json:"is_system"`
	Body      string    `gorm:"type:text" json:"body"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
