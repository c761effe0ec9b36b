package model

import "time"

type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationDeclined  InvitationStatus = "declined"
	InvitationCancelled InvitationStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s InvitationStatus) Terminal() bool {
	return s != InvitationPending
}

type Invitation struct {
	ID             string           `json:"id"`
	HouseholdID    string           `json:"household_id"`
	HouseholdName  string           `json:"household_name,omitempty"`
	InvitedEmail   string           `json:"invited_email"`
	InvitedBy      string           `json:"invited_by,omitempty"`
	InvitedByEmail string           `json:"invited_by_email,omitempty"`
	Status         InvitationStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	LastSentAt     *time.Time       `json:"last_sent_at"`
	RespondedAt    *time.Time       `json:"responded_at,omitempty"`
}
