package model

import "time"

// Item is one package in the freezer or fridge. Drawer is the drawer's name,
// not a reference: deleting a drawer leaves the label in place.
type Item struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	HouseholdID *string   `json:"household_id"`
	Name        string    `json:"name"`
	Drawer      string    `json:"drawer"`
	Quantity    int       `json:"quantity"`
	ExpiryDate  string    `json:"expiry_date,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	Position    *int      `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ItemDraft is a validated item ready to be inserted.
type ItemDraft struct {
	Name           string
	Drawer         string
	Quantity       int
	ExpiryDate     string
	Notes          string
	Position       *int
	IdempotencyKey string
}

// ItemPatch changes only the non-nil fields. ClearPosition removes the
// position and takes precedence over Position.
type ItemPatch struct {
	Name          *string `json:"name"`
	Drawer        *string `json:"drawer"`
	Quantity      *int    `json:"quantity"`
	ExpiryDate    *string `json:"expiry_date"`
	Notes         *string `json:"notes"`
	Position      *int    `json:"position"`
	ClearPosition bool    `json:"clear_position"`
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return p.Name == nil && p.Drawer == nil && p.Quantity == nil &&
		p.ExpiryDate == nil && p.Notes == nil && p.Position == nil && !p.ClearPosition
}
