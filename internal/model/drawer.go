package model

import "time"

const DefaultDrawerIcon = "📦"

type Drawer struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	HouseholdID *string   `json:"household_id"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
}

type DrawerDraft struct {
	Name      string
	Icon      string
	SortOrder *int
}

type DrawerPatch struct {
	Name *string `json:"name"`
	Icon *string `json:"icon"`
}
