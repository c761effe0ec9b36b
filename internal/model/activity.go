package model

import (
	"encoding/json"
	"time"
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Change holds the before and after values of one field. Values keep their
// JSON type (numbers stay numbers).
type Change struct {
	Old json.RawMessage `json:"old"`
	New json.RawMessage `json:"new"`
}

type Activity struct {
	ID          string            `json:"id"`
	HouseholdID *string           `json:"household_id"`
	Action      string            `json:"action"`
	ItemName    string            `json:"item_name"`
	ItemDrawer  string            `json:"item_drawer"`
	UserEmail   string            `json:"user_email"`
	Changes     map[string]Change `json:"changes"`
	CreatedAt   time.Time         `json:"created_at"`
}
