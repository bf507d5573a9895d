package model

import "time"

// TaskRecord is the persisted document owned by the external store. The core
// only creates, patches, and queries it; it is never cached across requests.
type TaskRecord struct {
	ID         string     `json:"id,omitempty"`
	Title      string     `json:"title"`
	Result     string     `json:"result"`
	Purpose    string     `json:"purpose"`
	ActionPlan []string   `json:"action_plan"`
	Role       Role       `json:"role"`
	Status     Status     `json:"status"`
	Due        *time.Time `json:"due,omitempty"`
	XP         int        `json:"xp"`
	CreatedAt  time.Time  `json:"created_at"`
	Source     string     `json:"source"`
	Context    string     `json:"context"`
}

// TaskRef is the projection returned by a store title query.
type TaskRef struct {
	ID     string
	Title  string
	Status Status
}
