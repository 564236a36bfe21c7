package models

import "time"

// ExceptionDay is an admin-configured date on which no leave or OD request
// may be submitted. Read-only to the lifecycle engine.
type ExceptionDay struct {
	ID          string    `db:"id" json:"id"`
	Date        time.Time `db:"date" json:"date"`
	Reason      string    `db:"reason" json:"reason"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
