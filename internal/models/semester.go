package models

import "time"

// Semester maps a batch + semester number onto its academic date range. The
// lifecycle engine consumes it only as a read-only oracle constraining which
// dates a creation form may offer.
type Semester struct {
	ID        string    `db:"id" json:"id"`
	Batch     string    `db:"batch" json:"batch"`
	Semester  int       `db:"semester" json:"semester"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
