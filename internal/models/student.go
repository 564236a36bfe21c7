package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Student represents a learner whose leave balance is tracked by the engine.
// LeaveTaken always equals the sum of day counts of this student's leave
// requests currently in a balance-charged state.
type Student struct {
	ID             string          `db:"id" json:"id"`
	UserID         string          `db:"user_id" json:"user_id"`
	FullName       string          `db:"full_name" json:"full_name"`
	RegisterNumber string          `db:"register_number" json:"register_number"`
	TutorID        string          `db:"tutor_id" json:"tutor_id"`
	Batch          string          `db:"batch" json:"batch"`
	Semester       int             `db:"semester" json:"semester"`
	LeaveTaken     decimal.Decimal `db:"leave_taken" json:"leave_taken"`
	Active         bool            `db:"active" json:"active"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Staff represents a tutor or admin staff member.
type Staff struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	FullName  string    `db:"full_name" json:"full_name"`
	IsAdmin   bool      `db:"is_admin" json:"is_admin"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BalanceSummary is the leave-balance read model served to reporting views.
type BalanceSummary struct {
	StudentID      string          `db:"student_id" json:"student_id"`
	RegisterNumber string          `db:"register_number" json:"register_number"`
	LeaveTaken     decimal.Decimal `db:"leave_taken" json:"leave_taken"`
}
