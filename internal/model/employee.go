package model

import "time"

// Employee is an org-chart row: the display name is the natural key used
// across the ledger, chat threads and the tracking store; PrincipalID is
// the numeric identity of the authenticated user.
type Employee struct {
	ID          int64  `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;size:128;not null"`
	PrincipalID int64  `gorm:"uniqueIndex;not null"`
	ThreadID    int64
	Brigade     string `gorm:"index;size:64"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
