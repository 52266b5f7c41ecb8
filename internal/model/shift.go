package model

// Shift tracks the open/close lifecycle of one employee's working day.
// ShiftID is "YYYYMMDD-<employee>", so a day has at most one shift per
// employee; re-opening replaces the start timestamp.
type Shift struct {
	ShiftID  string `gorm:"primaryKey;size:192"`
	Employee string `gorm:"index;size:128;not null"`
	StartTS  int64  `gorm:"not null"`
	EndTS    *int64
	Active   bool `gorm:"not null"`
}
