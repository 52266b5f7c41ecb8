package model

// TrackPoint is one geolocation ping. Rows are append-only; IsValid is
// decided at insertion time and never revised.
type TrackPoint struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Employee    string `gorm:"index:idx_tp_emp_ts,priority:1;size:128;not null"`
	PrincipalID int64  `gorm:"not null"`
	ShiftID     string `gorm:"index;size:192;not null"`
	TS          int64  `gorm:"index:idx_tp_emp_ts,priority:2;not null"`
	Lat         float64 `gorm:"not null"`
	Lon         float64 `gorm:"not null"`
	Accuracy    *float64
	Source      string `gorm:"size:32;not null"`
	SpeedKmh    *float64
	IsValid     bool `gorm:"not null;default:true"`
}

// LastPosition caches the freshest valid point per employee for the live map.
type LastPosition struct {
	Employee string `gorm:"primaryKey;size:128"`
	TS       int64  `gorm:"not null"`
	Lat      float64 `gorm:"not null"`
	Lon      float64 `gorm:"not null"`
	Accuracy *float64
	Source   string `gorm:"size:32;not null"`
}
