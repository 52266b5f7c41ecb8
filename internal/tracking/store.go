// Package tracking implements the geotracking ingestion pipeline: shift
// lifecycle rows, gated point ingestion with plausibility filters, the
// last-known-position cache and per-day track reconstruction.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shift-tracker-backend/internal/model"
)

// metersPerDegree scales degree distance to meters. The speed estimate is a
// deliberate planar approximation of the source data, not a haversine
// distance; it over-estimates east-west speed away from the equator.
const metersPerDegree = 111_000.0

// Freshness tiers for the live map, derived purely from point age.
const (
	FreshnessFresh   = "fresh"   // age <= 5 min
	FreshnessStale   = "stale"   // age <= 30 min
	FreshnessExpired = "expired" // older
)

// PointInput is one inbound geolocation ping.
type PointInput struct {
	Employee    string
	PrincipalID int64
	Lat         float64
	Lon         float64
	Accuracy    *float64
	Source      string
}

// Snapshot is one employee's last known position for the live map.
type Snapshot struct {
	Employee  string   `json:"employee"`
	TS        int64    `json:"last_ts"`
	Lat       float64  `json:"last_lat"`
	Lon       float64  `json:"last_lon"`
	Accuracy  *float64 `json:"last_accuracy"`
	Freshness string   `json:"fresh_status"`
}

// TrackPoint is one point of a reconstructed day track.
type TrackPoint struct {
	TS       int64    `json:"ts"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Accuracy *float64 `json:"accuracy"`
}

// Store defines the geotracking persistence operations. The current time is
// passed in so callers (and tests) control the clock.
type Store interface {
	OpenShift(ctx context.Context, employee string, now time.Time) error
	CloseShift(ctx context.Context, employee string, now time.Time) error
	// InsertPoint appends a ping. It reports whether the point was stored at
	// all: pings outside an active shift are dropped silently by design.
	InsertPoint(ctx context.Context, p PointInput, now time.Time) (bool, error)
	LastPositions(ctx context.Context, now time.Time) ([]Snapshot, error)
	Track(ctx context.Context, employee string, day time.Time) ([]TrackPoint, error)
	Cleanup(ctx context.Context, retentionDays int, now time.Time) error
}

// Thresholds configures the plausibility filters.
type Thresholds struct {
	MaxAccuracyMeters float64
	MaxJumpSpeedKmh   float64
}

type gormStore struct {
	db         *gorm.DB
	thresholds Thresholds
}

// NewGormStore creates a gorm-backed tracking store.
func NewGormStore(db *gorm.DB, thresholds Thresholds) Store {
	return &gormStore{db: db, thresholds: thresholds}
}

// ShiftID builds the per-day shift identifier "YYYYMMDD-<employee>".
func ShiftID(employee string, day time.Time) string {
	return day.Format("20060102") + "-" + employee
}

// OpenShift upserts today's shift with a fresh start timestamp. Re-opening
// the same day's shift resets the start, which keeps the operation
// idempotent per day.
func (s *gormStore) OpenShift(ctx context.Context, employee string, now time.Time) error {
	shift := model.Shift{
		ShiftID:  ShiftID(employee, now),
		Employee: employee,
		StartTS:  now.Unix(),
		EndTS:    nil,
		Active:   true,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shift_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"start_ts", "end_ts", "active"}),
	}).Create(&shift).Error
	if err != nil {
		return fmt.Errorf("open shift %s: %w", shift.ShiftID, err)
	}
	return nil
}

// CloseShift marks today's shift inactive; a missing shift is a no-op.
func (s *gormStore) CloseShift(ctx context.Context, employee string, now time.Time) error {
	end := now.Unix()
	err := s.db.WithContext(ctx).
		Model(&model.Shift{}).
		Where("shift_id = ? AND employee = ?", ShiftID(employee, now), employee).
		Updates(map[string]any{"end_ts": end, "active": false}).Error
	if err != nil {
		return fmt.Errorf("close shift for %s: %w", employee, err)
	}
	return nil
}

func (s *gormStore) InsertPoint(ctx context.Context, p PointInput, now time.Time) (bool, error) {
	shiftID := ShiftID(p.Employee, now)

	var shift model.Shift
	err := s.db.WithContext(ctx).
		First(&shift, "shift_id = ? AND employee = ?", shiftID, p.Employee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("shift lookup for %s: %w", p.Employee, err)
	}
	if !shift.Active {
		return false, nil
	}

	valid := true
	if p.Accuracy != nil && *p.Accuracy > s.thresholds.MaxAccuracyMeters {
		valid = false
	}

	// Jump filter: estimate the speed from the previous valid point; a value
	// over the threshold is read as a GPS glitch, not movement.
	var speed *float64
	var prev model.TrackPoint
	err = s.db.WithContext(ctx).
		Where("employee = ? AND is_valid = ?", p.Employee, true).
		Order("ts DESC").
		First(&prev).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("previous point lookup for %s: %w", p.Employee, err)
	}
	if err == nil {
		dt := now.Unix() - prev.TS
		if dt > 0 {
			dist := math.Hypot(p.Lat-prev.Lat, p.Lon-prev.Lon) * metersPerDegree
			kmh := dist / float64(dt) * 3.6
			speed = &kmh
			if kmh > s.thresholds.MaxJumpSpeedKmh {
				valid = false
			}
		}
	}

	point := model.TrackPoint{
		Employee:    p.Employee,
		PrincipalID: p.PrincipalID,
		ShiftID:     shiftID,
		TS:          now.Unix(),
		Lat:         p.Lat,
		Lon:         p.Lon,
		Accuracy:    p.Accuracy,
		Source:      p.Source,
		SpeedKmh:    speed,
		IsValid:     valid,
	}
	if err := s.db.WithContext(ctx).Create(&point).Error; err != nil {
		return false, fmt.Errorf("insert point for %s: %w", p.Employee, err)
	}

	if valid {
		last := model.LastPosition{
			Employee: p.Employee,
			TS:       now.Unix(),
			Lat:      p.Lat,
			Lon:      p.Lon,
			Accuracy: p.Accuracy,
			Source:   p.Source,
		}
		// Monotonic guard: an older point never overwrites a newer cache row.
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "employee"}},
			DoUpdates: clause.AssignmentColumns([]string{"ts", "lat", "lon", "accuracy", "source"}),
			Where:     clause.Where{Exprs: []clause.Expression{gorm.Expr("excluded.ts >= last_positions.ts")}},
		}).Create(&last).Error
		if err != nil {
			return false, fmt.Errorf("upsert last position for %s: %w", p.Employee, err)
		}
	}
	return true, nil
}

func (s *gormStore) LastPositions(ctx context.Context, now time.Time) ([]Snapshot, error) {
	var rows []model.LastPosition
	if err := s.db.WithContext(ctx).Order("employee").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("last positions: %w", err)
	}

	out := make([]Snapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, Snapshot{
			Employee:  r.Employee,
			TS:        r.TS,
			Lat:       r.Lat,
			Lon:       r.Lon,
			Accuracy:  r.Accuracy,
			Freshness: freshness(now.Unix() - r.TS),
		})
	}
	return out, nil
}

func freshness(ageSeconds int64) string {
	switch {
	case ageSeconds <= 300:
		return FreshnessFresh
	case ageSeconds <= 1800:
		return FreshnessStale
	default:
		return FreshnessExpired
	}
}

// Track returns the valid points of one employee within [day, day+1),
// ordered by timestamp.
func (s *gormStore) Track(ctx context.Context, employee string, day time.Time) ([]TrackPoint, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()).Unix()
	end := start + 86400

	var rows []model.TrackPoint
	err := s.db.WithContext(ctx).
		Where("employee = ? AND is_valid = ? AND ts >= ? AND ts < ?", employee, true, start, end).
		Order("ts").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("track for %s: %w", employee, err)
	}

	out := make([]TrackPoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, TrackPoint{TS: r.TS, Lat: r.Lat, Lon: r.Lon, Accuracy: r.Accuracy})
	}
	return out, nil
}

// Cleanup deletes points and cached positions older than the retention
// window. Intended for the background sweeper, not the request path.
func (s *gormStore) Cleanup(ctx context.Context, retentionDays int, now time.Time) error {
	cutoff := now.Unix() - int64(retentionDays)*86400

	if err := s.db.WithContext(ctx).Where("ts < ?", cutoff).Delete(&model.TrackPoint{}).Error; err != nil {
		return fmt.Errorf("cleanup points: %w", err)
	}
	if err := s.db.WithContext(ctx).Where("ts < ?", cutoff).Delete(&model.LastPosition{}).Error; err != nil {
		return fmt.Errorf("cleanup last positions: %w", err)
	}
	return nil
}
