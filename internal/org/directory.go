// Package org resolves organizational structure: which chat thread an
// employee reports into, which brigade they belong to, and which principal
// id maps to which display name. Rows live in the database and are served
// from an in-memory snapshot refreshed by Reload, replacing the ambient
// global maps of earlier revisions.
package org

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"

	"shift-tracker-backend/internal/model"
)

// Directory is the read surface used by the engines and handlers.
type Directory interface {
	ThreadFor(name string) (int64, bool)
	BrigadeOf(name string) (string, bool)
	// Teammates returns the other members of name's brigade, sorted; with no
	// brigade set it returns everyone else.
	Teammates(name string) []string
	NameForPrincipal(id int64) (string, bool)
	Names() []string
	Reload(ctx context.Context) error
}

type gormDirectory struct {
	db *gorm.DB

	mu          sync.RWMutex
	byName      map[string]model.Employee
	byPrincipal map[int64]string
}

// NewGormDirectory creates a directory over the employees table. Call Reload
// before first use.
func NewGormDirectory(db *gorm.DB) Directory {
	return &gormDirectory{
		db:          db,
		byName:      make(map[string]model.Employee),
		byPrincipal: make(map[int64]string),
	}
}

func (d *gormDirectory) Reload(ctx context.Context) error {
	var employees []model.Employee
	if err := d.db.WithContext(ctx).Find(&employees).Error; err != nil {
		return fmt.Errorf("reload org directory: %w", err)
	}

	byName := make(map[string]model.Employee, len(employees))
	byPrincipal := make(map[int64]string, len(employees))
	for _, e := range employees {
		byName[e.Name] = e
		byPrincipal[e.PrincipalID] = e.Name
	}

	d.mu.Lock()
	d.byName = byName
	d.byPrincipal = byPrincipal
	d.mu.Unlock()
	return nil
}

func (d *gormDirectory) ThreadFor(name string) (int64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.byName[name]
	if !ok || e.ThreadID == 0 {
		return 0, false
	}
	return e.ThreadID, true
}

func (d *gormDirectory) BrigadeOf(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.byName[name]
	if !ok || e.Brigade == "" {
		return "", false
	}
	return e.Brigade, true
}

func (d *gormDirectory) Teammates(name string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	brigade := d.byName[name].Brigade
	var out []string
	for n, e := range d.byName {
		if n == name {
			continue
		}
		if brigade == "" || e.Brigade == brigade {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func (d *gormDirectory) NameForPrincipal(id int64) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.byPrincipal[id]
	return name, ok
}

func (d *gormDirectory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.byName))
	for n := range d.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
