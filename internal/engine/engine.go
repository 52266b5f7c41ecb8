// Package engine implements the shift state machine over the timesheet
// ledger: it resolves an (employee, date) pair to a cell, interprets the
// cell's current text as a state, and applies the requested transition with
// its marker colors, side-date writes, tracking calls and notifications.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"shift-tracker-backend/internal/ledger"
	"shift-tracker-backend/internal/notification"
	"shift-tracker-backend/internal/org"
	"shift-tracker-backend/internal/timeutil"
	"shift-tracker-backend/internal/tracking"
)

var (
	// ErrInvalidTransition signals an action that violates the cell's current
	// state, e.g. starting twice on the same day.
	ErrInvalidTransition = errors.New("invalid shift transition")
	// ErrMissingGeolocation signals a start/end attempt without coordinates.
	ErrMissingGeolocation = errors.New("geolocation required")
	// ErrInvalidDate signals malformed or missing date/time input.
	ErrInvalidDate = errors.New("invalid date")
)

// Actions accepted by Check.
const (
	ActionStart = "start"
	ActionEnd   = "end"
	ActionLeft  = "left"
	ActionSick  = "sick"
)

const dayLayout = "2006-01-02"

const (
	fullDay   = 8 * 60 // minutes credited for a full working day
	halfDay   = 4 * 60 // minimum credit for leaving without a start
	sickFloor = 6 * 60
)

// CellLocator resolves an employee name to a row and a date to a column.
type CellLocator interface {
	FindRow(name string) (int, error)
	FindColumn(date time.Time) (int, error)
}

// Tracker is the slice of the geotracking store the engine drives.
type Tracker interface {
	OpenShift(ctx context.Context, employee string, now time.Time) error
	CloseShift(ctx context.Context, employee string, now time.Time) error
	InsertPoint(ctx context.Context, p tracking.PointInput, now time.Time) (bool, error)
}

// Pusher queues a supervisor push notification; nil disables pushes.
type Pusher interface {
	Dispatch(job notification.PushJob)
}

// Engine applies shift transitions. A per-cell mutex serializes the
// read-then-write round trip so two racing actions cannot both observe the
// same pre-write cell state.
type Engine struct {
	ledger  ledger.Ledger
	locator CellLocator
	tracker Tracker
	dir     org.Directory
	chat    notification.ChatSender
	push    Pusher

	mu    sync.Mutex
	locks map[cellKey]*sync.Mutex
}

type cellKey struct{ row, col int }

// New builds an engine over its collaborators. push may be nil.
func New(l ledger.Ledger, locator CellLocator, tracker Tracker, dir org.Directory, chat notification.ChatSender, push Pusher) *Engine {
	return &Engine{
		ledger:  l,
		locator: locator,
		tracker: tracker,
		dir:     dir,
		chat:    chat,
		push:    push,
		locks:   make(map[cellKey]*sync.Mutex),
	}
}

func (e *Engine) lockCell(row, col int) func() {
	e.mu.Lock()
	k := cellKey{row, col}
	m, ok := e.locks[k]
	if !ok {
		m = &sync.Mutex{}
		e.locks[k] = m
	}
	e.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (e *Engine) dispatch(employee, message string) {
	if e.push == nil {
		return
	}
	e.push.Dispatch(notification.PushJob{Employee: employee, Message: message})
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func parseDay(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(dayLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q, expected YYYY-MM-DD", ErrInvalidDate, s)
	}
	return d, nil
}

// leftMinutes credits a day cut short by leaving: the worked time plus a
// four-hour allowance, capped at a full day unless more was actually worked.
func leftMinutes(actual int) int {
	if actual >= fullDay {
		return actual
	}
	if actual+halfDay > fullDay {
		return fullDay
	}
	return actual + halfDay
}

func sickMinutes(actual int) int {
	if actual > sickFloor {
		return actual
	}
	return sickFloor
}

// CheckRequest is one worker attestation: an action with its photo and
// geolocation payload, plus the date fields of the "left" scenario.
type CheckRequest struct {
	Employee    string
	PrincipalID int64
	Action      string
	Photo       []byte
	Geo         *Geolocation

	// "left" only
	ReturnDate    string
	DepartureDate string
	NotReturning  bool
}

// Check applies a single start/end/left/sick attestation for today and
// reports the outcome. Preconditions are verified before any write; once the
// day cell is written, every remaining step is best-effort and recorded in
// the outcome instead of failing the action.
func (e *Engine) Check(ctx context.Context, req CheckRequest, now time.Time) (*Outcome, error) {
	switch req.Action {
	case ActionStart, ActionEnd, ActionLeft, ActionSick:
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, req.Action)
	}

	if (req.Action == ActionStart || req.Action == ActionEnd) && req.Geo == nil {
		return nil, fmt.Errorf("%w for %s", ErrMissingGeolocation, req.Action)
	}

	var retDay, depDay time.Time
	if req.Action == ActionLeft {
		if !req.NotReturning && (req.ReturnDate == "" || req.DepartureDate == "") {
			return nil, fmt.Errorf("%w: provide both the return and next-departure dates, or the not-returning flag", ErrInvalidDate)
		}
		var err error
		if !req.NotReturning {
			if retDay, err = parseDay(req.ReturnDate, now.Location()); err != nil {
				return nil, err
			}
			if depDay, err = parseDay(req.DepartureDate, now.Location()); err != nil {
				return nil, err
			}
		}
	}

	threadID, ok := e.dir.ThreadFor(req.Employee)
	if !ok {
		return nil, fmt.Errorf("%w: no chat thread for %s", ledger.ErrNotFound, req.Employee)
	}

	row, err := e.locator.FindRow(req.Employee)
	if err != nil {
		return nil, err
	}
	col, err := e.locator.FindColumn(now)
	if err != nil {
		return nil, err
	}

	unlock := e.lockCell(row, col)
	defer unlock()

	raw, err := e.ledger.Cell(row, col)
	if err != nil {
		return nil, err
	}
	cell := timeutil.Classify(raw)

	out := newOutcome(req.Employee, req.Action)
	dateStr := now.Format(dayLayout)

	switch req.Action {
	case ActionStart:
		if cell.State != timeutil.CellEmpty {
			return nil, fmt.Errorf("%w: a record already exists for today: %q", ErrInvalidTransition, cell.Raw)
		}
		clock := now.Format("15:04")
		if err := e.ledger.SetCell(row, col, clock); err != nil {
			return nil, err
		}
		out.Caption = fmt.Sprintf("%s started the day at %s (%s)", req.Employee, clock, dateStr)

		out.record("shift-open", req.Employee, e.tracker.OpenShift(ctx, req.Employee, now))
		p := tracking.PointInput{
			Employee:    req.Employee,
			PrincipalID: req.PrincipalID,
			Lat:         req.Geo.Lat,
			Lon:         req.Geo.Lon,
			Accuracy:    req.Geo.Accuracy,
			Source:      "start",
		}
		_, perr := e.tracker.InsertPoint(ctx, p, now)
		out.record("initial-point", req.Employee, perr)

	case ActionEnd:
		if cell.State != timeutil.CellStarted {
			return nil, fmt.Errorf("%w: no start recorded for today", ErrInvalidTransition)
		}
		mins, err := timeutil.MinutesBetween(cell.ClockIn, "", now, now)
		if err != nil {
			return nil, err
		}
		if err := e.ledger.SetCell(row, col, timeutil.FormatFinal(mins)); err != nil {
			return nil, err
		}
		out.Caption = fmt.Sprintf("%s finished the day: %s worked (%s)", req.Employee, timeutil.FormatClock(mins), dateStr)
		out.record("shift-close", req.Employee, e.tracker.CloseShift(ctx, req.Employee, now))

	case ActionLeft:
		if cell.State == timeutil.CellFinalized || cell.State == timeutil.CellOther {
			return nil, fmt.Errorf("%w: the shift is already closed for today", ErrInvalidTransition)
		}
		final := halfDay
		if cell.State == timeutil.CellStarted {
			actual, err := timeutil.MinutesBetween(cell.ClockIn, "", now, now)
			if err != nil {
				return nil, err
			}
			final = leftMinutes(actual)
		}
		if err := e.ledger.SetCell(row, col, timeutil.FormatFinal(final)); err != nil {
			return nil, err
		}
		out.record("fill", "today", e.ledger.SetFill(row, col, ledger.FillAway))

		if req.NotReturning {
			out.record("thread-message", "not-returning",
				e.chat.SendToThread(ctx, threadID, fmt.Sprintf("%s is not returning", req.Employee)))
		} else {
			e.markDate(ctx, out, threadID, row, retDay, ledger.FillReturn,
				fmt.Sprintf("%s returns on %s", req.Employee, retDay.Format(dayLayout)))
			e.markDate(ctx, out, threadID, row, depDay, ledger.FillDeparture,
				fmt.Sprintf("%s next departure: %s", req.Employee, depDay.Format(dayLayout)))
		}
		out.Caption = fmt.Sprintf("%s left (%s)", req.Employee, dateStr)
		out.record("shift-close", req.Employee, e.tracker.CloseShift(ctx, req.Employee, now))

	case ActionSick:
		if cell.State == timeutil.CellFinalized || cell.State == timeutil.CellOther {
			return nil, fmt.Errorf("%w: the shift is already closed or marked for today", ErrInvalidTransition)
		}
		final := sickFloor
		if cell.State == timeutil.CellStarted {
			actual, err := timeutil.MinutesBetween(cell.ClockIn, "", now, now)
			if err != nil {
				return nil, err
			}
			final = sickMinutes(actual)
		}
		if err := e.ledger.SetCell(row, col, timeutil.FormatFinal(final)); err != nil {
			return nil, err
		}
		out.record("fill", "today", e.ledger.SetFill(row, col, ledger.FillSick))
		out.Caption = fmt.Sprintf("%s is on sick leave (%s)", req.Employee, dateStr)
		out.record("shift-close", req.Employee, e.tracker.CloseShift(ctx, req.Employee, now))
	}

	if req.Geo != nil {
		out.Caption += "\n" + req.Geo.SummaryLine()
	}

	if len(req.Photo) > 0 {
		out.record("photo", "thread", e.chat.SendPhotoToThread(ctx, threadID, req.Photo, out.Caption))
	} else {
		out.record("thread-message", "thread", e.chat.SendToThread(ctx, threadID, out.Caption))
	}
	e.dispatch(req.Employee, firstLine(out.Caption))

	return out, nil
}

// markDate blanks a side-date cell and marks it with the given fill, then
// announces the date in the employee's thread. Each step is independently
// best-effort; a failed side date never undoes the day's main write.
func (e *Engine) markDate(ctx context.Context, out *Outcome, threadID int64, row int, day time.Time, fill ledger.Fill, message string) {
	target := day.Format(dayLayout)
	col, err := e.locator.FindColumn(day)
	if err != nil {
		out.record("date-cell", target, err)
		return
	}
	if err := e.ledger.SetCell(row, col, ""); err != nil {
		out.record("date-cell", target, err)
		return
	}
	out.record("date-cell", target, e.ledger.SetFill(row, col, fill))
	out.record("thread-message", target, e.chat.SendToThread(ctx, threadID, message))
}

// BrigadeRequest is a bulk attestation: one supervisor applies start or end
// to a set of employees with a single shared photo and geolocation.
type BrigadeRequest struct {
	Action    string
	Employees []string
	Photo     []byte
	Geo       *Geolocation
}

// BrigadeCheck applies the action independently per employee and collects a
// per-employee result list. One employee's failure never aborts the rest.
func (e *Engine) BrigadeCheck(ctx context.Context, req BrigadeRequest, now time.Time) (*BatchOutcome, error) {
	if req.Action != ActionStart && req.Action != ActionEnd {
		return nil, fmt.Errorf("%w: unknown brigade action %q", ErrInvalidTransition, req.Action)
	}
	if len(req.Employees) == 0 {
		return nil, fmt.Errorf("no employees selected")
	}
	if req.Geo == nil {
		return nil, fmt.Errorf("%w for brigade %s", ErrMissingGeolocation, req.Action)
	}

	batch := &BatchOutcome{ID: uuid.NewString()}
	for _, person := range req.Employees {
		out, err := e.Check(ctx, CheckRequest{
			Employee: person,
			Action:   req.Action,
			Photo:    req.Photo,
			Geo:      req.Geo,
		}, now)
		if err != nil {
			batch.Results = append(batch.Results, BatchResult{Employee: person, Status: "error", Message: err.Error()})
			continue
		}
		batch.Results = append(batch.Results, BatchResult{Employee: person, Status: "ok", Message: firstLine(out.Caption)})
	}
	return batch, nil
}

// AdjustTimeRequest is a supervisor's direct edit of a day's start/end.
type AdjustTimeRequest struct {
	Editor    string
	Person    string
	Date      string
	StartTime string
	EndTime   string
}

// AdjustTime writes supervisor-supplied times into a day cell: both times
// finalize the total, start alone is written verbatim, end alone pairs with
// the existing start. The cell is marked red and an audit note goes to the
// admin chat, separate from the worker-facing thread message.
func (e *Engine) AdjustTime(ctx context.Context, req AdjustTimeRequest, now time.Time) (*Outcome, error) {
	day, err := parseDay(req.Date, now.Location())
	if err != nil {
		return nil, err
	}
	st := strings.TrimSpace(req.StartTime)
	en := strings.TrimSpace(req.EndTime)
	if st != "" && !timeutil.IsClock(st) {
		return nil, fmt.Errorf("%w: start time %q, expected HH:MM", ErrInvalidDate, st)
	}
	if en != "" && !timeutil.IsClock(en) {
		return nil, fmt.Errorf("%w: end time %q, expected HH:MM", ErrInvalidDate, en)
	}
	if st == "" && en == "" {
		return nil, fmt.Errorf("%w: neither start nor end time given", ErrInvalidDate)
	}

	row, err := e.locator.FindRow(req.Person)
	if err != nil {
		return nil, err
	}
	col, err := e.locator.FindColumn(day)
	if err != nil {
		return nil, err
	}

	unlock := e.lockCell(row, col)
	defer unlock()

	raw, err := e.ledger.Cell(row, col)
	if err != nil {
		return nil, err
	}
	cell := timeutil.Classify(raw)

	var note string
	switch {
	case st != "" && en != "":
		mins, err := timeutil.MinutesBetween(st, en, day, now)
		if err != nil {
			return nil, err
		}
		if err := e.ledger.SetCell(row, col, timeutil.FormatFinal(mins)); err != nil {
			return nil, err
		}
		note = fmt.Sprintf("%s-%s -> %s", st, en, timeutil.FormatClock(mins))
	case st != "":
		if err := e.ledger.SetCell(row, col, st); err != nil {
			return nil, err
		}
		note = fmt.Sprintf("start = %s", st)
	default:
		if cell.State != timeutil.CellStarted {
			return nil, fmt.Errorf("%w: no start recorded to pair with the new end", ErrInvalidTransition)
		}
		mins, err := timeutil.MinutesBetween(cell.ClockIn, en, day, now)
		if err != nil {
			return nil, err
		}
		if err := e.ledger.SetCell(row, col, timeutil.FormatFinal(mins)); err != nil {
			return nil, err
		}
		note = fmt.Sprintf("%s-%s -> %s", cell.ClockIn, en, timeutil.FormatClock(mins))
	}

	out := newOutcome(req.Person, "adjust-time")
	out.Caption = fmt.Sprintf("Manual edit: %s changed %s on %s -> %s", req.Editor, req.Person, day.Format(dayLayout), note)
	out.record("fill", "manual", e.ledger.SetFill(row, col, ledger.FillManual))

	was := cell.Raw
	if strings.TrimSpace(was) == "" {
		was = "empty"
	}
	out.record("admin-message", "audit",
		e.chat.NotifyAdmin(ctx, fmt.Sprintf("Manual edit: %s changed %s on %s (was %q, now %s)", req.Editor, req.Person, day.Format(dayLayout), was, note)))
	e.notifyThread(ctx, out, req.Person, fmt.Sprintf("Manual edit by %s for %s: %s", req.Editor, day.Format(dayLayout), note))
	e.dispatch(req.Person, firstLine(out.Caption))

	return out, nil
}

// AdjustStatusRequest is a supervisor's retroactive sick/left override.
type AdjustStatusRequest struct {
	Editor        string
	Person        string
	Date          string
	Status        string // "sick" or "left"
	ReturnDate    string
	NextDeparture string
}

// AdjustStatus reapplies the sick or left arithmetic on whatever the day
// cell currently holds, marks the cell red, and optionally writes the
// return/next-departure date markers the same way the worker "left" flow
// does.
func (e *Engine) AdjustStatus(ctx context.Context, req AdjustStatusRequest, now time.Time) (*Outcome, error) {
	if req.Status != ActionSick && req.Status != ActionLeft {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, req.Status)
	}
	day, err := parseDay(req.Date, now.Location())
	if err != nil {
		return nil, err
	}
	var retDay, depDay time.Time
	if req.ReturnDate != "" {
		if retDay, err = parseDay(req.ReturnDate, now.Location()); err != nil {
			return nil, err
		}
	}
	if req.NextDeparture != "" {
		if depDay, err = parseDay(req.NextDeparture, now.Location()); err != nil {
			return nil, err
		}
	}

	row, err := e.locator.FindRow(req.Person)
	if err != nil {
		return nil, err
	}
	col, err := e.locator.FindColumn(day)
	if err != nil {
		return nil, err
	}

	unlock := e.lockCell(row, col)
	defer unlock()

	raw, err := e.ledger.Cell(row, col)
	if err != nil {
		return nil, err
	}
	cell := timeutil.Classify(raw)

	// The override arithmetic reuses whatever content is present: a started
	// cell contributes its elapsed minutes, a finalized cell its recorded
	// total, anything else counts as no start.
	actual := -1
	switch cell.State {
	case timeutil.CellStarted:
		if actual, err = timeutil.MinutesBetween(cell.ClockIn, "", day, now); err != nil {
			return nil, err
		}
	case timeutil.CellFinalized:
		actual = cell.Minutes
	}

	var final int
	var note string
	if req.Status == ActionSick {
		final = sickFloor
		if actual >= 0 {
			final = sickMinutes(actual)
		}
		note = fmt.Sprintf("sick leave -> %s", timeutil.FormatClock(final))
	} else {
		final = halfDay
		if actual >= 0 {
			final = leftMinutes(actual)
		}
		note = fmt.Sprintf("left -> %s", timeutil.FormatClock(final))
	}
	if err := e.ledger.SetCell(row, col, timeutil.FormatFinal(final)); err != nil {
		return nil, err
	}

	out := newOutcome(req.Person, "adjust-status")
	out.Caption = fmt.Sprintf("Manual status edit: %s set %s on %s: %s", req.Editor, req.Person, day.Format(dayLayout), note)
	out.record("fill", "manual", e.ledger.SetFill(row, col, ledger.FillManual))

	if req.Status == ActionSick {
		e.notifyThread(ctx, out, req.Person, fmt.Sprintf("%s: sick leave (%s)", req.Person, day.Format(dayLayout)))
	} else {
		e.notifyThread(ctx, out, req.Person, fmt.Sprintf("%s: left (%s)", req.Person, day.Format(dayLayout)))
	}

	threadID, hasThread := e.dir.ThreadFor(req.Person)
	extras := make([]string, 0, 2)
	if req.ReturnDate != "" {
		msg := fmt.Sprintf("%s returns on %s", req.Person, retDay.Format(dayLayout))
		if hasThread {
			e.markDate(ctx, out, threadID, row, retDay, ledger.FillReturn, msg)
		}
		extras = append(extras, fmt.Sprintf("returns %s", retDay.Format(dayLayout)))
	}
	if req.NextDeparture != "" {
		msg := fmt.Sprintf("%s next departure: %s", req.Person, depDay.Format(dayLayout))
		if hasThread {
			e.markDate(ctx, out, threadID, row, depDay, ledger.FillDeparture, msg)
		}
		extras = append(extras, fmt.Sprintf("next departure %s", depDay.Format(dayLayout)))
	}

	audit := out.Caption
	if len(extras) > 0 {
		audit += " | " + strings.Join(extras, "; ")
	}
	out.record("admin-message", "audit", e.chat.NotifyAdmin(ctx, audit))
	e.dispatch(req.Person, firstLine(out.Caption))

	return out, nil
}

// notifyThread sends a worker-facing thread message, recording a missing
// thread mapping as a failed effect rather than aborting the edit.
func (e *Engine) notifyThread(ctx context.Context, out *Outcome, person, message string) {
	threadID, ok := e.dir.ThreadFor(person)
	if !ok {
		out.record("thread-message", person, fmt.Errorf("no chat thread for %s", person))
		return
	}
	out.record("thread-message", person, e.chat.SendToThread(ctx, threadID, message))
}
