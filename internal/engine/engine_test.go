package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shift-tracker-backend/internal/ledger"
	"shift-tracker-backend/internal/notification"
	"shift-tracker-backend/internal/tracking"
)

// fakeLedger is an in-memory cell grid standing in for the workbook.
type fakeLedger struct {
	cells map[cellKey]string
	fills map[cellKey]ledger.Fill
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{cells: make(map[cellKey]string), fills: make(map[cellKey]ledger.Fill)}
}

func (f *fakeLedger) Cell(row, col int) (string, error) { return f.cells[cellKey{row, col}], nil }
func (f *fakeLedger) SetCell(row, col int, value string) error {
	f.cells[cellKey{row, col}] = value
	return nil
}
func (f *fakeLedger) SetFill(row, col int, fill ledger.Fill) error {
	f.fills[cellKey{row, col}] = fill
	return nil
}
func (f *fakeLedger) RowValues(row int) ([]string, error)    { return nil, nil }
func (f *fakeLedger) ColumnValues(col int) ([]string, error) { return nil, nil }

// stubLocator maps names to rows and dates to sequential day columns.
type stubLocator struct {
	rows map[string]int
}

func (s *stubLocator) FindRow(name string) (int, error) {
	row, ok := s.rows[name]
	if !ok {
		return 0, fmt.Errorf("employee %q: %w", name, ledger.ErrNotFound)
	}
	return row, nil
}

func (s *stubLocator) FindColumn(date time.Time) (int, error) {
	return 1 + date.Day(), nil
}

type fakeTracker struct {
	opened []string
	closed []string
	points []tracking.PointInput
}

func (f *fakeTracker) OpenShift(ctx context.Context, employee string, now time.Time) error {
	f.opened = append(f.opened, employee)
	return nil
}

func (f *fakeTracker) CloseShift(ctx context.Context, employee string, now time.Time) error {
	f.closed = append(f.closed, employee)
	return nil
}

func (f *fakeTracker) InsertPoint(ctx context.Context, p tracking.PointInput, now time.Time) (bool, error) {
	f.points = append(f.points, p)
	return true, nil
}

type sentMessage struct {
	ThreadID int64
	Text     string
}

type fakeChat struct {
	messages []sentMessage
	photos   []sentMessage
	admin    []string
	sendErr  error
}

func (f *fakeChat) SendToThread(ctx context.Context, threadID int64, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages = append(f.messages, sentMessage{threadID, text})
	return nil
}

func (f *fakeChat) SendPhotoToThread(ctx context.Context, threadID int64, photo []byte, caption string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.photos = append(f.photos, sentMessage{threadID, caption})
	return nil
}

func (f *fakeChat) NotifyAdmin(ctx context.Context, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.admin = append(f.admin, text)
	return nil
}

// fakeDir maps names to thread ids; the rest of the directory is unused here.
type fakeDir struct {
	threads map[string]int64
}

func (f *fakeDir) ThreadFor(name string) (int64, bool) {
	id, ok := f.threads[name]
	return id, ok
}
func (f *fakeDir) BrigadeOf(name string) (string, bool)     { return "", false }
func (f *fakeDir) Teammates(name string) []string           { return nil }
func (f *fakeDir) NameForPrincipal(id int64) (string, bool) { return "", false }
func (f *fakeDir) Names() []string                          { return nil }
func (f *fakeDir) Reload(ctx context.Context) error         { return nil }

type fakePusher struct {
	jobs []notification.PushJob
}

func (f *fakePusher) Dispatch(job notification.PushJob) { f.jobs = append(f.jobs, job) }

type fixture struct {
	ledger  *fakeLedger
	tracker *fakeTracker
	chat    *fakeChat
	push    *fakePusher
	engine  *Engine
}

const worker = "Иванов Пётр Сергеевич"

func newFixture() *fixture {
	fl := newFakeLedger()
	tr := &fakeTracker{}
	ch := &fakeChat{}
	ps := &fakePusher{}
	dir := &fakeDir{threads: map[string]int64{
		worker:                   101,
		"Смирнова Анна Павловна": 102,
		"Кузнецов Олег Игоревич": 103,
	}}
	loc := &stubLocator{rows: map[string]int{
		worker:                   4,
		"Смирнова Анна Павловна": 5,
		"Кузнецов Олег Игоревич": 6,
		"Без Треда Сотрудник":    7,
	}}
	return &fixture{
		ledger:  fl,
		tracker: tr,
		chat:    ch,
		push:    ps,
		engine:  New(fl, loc, tr, dir, ch, ps),
	}
}

func geo() *Geolocation {
	acc := 12.0
	return &Geolocation{Lat: 55.75, Lon: 37.62, Accuracy: &acc}
}

// day column for November 4th under the stub locator
var todayCell = cellKey{4, 5}

func at(hour, min int) time.Time {
	return time.Date(2025, time.November, 4, hour, min, 0, 0, time.UTC)
}

func TestCheck_Start(t *testing.T) {
	f := newFixture()

	out, err := f.engine.Check(context.Background(), CheckRequest{
		Employee: worker,
		Action:   ActionStart,
		Photo:    []byte("jpeg"),
		Geo:      geo(),
	}, at(8, 30))
	require.NoError(t, err)

	assert.Equal(t, "08:30", f.ledger.cells[todayCell])
	assert.Equal(t, []string{worker}, f.tracker.opened)
	require.Len(t, f.tracker.points, 1)
	assert.Equal(t, "start", f.tracker.points[0].Source)

	require.Len(t, f.chat.photos, 1)
	assert.Equal(t, int64(101), f.chat.photos[0].ThreadID)
	assert.Contains(t, f.chat.photos[0].Text, "started the day at 08:30")
	assert.Contains(t, f.chat.photos[0].Text, "55.75000,37.62000")
	assert.Contains(t, f.chat.photos[0].Text, "±12 m")

	require.Len(t, f.push.jobs, 1)
	assert.Equal(t, worker, f.push.jobs[0].Employee)
	assert.NotEmpty(t, out.ID)
	for _, eff := range out.Effects {
		assert.True(t, eff.OK, "effect %s/%s failed: %s", eff.Kind, eff.Target, eff.Error)
	}
}

func TestCheck_DoubleStartRejected(t *testing.T) {
	f := newFixture()
	f.ledger.cells[todayCell] = "08:30"

	_, err := f.engine.Check(context.Background(), CheckRequest{
		Employee: worker,
		Action:   ActionStart,
		Geo:      geo(),
	}, at(9, 0))
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "08:30", f.ledger.cells[todayCell])
	assert.Empty(t, f.tracker.opened)
}

func TestCheck_StartRequiresGeolocation(t *testing.T) {
	f := newFixture()

	_, err := f.engine.Check(context.Background(), CheckRequest{
		Employee: worker,
		Action:   ActionStart,
	}, at(8, 30))
	require.ErrorIs(t, err, ErrMissingGeolocation)
	assert.Empty(t, f.ledger.cells)
}

func TestCheck_EndComputesTotal(t *testing.T) {
	f := newFixture()
	f.ledger.cells[todayCell] = "08:30"

	out, err := f.engine.Check(context.Background(), CheckRequest{
		Employee: worker,
		Action:   ActionEnd,
		Geo:      geo(),
	}, at(17, 45))
	require.NoError(t, err)

	assert.Equal(t, "H:09:15", f.ledger.cells[todayCell])
	assert.Equal(t, []string{worker}, f.tracker.closed)
	assert.Contains(t, out.Caption, "09:15 worked")
}

func TestCheck_EndWithoutStartRejected(t *testing.T) {
	f := newFixture()

	_, err := f.engine.Check(context.Background(), CheckRequest{
		Employee: worker,
		Action:   ActionEnd,
		Geo:      geo(),
	}, at(17, 45))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCheck_SickFloor(t *testing.T) {
	f := newFixture()
	f.ledger.cells[todayCell] = "09:00"

	// 5h actual is below the 6h floor, the floor wins.
	_, err := f.engine.Check(context.Background(), CheckRequest{
		Employee: worker,
		Action:   ActionSick,
	}, at(14, 0))
	require.NoError(t, err)

	assert.Equal(t, "H:06:00", f.ledger.cells[todayCell])
	assert.Equal(t, ledger.FillSick, f.ledger.fills[todayCell])
	assert.Equal(t, []string{worker}, f.tracker.closed)
}

func TestCheck_SickAboveFloorKeepsActual(t *testing.T) {
	f := newFixture()
	f.ledger.cells[todayCell] = "08:00"

	_, err := f.engine.Check(context.Background(), CheckRequest{
		Employee: worker,
		Action:   ActionSick,
	}, at(15, 30))
	require.NoError(t, err)
	assert.Equal(t, "H:07:30", f.ledger.cells[todayCell])
}

func TestCheck_LeftWithDates(t *testing.T) {
	f := newFixture()
	f.ledger.cells[todayCell] = "09:00"

	out, err := f.engine.Check(context.Background(), CheckRequest{
		Employee:      worker,
		Action:        ActionLeft,
		ReturnDate:    "2025-11-10",
		DepartureDate: "2025-11-20",
	}, at(12, 0))
	require.NoError(t, err)

	// 3h worked, allowance of 4h, capped well under a full day.
	assert.Equal(t, "H:07:00", f.ledger.cells[todayCell])
	assert.Equal(t, ledger.FillAway, f.ledger.fills[todayCell])

	retCell := cellKey{4, 11}
	depCell := cellKey{4, 21}
	assert.Equal(t, "", f.ledger.cells[retCell])
	assert.Equal(t, ledger.FillReturn, f.ledger.fills[retCell])
	assert.Equal(t, ledger.FillDeparture, f.ledger.fills[depCell])

	var texts []string
	for _, m := range f.chat.messages {
		texts = append(texts, m.Text)
	}
	assert.Contains(t, texts, worker+" returns on 2025-11-10")
	assert.Contains(t, texts, worker+" next departure: 2025-11-20")
	assert.Equal(t, []string{worker}, f.tracker.closed)
	for _, eff := range out.Effects {
		assert.True(t, eff.OK, "effect %s/%s failed: %s", eff.Kind, eff.Target, eff.Error)
	}
}

func TestCheck_LeftPastFullDayKeepsActual(t *testing.T) {
	f := newFixture()
	f.ledger.cells[todayCell] = "08:00"

	_, err := f.engine.Check(context.Background(), CheckRequest{
		Employee:     worker,
		Action:       ActionLeft,
		NotReturning: true,
	}, at(17, 15))
	require.NoError(t, err)
	assert.Equal(t, "H:09:15", f.ledger.cells[todayCell])
}

func TestCheck_LeftWithoutStartCreditsHalfDay(t *testing.T) {
	f := newFixture()

	_, err := f.engine.Check(context.Background(), CheckRequest{
		Employee:     worker,
		Action:       ActionLeft,
		NotReturning: true,
	}, at(10, 0))
	require.NoError(t, err)

	assert.Equal(t, "H:04:00", f.ledger.cells[todayCell])
	var texts []string
	for _, m := range f.chat.messages {
		texts = append(texts, m.Text)
	}
	assert.Contains(t, texts, worker+" is not returning")
}

func TestCheck_LeftRequiresDatesOrFlag(t *testing.T) {
	f := newFixture()

	_, err := f.engine.Check(context.Background(), CheckRequest{
		Employee: worker,
		Action:   ActionLeft,
	}, at(10, 0))
	require.ErrorIs(t, err, ErrInvalidDate)
	assert.Empty(t, f.ledger.cells)
}

func TestCheck_LeftOnClosedCellRejected(t *testing.T) {
	f := newFixture()
	f.ledger.cells[todayCell] = "H:08:00"

	_, err := f.engine.Check(context.Background(), CheckRequest{
		Employee:     worker,
		Action:       ActionLeft,
		NotReturning: true,
	}, at(10, 0))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCheck_NoThreadMappingRejectedBeforeWrite(t *testing.T) {
	f := newFixture()

	_, err := f.engine.Check(context.Background(), CheckRequest{
		Employee: "Без Треда Сотрудник",
		Action:   ActionStart,
		Geo:      geo(),
	}, at(8, 0))
	require.ErrorIs(t, err, ledger.ErrNotFound)
	assert.Empty(t, f.ledger.cells)
}

func TestCheck_NotificationFailureIsReportedNotFatal(t *testing.T) {
	f := newFixture()
	f.chat.sendErr = errors.New("bot API down")

	out, err := f.engine.Check(context.Background(), CheckRequest{
		Employee: worker,
		Action:   ActionStart,
		Photo:    []byte("jpeg"),
		Geo:      geo(),
	}, at(8, 30))
	require.NoError(t, err)

	// the ledger write stands even though delivery failed
	assert.Equal(t, "08:30", f.ledger.cells[todayCell])

	var failed bool
	for _, eff := range out.Effects {
		if eff.Kind == "photo" && !eff.OK {
			failed = true
			assert.Contains(t, eff.Error, "bot API down")
		}
	}
	assert.True(t, failed, "expected a failed photo effect in the outcome")
}

func TestBrigadeCheck_PartialSuccess(t *testing.T) {
	f := newFixture()

	batch, err := f.engine.BrigadeCheck(context.Background(), BrigadeRequest{
		Action:    ActionStart,
		Employees: []string{worker, "Смирнова Анна Павловна", "Без Треда Сотрудник"},
		Photo:     []byte("jpeg"),
		Geo:       geo(),
	}, at(7, 55))
	require.NoError(t, err)
	require.Len(t, batch.Results, 3)
	assert.NotEmpty(t, batch.ID)

	var ok, failed int
	for _, r := range batch.Results {
		switch r.Status {
		case "ok":
			ok++
		case "error":
			failed++
			assert.Equal(t, "Без Треда Сотрудник", r.Employee)
		}
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)

	// the two resolvable employees were written despite the third failing
	assert.Equal(t, "07:55", f.ledger.cells[todayCell])
	assert.Equal(t, "07:55", f.ledger.cells[cellKey{5, 5}])
	_, wrote := f.ledger.cells[cellKey{7, 5}]
	assert.False(t, wrote)
}

func TestBrigadeCheck_RequiresGeolocation(t *testing.T) {
	f := newFixture()

	_, err := f.engine.BrigadeCheck(context.Background(), BrigadeRequest{
		Action:    ActionEnd,
		Employees: []string{worker},
	}, at(18, 0))
	require.ErrorIs(t, err, ErrMissingGeolocation)
}

func TestAdjustTime_BothTimes(t *testing.T) {
	f := newFixture()
	f.ledger.cells[todayCell] = "H:03:00"

	out, err := f.engine.AdjustTime(context.Background(), AdjustTimeRequest{
		Editor:    "Смирнова Анна Павловна",
		Person:    worker,
		Date:      "2025-11-04",
		StartTime: "08:00",
		EndTime:   "16:30",
	}, at(19, 0))
	require.NoError(t, err)

	assert.Equal(t, "H:08:30", f.ledger.cells[todayCell])
	assert.Equal(t, ledger.FillManual, f.ledger.fills[todayCell])
	require.Len(t, f.chat.admin, 1)
	assert.Contains(t, f.chat.admin[0], `was "H:03:00"`)
	require.Len(t, f.chat.messages, 1)
	assert.Equal(t, int64(101), f.chat.messages[0].ThreadID)
	assert.Contains(t, out.Caption, "08:00-16:30 -> 08:30")
}

func TestAdjustTime_StartOnlyWrittenVerbatim(t *testing.T) {
	f := newFixture()

	_, err := f.engine.AdjustTime(context.Background(), AdjustTimeRequest{
		Editor:    "Смирнова Анна Павловна",
		Person:    worker,
		Date:      "2025-11-04",
		StartTime: "9:15",
	}, at(19, 0))
	require.NoError(t, err)
	assert.Equal(t, "9:15", f.ledger.cells[todayCell])
}

func TestAdjustTime_EndOnlyNeedsExistingStart(t *testing.T) {
	f := newFixture()

	_, err := f.engine.AdjustTime(context.Background(), AdjustTimeRequest{
		Editor:  "Смирнова Анна Павловна",
		Person:  worker,
		Date:    "2025-11-04",
		EndTime: "17:00",
	}, at(19, 0))
	require.ErrorIs(t, err, ErrInvalidTransition)

	f.ledger.cells[todayCell] = "08:30"
	_, err = f.engine.AdjustTime(context.Background(), AdjustTimeRequest{
		Editor:  "Смирнова Анна Павловна",
		Person:  worker,
		Date:    "2025-11-04",
		EndTime: "17:00",
	}, at(19, 0))
	require.NoError(t, err)
	assert.Equal(t, "H:08:30", f.ledger.cells[todayCell])
}

func TestAdjustTime_MidnightRollover(t *testing.T) {
	f := newFixture()

	_, err := f.engine.AdjustTime(context.Background(), AdjustTimeRequest{
		Editor:    "Смирнова Анна Павловна",
		Person:    worker,
		Date:      "2025-11-04",
		StartTime: "23:50",
		EndTime:   "00:10",
	}, at(9, 0))
	require.NoError(t, err)
	assert.Equal(t, "H:00:20", f.ledger.cells[todayCell])
}

func TestAdjustTime_RejectsBadInput(t *testing.T) {
	f := newFixture()

	_, err := f.engine.AdjustTime(context.Background(), AdjustTimeRequest{
		Editor: "Смирнова Анна Павловна",
		Person: worker,
		Date:   "04.11.2025",
	}, at(9, 0))
	require.ErrorIs(t, err, ErrInvalidDate)

	_, err = f.engine.AdjustTime(context.Background(), AdjustTimeRequest{
		Editor: "Смирнова Анна Павловна",
		Person: worker,
		Date:   "2025-11-04",
	}, at(9, 0))
	require.ErrorIs(t, err, ErrInvalidDate)
}

func TestAdjustStatus_LeftCapsAllowance(t *testing.T) {
	f := newFixture()
	f.ledger.cells[todayCell] = "09:00"

	out, err := f.engine.AdjustStatus(context.Background(), AdjustStatusRequest{
		Editor: "Смирнова Анна Павловна",
		Person: worker,
		Date:   "2025-11-04",
		Status: ActionLeft,
	}, at(10, 0))
	require.NoError(t, err)

	// 1h worked plus the 4h allowance
	assert.Equal(t, "H:05:00", f.ledger.cells[todayCell])
	assert.Equal(t, ledger.FillManual, f.ledger.fills[todayCell])
	require.Len(t, f.chat.admin, 1)
	assert.Contains(t, out.Caption, "left -> 05:00")
}

func TestAdjustStatus_SickOnFinalizedCell(t *testing.T) {
	f := newFixture()
	f.ledger.cells[todayCell] = "H:04:00"

	_, err := f.engine.AdjustStatus(context.Background(), AdjustStatusRequest{
		Editor: "Смирнова Анна Павловна",
		Person: worker,
		Date:   "2025-11-04",
		Status: ActionSick,
	}, at(12, 0))
	require.NoError(t, err)
	assert.Equal(t, "H:06:00", f.ledger.cells[todayCell])
}

func TestAdjustStatus_SideDates(t *testing.T) {
	f := newFixture()

	_, err := f.engine.AdjustStatus(context.Background(), AdjustStatusRequest{
		Editor:        "Смирнова Анна Павловна",
		Person:        worker,
		Date:          "2025-11-04",
		Status:        ActionLeft,
		ReturnDate:    "2025-11-12",
		NextDeparture: "2025-11-25",
	}, at(12, 0))
	require.NoError(t, err)

	assert.Equal(t, ledger.FillReturn, f.ledger.fills[cellKey{4, 13}])
	assert.Equal(t, ledger.FillDeparture, f.ledger.fills[cellKey{4, 26}])
	require.Len(t, f.chat.admin, 1)
	assert.Contains(t, f.chat.admin[0], "returns 2025-11-12")
	assert.Contains(t, f.chat.admin[0], "next departure 2025-11-25")
}
