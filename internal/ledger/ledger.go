// Package ledger provides access to the timesheet workbook: a tabular,
// date-indexed sheet where each employee occupies one row and each calendar
// day one column under a hand-authored month/day header.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrNotFound signals a missing employee row or date column.
	ErrNotFound = errors.New("not found in timesheet")
	// ErrRemoteWrite signals a failed read/write round trip to the workbook.
	ErrRemoteWrite = errors.New("timesheet write failed")
)

// Fill is a semantic background color for a marker cell.
type Fill string

const (
	FillAway      Fill = "FFEECC" // amber: away / left
	FillReturn    Fill = "CCE6FF" // blue: confirmed return date
	FillDeparture Fill = "FFF8CC" // sand: confirmed next departure
	FillSick      Fill = "D9FFD9" // green: sick
	FillManual    Fill = "FFCCCC" // red: manually overridden by supervisor
)

// Ledger is the cell-level read/write surface of the timesheet. Rows and
// columns are 1-based. Implementations are the only writers of cell text;
// color fills are side annotations and never change the text-derived state.
type Ledger interface {
	Cell(row, col int) (string, error)
	SetCell(row, col int, value string) error
	SetFill(row, col int, fill Fill) error
	RowValues(row int) ([]string, error)
	ColumnValues(col int) ([]string, error)
}

// Workbook is the excelize-backed Ledger over a local xlsx file. Every write
// saves the file, so each mutation is a complete round trip like the remote
// spreadsheet it stands in for.
type Workbook struct {
	mu     sync.Mutex
	file   *excelize.File
	sheet  string
	styles map[Fill]int
}

// OpenWorkbook opens the timesheet workbook at path and binds to sheet.
func OpenWorkbook(path, sheet string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open timesheet %s: %w", path, err)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		f.Close()
		return nil, fmt.Errorf("timesheet %s has no sheet %q", path, sheet)
	}
	return &Workbook{file: f, sheet: sheet, styles: make(map[Fill]int)}, nil
}

// Close releases the underlying workbook file.
func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func axis(row, col int) (string, error) {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", fmt.Errorf("%w: bad cell (%d,%d): %v", ErrRemoteWrite, row, col, err)
	}
	return name, nil
}

// Cell returns the trimmed-as-stored text of a cell.
func (w *Workbook) Cell(row, col int) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	a, err := axis(row, col)
	if err != nil {
		return "", err
	}
	v, err := w.file.GetCellValue(w.sheet, a)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrRemoteWrite, a, err)
	}
	return v, nil
}

// SetCell writes a cell's text and saves the workbook.
func (w *Workbook) SetCell(row, col int, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	a, err := axis(row, col)
	if err != nil {
		return err
	}
	if err := w.file.SetCellStr(w.sheet, a, value); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrRemoteWrite, a, err)
	}
	return w.save(a)
}

// SetFill applies a background color to a cell and saves the workbook.
func (w *Workbook) SetFill(row, col int, fill Fill) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	a, err := axis(row, col)
	if err != nil {
		return err
	}
	styleID, ok := w.styles[fill]
	if !ok {
		styleID, err = w.file.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{string(fill)}},
		})
		if err != nil {
			return fmt.Errorf("%w: style %s: %v", ErrRemoteWrite, fill, err)
		}
		w.styles[fill] = styleID
	}
	if err := w.file.SetCellStyle(w.sheet, a, a, styleID); err != nil {
		return fmt.Errorf("%w: fill %s: %v", ErrRemoteWrite, a, err)
	}
	return w.save(a)
}

// RowValues returns the values of a header row; rows past the sheet end are
// empty, not an error.
func (w *Workbook) RowValues(row int) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := w.file.GetRows(w.sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read rows: %v", ErrRemoteWrite, err)
	}
	if row < 1 || row > len(rows) {
		return nil, nil
	}
	return rows[row-1], nil
}

// ColumnValues returns the values of a column, typically the name column.
func (w *Workbook) ColumnValues(col int) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cols, err := w.file.GetCols(w.sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read columns: %v", ErrRemoteWrite, err)
	}
	if col < 1 || col > len(cols) {
		return nil, nil
	}
	return cols[col-1], nil
}

func (w *Workbook) save(a string) error {
	if err := w.file.Save(); err != nil {
		return fmt.Errorf("%w: save after %s: %v", ErrRemoteWrite, a, err)
	}
	return nil
}
