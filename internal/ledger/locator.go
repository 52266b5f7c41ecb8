package ledger

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

var dayNumberRE = regexp.MustCompile(`(\d+)`)

// Locator resolves an employee name to a row index and a calendar date to a
// column index. The header is a hand-authored calendar strip: a row with
// month labels (written once per block, not above every column) followed by
// a row of day numbers restarting at "1" for each month block, and the
// widths of the blocks vary. Resolution therefore walks left to the nearest
// label instead of assuming a fixed grid.
type Locator struct {
	ledger         Ledger
	monthLabels    []string
	nameColumn     int
	headerScanRows int
	cache          *cache.Cache
}

// NewLocator creates a locator over the given ledger. monthLabels holds the
// twelve header labels in month order; matching is a case-insensitive prefix
// match, so "января" matches a header cell "Января 2025".
func NewLocator(l Ledger, monthLabels []string, nameColumn, headerScanRows int, cacheTTL time.Duration) *Locator {
	return &Locator{
		ledger:         l,
		monthLabels:    monthLabels,
		nameColumn:     nameColumn,
		headerScanRows: headerScanRows,
		cache:          cache.New(cacheTTL, 2*cacheTTL),
	}
}

// FindRow returns the 1-based row containing exactly name in the name
// column. The match is case- and whitespace-sensitive.
func (l *Locator) FindRow(name string) (int, error) {
	key := "row:" + name
	if v, ok := l.cache.Get(key); ok {
		return v.(int), nil
	}

	col, err := l.ledger.ColumnValues(l.nameColumn)
	if err != nil {
		return 0, err
	}
	for i, v := range col {
		if v == name {
			row := i + 1
			l.cache.SetDefault(key, row)
			return row, nil
		}
	}
	return 0, fmt.Errorf("%w: employee %q", ErrNotFound, name)
}

// FindColumn returns the 1-based column for the given date.
func (l *Locator) FindColumn(date time.Time) (int, error) {
	key := "col:" + date.Format("2006-01-02")
	if v, ok := l.cache.Get(key); ok {
		return v.(int), nil
	}

	target := strings.ToLower(l.monthLabels[int(date.Month())-1])

	monthRow, dayRow, err := l.findHeaderRows(target)
	if err != nil {
		return 0, err
	}

	months, err := l.ledger.RowValues(monthRow)
	if err != nil {
		return 0, err
	}
	days, err := l.ledger.RowValues(dayRow)
	if err != nil {
		return 0, err
	}
	if len(months) < len(days) {
		months = append(months, make([]string, len(days)-len(months))...)
	}

	// The nearest non-empty month label at or left of position j.
	monthAt := func(j int) string {
		for i := j; i >= 0; i-- {
			if m := strings.ToLower(strings.TrimSpace(months[i])); m != "" {
				return m
			}
		}
		return ""
	}

	// "1" cells mark candidate month-block starts.
	start := -1
	for j, d := range days {
		if strings.TrimSpace(d) == "1" && strings.HasPrefix(monthAt(j), target) {
			start = j
			break
		}
	}
	if start < 0 {
		return 0, fmt.Errorf("%w: no column block for month %q", ErrNotFound, target)
	}

	// The block ends at the next "1" cell or the end of the row.
	end := len(days)
	for j := start + 1; j < len(days); j++ {
		if strings.TrimSpace(days[j]) == "1" {
			end = j
			break
		}
	}

	for j := start; j < end; j++ {
		// Re-validate the label per cell: a sparse label must not drift
		// across the block boundary.
		if !strings.HasPrefix(monthAt(j), target) {
			continue
		}
		m := dayNumberRE.FindStringSubmatch(days[j])
		if m != nil && m[1] == fmt.Sprintf("%d", date.Day()) {
			colIdx := j + 1
			l.cache.SetDefault(key, colIdx)
			return colIdx, nil
		}
	}
	return 0, fmt.Errorf("%w: no column for %s", ErrNotFound, date.Format("2006-01-02"))
}

// findHeaderRows scans the bounded header window for the row holding the
// target month label; the day-number row follows immediately below it.
func (l *Locator) findHeaderRows(target string) (monthRow, dayRow int, err error) {
	for r := 1; r <= l.headerScanRows; r++ {
		vals, err := l.ledger.RowValues(r)
		if err != nil {
			return 0, 0, err
		}
		for _, v := range vals {
			if v != "" && strings.HasPrefix(strings.ToLower(strings.TrimSpace(v)), target) {
				return r, r + 1, nil
			}
		}
	}
	return 0, 0, fmt.Errorf("%w: no header row for month %q", ErrNotFound, target)
}
