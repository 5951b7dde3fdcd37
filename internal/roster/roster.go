// Package roster loads the list of affiliated researchers whose names are
// matched against scraped author lists.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

// Column headers the roster sheet must carry.
const (
	FirstNameColumn = "First Name"
	LastNameColumn  = "Last Name"
)

// Format identifies the roster file encoding.
type Format string

// Supported formats.
const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ErrMissingColumns is returned when the header row lacks a name column.
var ErrMissingColumns = errors.New("roster must have First Name and Last Name columns")

// placeholders are the textual renderings of empty spreadsheet cells.
var placeholders = map[string]struct{}{
	"nan":  {},
	"nat":  {},
	"none": {},
	"<na>": {},
	"null": {},
}

// FormatFromName infers the format from a file name, defaulting to xlsx.
func FormatFromName(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV
	default:
		return FormatXLSX
	}
}

// Load parses a roster and returns "First Last" names in first-seen order.
func Load(r io.Reader, format Format) ([]string, error) {
	var (
		rows [][]string
		err  error
	)
	switch format {
	case FormatCSV:
		rows, err = readCSV(r)
	case FormatXLSX, "":
		rows, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("unsupported roster format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return namesFromRows(rows)
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read roster csv: %w", err)
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open roster workbook: %w", err)
	}
	defer book.Close() //nolint:errcheck // read-only workbook
	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("roster workbook has no sheets")
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read roster sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func namesFromRows(rows [][]string) ([]string, error) {
	if len(rows) == 0 {
		return nil, ErrMissingColumns
	}
	first, last := -1, -1
	for i, cell := range rows[0] {
		switch strings.TrimSpace(cell) {
		case FirstNameColumn:
			first = i
		case LastNameColumn:
			last = i
		}
	}
	if first < 0 || last < 0 {
		return nil, ErrMissingColumns
	}
	seen := make(map[string]struct{})
	names := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		firstName, ok := cell(row, first)
		if !ok {
			continue
		}
		lastName, ok := cell(row, last)
		if !ok {
			continue
		}
		name := firstName + " " + lastName
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

func cell(row []string, idx int) (string, bool) {
	if idx >= len(row) {
		return "", false
	}
	v := strings.TrimSpace(row[idx])
	if isBlank(v) {
		return "", false
	}
	return v, true
}

// isBlank reports whether a trimmed value is empty or a null placeholder.
func isBlank(v string) bool {
	if v == "" {
		return true
	}
	_, ok := placeholders[strings.ToLower(v)]
	return ok
}

// Store holds the active roster. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	names []string
}

// NewStore returns a store seeded with names.
func NewStore(names ...string) *Store {
	s := &Store{}
	s.Replace(names)
	return s
}

// Replace swaps the roster, trimming and dropping blanks, null placeholders
// and duplicates.
func (s *Store) Replace(names []string) {
	clean := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if isBlank(n) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		clean = append(clean, n)
	}
	s.mu.Lock()
	s.names = clean
	s.mu.Unlock()
}

// LoadFrom parses r and replaces the roster with the result.
func (s *Store) LoadFrom(r io.Reader, format Format) (int, error) {
	names, err := Load(r, format)
	if err != nil {
		return 0, err
	}
	if len(names) == 0 {
		return 0, crawler.ErrEmptyRoster
	}
	s.Replace(names)
	return len(names), nil
}

// Names returns a copy of the roster.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.names...)
}

// Len reports the roster size.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}
