// Package roster reads student score sheets from CSV or JSON.
package roster

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pavelanni/pairwise/internal/model"
)

// Format is a score sheet encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

var (
	// ErrEmpty is returned for a sheet without data rows.
	ErrEmpty = errors.New("file is empty or invalid")
	// ErrMissingColumns is returned when a CSV header lacks a name, id or marks column.
	ErrMissingColumns = errors.New("file must contain columns for student name, ID, and marks/scores")
	// ErrUnsupportedFormat is returned for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported roster format (use .csv or .json)")
)

// RowError reports a row whose marks are not numeric. Row is 1-based and
// counts data rows only.
type RowError struct {
	Row   int
	Name  string
	Value string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("invalid marks value %q for student %s at row %d", e.Value, e.Name, e.Row)
}

// FormatFromName picks the format from a file name's extension.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// Load reads the roster file at path.
func Load(path string) ([]model.Student, error) {
	format, err := FormatFromName(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()
	return Parse(f, format)
}

// Parse decodes a roster. Missing ids become "student-N" and missing names
// "Student N", where N is the data row number.
func Parse(r io.Reader, format Format) ([]model.Student, error) {
	switch format {
	case FormatCSV:
		return parseCSV(r)
	case FormatJSON:
		return parseJSON(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

type columns struct {
	id, name, marks int
}

// detectColumns matches headers by substring: id/roll, name (or student),
// mark/score/grade.
func detectColumns(header []string) (columns, error) {
	c := columns{id: -1, name: -1, marks: -1}
	lower := make([]string, len(header))
	for i, h := range header {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}

	for i, h := range lower {
		switch {
		case c.id < 0 && (strings.Contains(h, "id") || strings.Contains(h, "roll")):
			c.id = i
		case c.marks < 0 && (strings.Contains(h, "mark") || strings.Contains(h, "score") || strings.Contains(h, "grade")):
			c.marks = i
		case c.name < 0 && strings.Contains(h, "name"):
			c.name = i
		}
	}
	if c.name < 0 {
		for i, h := range lower {
			if i != c.id && i != c.marks && strings.Contains(h, "student") {
				c.name = i
				break
			}
		}
	}

	if c.id < 0 || c.name < 0 || c.marks < 0 {
		return c, ErrMissingColumns
	}
	return c, nil
}

func parseCSV(r io.Reader) ([]model.Student, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	cols, err := detectColumns(header)
	if err != nil {
		return nil, err
	}

	var students []model.Student
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse CSV: %w", err)
		}
		if blank(rec) {
			continue
		}
		row := len(students) + 1
		name := field(rec, cols.name)
		raw := field(rec, cols.marks)
		marks, ok := parseMarks(raw)
		if !ok {
			return nil, &RowError{Row: row, Name: name, Value: raw}
		}
		students = append(students, newStudent(row, field(rec, cols.id), name, marks))
	}

	if len(students) == 0 {
		return nil, ErrEmpty
	}
	return students, nil
}

type jsonRow struct {
	ID    json.RawMessage `json:"id"`
	Name  string          `json:"name"`
	Marks json.RawMessage `json:"marks"`
}

func parseJSON(r io.Reader) ([]model.Student, error) {
	var rows []jsonRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}

	students := make([]model.Student, 0, len(rows))
	for i, row := range rows {
		raw := scalar(row.Marks)
		marks, ok := parseMarks(raw)
		if !ok {
			return nil, &RowError{Row: i + 1, Name: row.Name, Value: raw}
		}
		students = append(students, newStudent(i+1, scalar(row.ID), row.Name, marks))
	}
	return students, nil
}

// parseMarks accepts finite decimal numbers only. NaN and the infinities
// parse as floats but cannot be ranked.
func parseMarks(raw string) (float64, bool) {
	m, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(m) || math.IsInf(m, 0) {
		return 0, false
	}
	return m, true
}

func newStudent(row int, id, name string, marks float64) model.Student {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		id = fmt.Sprintf("student-%d", row)
	}
	if name == "" {
		name = fmt.Sprintf("Student %d", row)
	}
	return model.Student{ID: id, Name: name, Marks: marks, OriginalRow: row}
}

// scalar renders a JSON string or number as plain text.
func scalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
