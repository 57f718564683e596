package etl

import (
	"fmt"
	"strings"
)

// RequiredColumn must appear in the header of every uploaded file.
const RequiredColumn = "Maintenance_Label"

// Record is one data row keyed by header name. Every header has a key;
// cells missing from a short row are empty.
type Record map[string]string

// Table is a parsed and validated upload.
type Table struct {
	Headers []string
	Rows    []Record
}

// CheckFileType gates uploads on their declared name.
func CheckFileType(fileName string) error {
	if !strings.HasSuffix(fileName, ".csv") {
		return &UnsupportedFormatError{FileName: fileName}
	}
	return nil
}

// splitLines drops blank lines anywhere in the text.
func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func splitHeader(line string) []string {
	cells := strings.Split(line, ",")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

// ValidateCSV checks the structure of text without building any rows.
func ValidateCSV(text string) error {
	_, _, err := validate(text)
	return err
}

func validate(text string) ([]string, []string, error) {
	lines := splitLines(text)
	if len(lines) < 2 {
		return nil, nil, &ValidationError{Reason: fmt.Sprintf("expected a header and at least one data row, got %d non-blank lines", len(lines))}
	}

	headers := splitHeader(lines[0])
	for _, h := range headers {
		if h == RequiredColumn {
			return lines, headers, nil
		}
	}
	return nil, nil, &ValidationError{Reason: fmt.Sprintf("CSV must contain '%s' column", RequiredColumn)}
}

// ParseCSV validates text and turns every data line into a Record.
// Cells are split on commas only; quoted commas are not supported.
func ParseCSV(text string) (*Table, error) {
	lines, headers, err := validate(text)
	if err != nil {
		return nil, err
	}

	rows := make([]Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		values := strings.Split(line, ",")
		row := make(Record, len(headers))
		for i, h := range headers {
			if i < len(values) {
				row[h] = strings.TrimSpace(values[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}

	return &Table{Headers: headers, Rows: rows}, nil
}
