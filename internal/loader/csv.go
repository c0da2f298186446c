package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// ExtractCSV renders each data row as "header: value" lines so the model
// sees column names next to cell values. Rows are separated by blank lines.
func ExtractCSV(content []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("csv file is empty")
	}

	header := rows[0]
	blocks := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		lines := make([]string, 0, len(row))
		for i, cell := range row {
			name := fmt.Sprintf("column_%d", i+1)
			if i < len(header) {
				name = strings.TrimSpace(header[i])
			}
			lines = append(lines, fmt.Sprintf("%s: %s", name, strings.TrimSpace(cell)))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	if len(blocks) == 0 {
		return "", fmt.Errorf("csv file has no data rows")
	}
	return strings.Join(blocks, "\n\n"), nil
}
