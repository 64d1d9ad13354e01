package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is the tabular content of a register export. Rows index cell
// values by header name; missing cells render empty.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

func (d Dataset) records() [][]string {
	records := make([][]string, 0, len(d.Rows)+1)
	records = append(records, d.Headers)
	for _, row := range d.Rows {
		record := make([]string, len(d.Headers))
		for i, header := range d.Headers {
			record[i] = row[header]
		}
		records = append(records, record)
	}
	return records
}

// CSVExporter renders a Dataset as CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render encodes the dataset, header row first.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv export needs at least one column")
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(data.records()); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}
