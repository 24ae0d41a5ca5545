package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/averros/ecoscen/internal/scenario"
)

// readScenarioCSV parses a scenario table: a header row starting with
// the scenario identifier column, then one row per scenario with the
// identifier followed by float values.
func readScenarioCSV(path string) (header []string, ids []string, rows [][]float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open scenario table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err = r.Read()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read header: %w", err)
	}

	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, nil, fmt.Errorf("read scenario table: %w", err)
		}
		if len(record) != len(header) {
			return nil, nil, nil, fmt.Errorf("line %d: %d fields for %d columns", line, len(record), len(header))
		}
		ids = append(ids, record[0])
		row := make([]float64, len(record)-1)
		for i, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("line %d, column %q: %w", line, header[i+1], err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return header, ids, rows, nil
}

// writeScenarioCSV writes a batch as a CSV table.
func writeScenarioCSV(w io.Writer, b *scenario.Batch) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(b.Header()); err != nil {
		return err
	}
	for i, id := range b.IDs {
		record := make([]string, 0, len(b.Columns)+1)
		record = append(record, id)
		for _, v := range b.Rows[i] {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
