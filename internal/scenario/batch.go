// Package scenario holds the validated tabular parameter assignment that
// drives a batch of simulation runs. Parsing tabular file formats is an
// external collaborator's job; this package validates and partitions the
// in-memory table.
package scenario

import (
	"fmt"
	"strconv"

	"github.com/averros/ecoscen/internal/params"
)

// IDColumn is the mandatory name of the first column: the unique
// scenario identifier.
const IDColumn = "scenario"

// Batch is an ordered, validated scenario table. IDs and Rows are
// parallel; Columns excludes the identifier column and binds 1:1 to the
// variable parameter slots, in order.
type Batch struct {
	IDs     []string
	Columns []string
	Rows    [][]float64
}

// BatchError reports a malformed scenario table.
type BatchError struct {
	Column string
	Msg    string
}

func (e *BatchError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("scenario: %s", e.Msg)
	}
	return fmt.Sprintf("scenario: column %q: %s", e.Column, e.Msg)
}

// Build validates a scenario table against the parameter registry. The
// header must start with the identifier column; every remaining column
// must resolve to a registered parameter; identifiers must be unique;
// every row must carry one value per parameter column.
func Build(reg *params.Registry, header []string, ids []string, rows [][]float64) (*Batch, error) {
	if len(header) == 0 || header[0] != IDColumn {
		got := "<empty>"
		if len(header) > 0 {
			got = header[0]
		}
		return nil, &BatchError{Column: got, Msg: fmt.Sprintf("first column must be %q", IDColumn)}
	}
	columns := header[1:]
	for _, col := range columns {
		if _, err := reg.Resolve(col); err != nil {
			return nil, &BatchError{Column: col, Msg: fmt.Sprintf("does not resolve: %v", err)}
		}
	}
	if len(ids) != len(rows) {
		return nil, &BatchError{Msg: fmt.Sprintf("%d scenario ids for %d rows", len(ids), len(rows))}
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, &BatchError{Msg: fmt.Sprintf("duplicate scenario identifier %q", id)}
		}
		seen[id] = true
	}
	copied := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, &BatchError{Msg: fmt.Sprintf("row %d has %d values for %d columns", i, len(row), len(columns))}
		}
		copied[i] = append([]float64(nil), row...)
	}
	return &Batch{
		IDs:     append([]string(nil), ids...),
		Columns: append([]string(nil), columns...),
		Rows:    copied,
	}, nil
}

// EmptyTemplate builds a zero-filled batch with scenario identifiers
// 0..n-1: one column per requested environmental parameter plus one per
// (group-parameter prefix x functional group) combination. Prefixes may
// be the single entry "all" to expand every registered prefix.
func EmptyTemplate(reg *params.Registry, envNames []string, groupPrefixes []string, nScenarios int) (*Batch, error) {
	if nScenarios < 1 {
		return nil, &BatchError{Msg: fmt.Sprintf("need at least one scenario, got %d", nScenarios)}
	}
	for _, name := range envNames {
		if _, err := reg.Resolve(name); err != nil {
			return nil, &BatchError{Column: name, Msg: fmt.Sprintf("does not resolve: %v", err)}
		}
	}
	groupNames, err := reg.GroupParamNames(groupPrefixes...)
	if err != nil {
		return nil, &BatchError{Msg: err.Error()}
	}

	columns := append(append([]string(nil), envNames...), groupNames...)
	batch := &Batch{
		IDs:     make([]string, nScenarios),
		Columns: columns,
		Rows:    make([][]float64, nScenarios),
	}
	for i := 0; i < nScenarios; i++ {
		batch.IDs[i] = strconv.Itoa(i)
		batch.Rows[i] = make([]float64, len(columns))
	}
	return batch, nil
}

// Len returns the number of scenario rows.
func (b *Batch) Len() int {
	return len(b.IDs)
}

// Header returns the full column header, identifier column included.
func (b *Batch) Header() []string {
	return append([]string{IDColumn}, b.Columns...)
}

// Partition splits the batch into at most n contiguous sub-batches,
// preserving row order. Fewer partitions are returned when there are
// fewer rows than n.
func (b *Batch) Partition(n int) []*Batch {
	if n < 1 {
		n = 1
	}
	if n > b.Len() {
		n = b.Len()
	}
	parts := make([]*Batch, 0, n)
	size := b.Len() / n
	extra := b.Len() % n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < extra {
			end++
		}
		parts = append(parts, &Batch{
			IDs:     b.IDs[start:end],
			Columns: b.Columns,
			Rows:    b.Rows[start:end],
		})
		start = end
	}
	return parts
}

// LongFormRow is one (scenario, group, parameter) entry of the long-form
// template listing.
type LongFormRow struct {
	Scenario  string
	Group     string
	Parameter string
}

// LongForm lists every (group x prefix) and environmental parameter the
// registry knows, one row each, for template authoring.
func LongForm(reg *params.Registry) []LongFormRow {
	var out []LongFormRow
	for _, env := range reg.EnvParamNames() {
		out = append(out, LongFormRow{Scenario: "0", Group: "Environment", Parameter: env})
	}
	for _, group := range reg.Groups() {
		for _, prefix := range reg.GroupPrefixes() {
			out = append(out, LongFormRow{Scenario: "0", Group: group, Parameter: prefix})
		}
	}
	return out
}
