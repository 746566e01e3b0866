package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ColumnSpec names which CSV header columns feed which series. Empty names
// leave the series absent; Extras lists header names in extra order.
type ColumnSpec struct {
	T      string
	X      string
	Y      string
	CoX    string
	Panel  string
	Extras []string
}

// ErrColumnNotFound indicates a named column is absent from the header.
var ErrColumnNotFound = errors.New("dataset: column not found in csv header")

// FromCSV builds a Bundle from a headered CSV stream. Empty cells and cells
// that do not parse as numbers become edm.Missing; panel ids must be
// integers where present.
func FromCSV(r io.Reader, spec ColumnSpec) (*Bundle, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("dataset: read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	lookup := func(name string) (int, error) {
		if name == "" {
			return -1, nil
		}
		i, ok := index[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
		return i, nil
	}

	if spec.X == "" {
		return nil, ErrNoPrimary
	}
	xCol, err := lookup(spec.X)
	if err != nil {
		return nil, err
	}
	tCol, err := lookup(spec.T)
	if err != nil {
		return nil, err
	}
	yCol, err := lookup(spec.Y)
	if err != nil {
		return nil, err
	}
	coCol, err := lookup(spec.CoX)
	if err != nil {
		return nil, err
	}
	panelCol, err := lookup(spec.Panel)
	if err != nil {
		return nil, err
	}
	extraCols := make([]int, len(spec.Extras))
	for z, name := range spec.Extras {
		if extraCols[z], err = lookup(name); err != nil {
			return nil, err
		}
	}

	b := &Bundle{Extras: make([][]float64, len(spec.Extras))}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: read csv row: %w", err)
		}

		b.X = append(b.X, cell(record, xCol))
		if tCol >= 0 {
			b.T = append(b.T, cell(record, tCol))
		}
		if yCol >= 0 {
			b.Y = append(b.Y, cell(record, yCol))
		}
		if coCol >= 0 {
			b.CoX = append(b.CoX, cell(record, coCol))
		}
		if panelCol >= 0 {
			id, err := strconv.Atoi(record[panelCol])
			if err != nil {
				return nil, fmt.Errorf("dataset: panel id %q is not an integer", record[panelCol])
			}
			b.PanelIDs = append(b.PanelIDs, id)
		}
		for z, col := range extraCols {
			b.Extras[z] = append(b.Extras[z], cell(record, col))
		}
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func cell(record []string, col int) float64 {
	if col >= len(record) || record[col] == "" {
		return normalize(0, false)
	}
	v, err := strconv.ParseFloat(record[col], 64)
	return normalize(v, err == nil)
}
