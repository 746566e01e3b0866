// Package dataset loads raw time-series columns for the EDM engine from
// host formats: a JSON document or a CSV file. Loaders normalize host
// missing values (JSON null, empty CSV cells, NaN) to the engine's Missing
// sentinel, the same translation the original host performed on its own
// missing-value representation.
package dataset

import (
	"errors"
	"fmt"
	"math"

	"github.com/EDM-Developers/edm/pkg/edm"
)

var (
	// ErrNoPrimary indicates the input carries no primary series.
	ErrNoPrimary = errors.New("dataset: primary series x is required")

	// ErrRaggedColumns indicates columns of differing lengths.
	ErrRaggedColumns = errors.New("dataset: all columns must have the same length")
)

// Bundle is a raw observation table: one value per column per observation,
// ready to hand to a ManifoldGenerator. Any cell may hold edm.Missing.
type Bundle struct {
	T        []float64
	X        []float64
	Y        []float64
	CoX      []float64
	PanelIDs []int
	Extras   [][]float64
}

// NumObs returns the observation count.
func (b *Bundle) NumObs() int { return len(b.X) }

// Validate checks the bundle is rectangular and has a primary series.
func (b *Bundle) Validate() error {
	n := len(b.X)
	if n == 0 {
		return ErrNoPrimary
	}
	check := func(name string, l int) error {
		if l != 0 && l != n {
			return fmt.Errorf("%w: %s has %d rows, x has %d", ErrRaggedColumns, name, l, n)
		}
		return nil
	}
	if err := check("t", len(b.T)); err != nil {
		return err
	}
	if err := check("y", len(b.Y)); err != nil {
		return err
	}
	if err := check("co_x", len(b.CoX)); err != nil {
		return err
	}
	if err := check("panel", len(b.PanelIDs)); err != nil {
		return err
	}
	for z, extra := range b.Extras {
		if err := check(fmt.Sprintf("extras[%d]", z), len(extra)); err != nil {
			return err
		}
	}
	return nil
}

// Generator builds a ManifoldGenerator over the bundle, attaching the
// co-prediction series and panel ids when present.
func (b *Bundle) Generator(numExtrasLagged, tau int) *edm.ManifoldGenerator {
	gen := edm.NewManifoldGenerator(b.T, b.X, b.Y, b.Extras, numExtrasLagged, tau)
	if b.CoX != nil {
		gen.AddCopredictionData(b.CoX)
	}
	if b.PanelIDs != nil {
		gen.AddPanelIDs(b.PanelIDs)
	}
	return gen
}

// normalize maps host not-a-value representations onto the sentinel.
func normalize(v float64, ok bool) float64 {
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return edm.Missing
	}
	return v
}
