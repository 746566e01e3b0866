package edm

import (
	"errors"
	"fmt"
)

// ErrFilterLength is returned when a row filter does not cover every raw
// observation.
var ErrFilterLength = errors.New("edm: filter length must match the raw series")

// ManifoldGenerator owns the raw time-stamped columns and the embedding
// parameters, and deterministically materializes a Manifold for a given row
// filter. It holds pure metadata: nothing is computed until Create is
// called, and a generator can build any number of manifolds.
//
// Raw observations are ordered 0..N-1 and need not be equally spaced; any
// cell may hold the Missing sentinel.
type ManifoldGenerator struct {
	t      []float64
	x      []float64
	y      []float64
	coX    []float64
	extras [][]float64

	panelIDs []int

	numExtras       int
	numExtrasLagged int
	tau             int

	useDT        bool
	addDT0       bool
	cumulativeDT bool
	dtWeight     float64
}

// NewManifoldGenerator builds a generator over the raw columns. t may be nil
// when no dt embedding will be requested. The first numExtrasLagged extras
// are lag-embedded with E copies each; the rest contribute one unlagged
// column.
func NewManifoldGenerator(t, x, y []float64, extras [][]float64, numExtrasLagged, tau int) *ManifoldGenerator {
	return &ManifoldGenerator{
		t:               t,
		x:               x,
		y:               y,
		extras:          extras,
		numExtras:       len(extras),
		numExtrasLagged: numExtrasLagged,
		tau:             tau,
	}
}

// AddCopredictionData supplies an alternative primary series used in place
// of x when a prediction manifold is materialized.
func (g *ManifoldGenerator) AddCopredictionData(coX []float64) { g.coX = coX }

// AddDTData turns on the dt columns: inter-observation time gaps scaled by
// weight. dt0 adds the forward gap from each point to its successor;
// cumulative makes every gap the total elapsed time since the point itself.
func (g *ManifoldGenerator) AddDTData(weight float64, dt0, cumulative bool) {
	g.useDT = true
	g.addDT0 = dt0
	g.cumulativeDT = cumulative
	g.dtWeight = weight
}

// AddPanelIDs supplies a panel id per raw observation. Lags never cross a
// panel boundary.
func (g *ManifoldGenerator) AddPanelIDs(ids []int) { g.panelIDs = ids }

// PanelMode reports whether panel ids were supplied.
func (g *ManifoldGenerator) PanelMode() bool { return len(g.panelIDs) > 0 }

// NumObs returns the raw series length.
func (g *ManifoldGenerator) NumObs() int { return len(g.x) }

// NumExtras returns the total number of extra variables.
func (g *ManifoldGenerator) NumExtras() int { return g.numExtras }

// NumExtrasLagged returns how many extras are lag-embedded.
func (g *ManifoldGenerator) NumExtrasLagged() int { return g.numExtrasLagged }

// Tau returns the lag step.
func (g *ManifoldGenerator) Tau() int { return g.tau }

// DTWeight returns the dt scale factor (0 when dt is off).
func (g *ManifoldGenerator) DTWeight() float64 {
	if !g.useDT {
		return 0
	}
	return g.dtWeight
}

// EDt returns the number of dt columns an E-lag embedding produces.
func (g *ManifoldGenerator) EDt(e int) int {
	if !g.useDT {
		return 0
	}
	n := e - 1
	if g.addDT0 {
		n++
	}
	return n
}

// EExtras returns the number of extra columns an E-lag embedding produces.
func (g *ManifoldGenerator) EExtras(e int) int {
	return g.numExtras + g.numExtrasLagged*(e-1)
}

// EActual returns the total embedded width for E lags.
func (g *ManifoldGenerator) EActual(e int) int {
	return e + g.EDt(e) + g.EExtras(e)
}

// Create materializes the Manifold selected by filter. prediction selects
// the co-prediction primary series when one was supplied. The output has
// one row per true filter entry, in raw order, and depends only on the raw
// inputs, the parameters and the filter.
func (g *ManifoldGenerator) Create(e int, filter []bool, prediction bool) (*Manifold, error) {
	if e < 1 || g.tau < 1 {
		return nil, ErrBadEmbedding
	}
	if len(filter) != len(g.x) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFilterLength, len(filter), len(g.x))
	}

	primary := g.x
	if prediction && g.coX != nil {
		primary = g.coX
	}

	nobs := 0
	for _, keep := range filter {
		if keep {
			nobs++
		}
	}

	edt := g.EDt(e)
	eExtras := g.EExtras(e)
	eLagged := g.numExtrasLagged * e
	eActual := g.EActual(e)

	m := &Manifold{
		flat:          make([]float64, nobs*eActual),
		y:             make([]float64, nobs),
		obsIndex:      make([]int, nobs),
		nobs:          nobs,
		ex:            e,
		edt:           edt,
		eExtras:       eExtras,
		eLaggedExtras: eLagged,
		eActual:       eActual,
	}
	if g.PanelMode() {
		m.panelIDs = make([]int, nobs)
	}

	row := 0
	for r, keep := range filter {
		if !keep {
			continue
		}
		base := row * eActual

		for l := 0; l < e; l++ {
			m.flat[base+l] = g.lagged(primary, r, l)
		}
		for j := 0; j < edt; j++ {
			m.flat[base+e+j] = g.findDT(r, j)
		}
		for z := 0; z < g.numExtrasLagged; z++ {
			for l := 0; l < e; l++ {
				m.flat[base+e+edt+z*e+l] = g.lagged(g.extras[z], r, l)
			}
		}
		for z := g.numExtrasLagged; z < g.numExtras; z++ {
			col := base + e + edt + eLagged + (z - g.numExtrasLagged)
			m.flat[col] = g.extras[z][r]
		}

		if g.y != nil {
			m.y[row] = g.y[r]
		} else {
			m.y[row] = Missing
		}
		if g.PanelMode() {
			m.panelIDs[row] = g.panelIDs[r]
		}
		m.obsIndex[row] = r
		row++
	}

	return m, nil
}

// lagged reads vec at l lag steps before raw index r. Walking off the start
// of history, crossing a panel boundary, or landing on a missing cell all
// produce the Missing sentinel.
func (g *ManifoldGenerator) lagged(vec []float64, r, l int) float64 {
	idx := r - l*g.tau
	if idx < 0 {
		return Missing
	}
	if g.PanelMode() && g.panelIDs[idx] != g.panelIDs[r] {
		return Missing
	}
	v := vec[idx]
	if v == Missing {
		return Missing
	}
	return v
}

// findDT computes dt slot j for raw index r. With dt0 the first slot is the
// forward gap from r to its in-panel successor; the remaining slots are the
// gaps between consecutive x-lags, each summed back to r when cumulative dt
// is on. Every gap is scaled by the dt weight.
func (g *ManifoldGenerator) findDT(r, j int) float64 {
	if g.t == nil {
		return Missing
	}

	if g.addDT0 && j == 0 {
		next := r + 1
		if next >= len(g.t) {
			return Missing
		}
		if g.PanelMode() && g.panelIDs[next] != g.panelIDs[r] {
			return Missing
		}
		if g.t[next] == Missing || g.t[r] == Missing {
			return Missing
		}
		return g.dtWeight * (g.t[next] - g.t[r])
	}

	lag := j
	if g.addDT0 {
		lag = j - 1
	}
	i0 := r - lag*g.tau
	i1 := r - (lag+1)*g.tau
	if i1 < 0 {
		return Missing
	}
	if g.PanelMode() && (g.panelIDs[i0] != g.panelIDs[r] || g.panelIDs[i1] != g.panelIDs[r]) {
		return Missing
	}
	if g.t[i0] == Missing || g.t[i1] == Missing || g.t[r] == Missing {
		return Missing
	}
	if g.cumulativeDT {
		return g.dtWeight * (g.t[r] - g.t[i1])
	}
	return g.dtWeight * (g.t[i0] - g.t[i1])
}
