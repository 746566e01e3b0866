package edm

import (
	"math"

	"github.com/EDM-Developers/edm/pkg/emd"
)

// wassersteinEpsilon keeps the aspect-ratio scale finite when a lagged
// curve is flat or its time axis collapses.
const wassersteinEpsilon = 1e-6

// WassersteinDistances compares library rows inds of M against row q of Mp
// by treating each point as a short multivariate curve of length E (primary
// series, dt series when present, lagged extras). For each candidate a
// pairwise cost matrix is built and the exact 1-Wasserstein transport cost
// under uniform marginals is the distance. Unlagged extras and the panel
// penalty form an additive floor under every cell.
//
// With MissingDistance zero, lags containing a missing component are
// compressed out of the curve, so the two curves may have unequal lengths;
// otherwise MissingDistance is substituted cell-wise. Candidates with
// non-finite or zero distance are dropped.
func WassersteinDistances(q int, opts *Options, m, mp *Manifold, inds []int) DistanceIndexPairs {
	out := DistanceIndexPairs{}

	skipMissing := opts.MissingDistance == 0
	lenJ := mp.E()
	if skipMissing {
		lenJ = 0
		for n := 0; n < mp.E(); n++ {
			if !curveLagMissing(mp, q, n) {
				lenJ++
			}
		}
	}
	if lenJ <= 0 {
		return out
	}

	out.Inds = make([]int, 0, len(inds))
	out.Dists = make([]float64, 0, len(inds))

	for _, i := range inds {
		cost, lenI, lenJ := wassersteinCostMatrix(m, mp, i, q, opts)
		if lenI <= 0 || lenJ <= 0 {
			continue
		}
		dist, err := emd.Exact(cost, lenI, lenJ)
		if err != nil {
			continue
		}
		if dist == 0 || math.IsNaN(dist) || math.IsInf(dist, 0) {
			continue
		}
		out.Inds = append(out.Inds, i)
		out.Dists = append(out.Dists, dist)
	}

	return out
}

// curveLagMissing reports whether any curve dimension of point i is missing
// at lag n.
func curveLagMissing(m *Manifold, i, n int) bool {
	for k := 0; k < m.NumLaggedVars(); k++ {
		if m.LaggedVar(i, k, n) == Missing {
			return true
		}
	}
	return false
}

// wassersteinCostMatrix builds the lenI x lenJ pairwise cost matrix between
// the lagged curve of library point i and query point j. Entry (n, m) is
// the summed per-dimension cost of matching lag n of the library curve to
// lag m of the query curve, plus the unlagged floor. The dt dimension is
// rescaled by gamma so the curve's plot has the configured aspect ratio.
func wassersteinCostMatrix(m, mp *Manifold, i, j int, opts *Options) ([]float64, int, int) {
	skipMissing := opts.MissingDistance == 0
	e := m.E()
	timeSeriesDim := m.NumLaggedVars()

	iMissing := make([]bool, e)
	jMissing := make([]bool, e)
	lenI, lenJ := e, e
	if skipMissing {
		lenI, lenJ = 0, 0
	}
	for n := 0; n < e; n++ {
		iMissing[n] = curveLagMissing(m, i, n)
		jMissing[n] = curveLagMissing(mp, j, n)
		if skipMissing {
			if !iMissing[n] {
				lenI++
			}
			if !jMissing[n] {
				lenJ++
			}
		}
	}
	if lenI <= 0 || lenJ <= 0 {
		return nil, lenI, lenJ
	}

	// Rescale the time dimension so the library curve, plotted as data
	// against elapsed time, has the requested aspect ratio.
	gamma := 1.0
	if m.EDt() > 0 {
		minData, maxData := math.Inf(1), math.Inf(-1)
		maxTime := 0.0
		for n := 0; n < e; n++ {
			if v := m.LaggedVar(i, 0, n); v != Missing {
				minData = math.Min(minData, v)
				maxData = math.Max(maxData, v)
			}
			if v := m.LaggedVar(i, 1, n); v != Missing && v > maxTime {
				maxTime = v
			}
		}
		if minData > maxData {
			minData, maxData = 0, 0
		}
		gamma = opts.AspectRatio * (maxData - minData + wassersteinEpsilon) / (maxTime + wassersteinEpsilon)
	}

	// The unlagged extras and the panel penalty do not participate in the
	// curve matching; they form a floor added to every cell.
	floor := 0.0
	for ex := 0; ex < m.NumUnlaggedExtras(); ex++ {
		a, b := m.UnlaggedExtra(i, ex), mp.UnlaggedExtra(j, ex)
		if a == Missing || b == Missing {
			floor += opts.MissingDistance
		} else if opts.metric(timeSeriesDim+ex) == Diff {
			floor += math.Abs(a - b)
		} else if a != b {
			floor++
		}
	}
	if opts.PanelMode && opts.IDW > 0 && m.Panel(i) != mp.Panel(j) {
		floor += opts.IDW
	}

	cost := make([]float64, lenI*lenJ)
	for idx := range cost {
		cost[idx] = floor
	}

	for k := 0; k < timeSeriesDim; k++ {
		row := 0
		for nn := 0; nn < e; nn++ {
			if skipMissing && iMissing[nn] {
				continue
			}
			col := 0
			for mm := 0; mm < e; mm++ {
				if skipMissing && jMissing[mm] {
					continue
				}
				a, b := m.LaggedVar(i, k, nn), mp.LaggedVar(j, k, mm)

				var d float64
				if iMissing[nn] || jMissing[mm] {
					d = opts.MissingDistance
				} else if opts.metric(k) == Diff {
					d = math.Abs(a - b)
				} else if a != b {
					d = 1
				}
				if m.EDt() > 0 && k == 1 {
					d *= gamma
				}
				cost[row*lenJ+col] += d
				col++
			}
			row++
		}
	}

	return cost, lenI, lenJ
}
