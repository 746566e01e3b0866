package edm

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// neighbor pairs a surviving library index with its distance to the query.
type neighbor struct {
	idx  int
	dist float64
}

// predictSingle runs the full per-query kernel for query row q: distances
// to every library point, neighbor selection, and one Simplex or S-map
// prediction per theta. Results are staged locally and committed to the
// shared buffers in one step, so a cancelled worker never leaves a query
// half written.
func (rs *runState) predictSingle(q int, pred *Prediction) RetCode {
	opts := rs.opts
	numThetas := len(opts.Thetas)
	eActual := rs.m.EActual()
	numCoeffs := eActual + 1

	localY := make([]float64, numThetas)
	localRC := make([]RetCode, numThetas)
	var localCoeffs [][]float64
	if opts.SaveCoefficients {
		localCoeffs = make([][]float64, numThetas)
	}

	fail := func(rc RetCode) RetCode {
		for ti := range localRC {
			localY[ti] = Missing
			localRC[ti] = rc
			if localCoeffs != nil {
				localCoeffs[ti] = missingRow(numCoeffs)
			}
		}
		rs.commit(q, pred, localY, localRC, localCoeffs)
		return rc
	}

	var pairs DistanceIndexPairs
	if opts.Distance == Wasserstein {
		pairs = WassersteinDistances(q, opts, rs.m, rs.mp, rs.libInds)
	} else {
		pairs = LPDistances(q, opts, rs.m, rs.mp, rs.libInds)
	}

	kk := len(pairs.Inds)
	if opts.K >= 0 && rs.k < kk {
		kk = rs.k
	}
	minRequired := 1
	if opts.Algorithm == SMap {
		minRequired = numCoeffs
	}
	if kk < minRequired && !opts.ForceCompute {
		return fail(InsufficientUnique)
	}
	if kk == 0 {
		return fail(InsufficientUnique)
	}

	nbrs := make([]neighbor, len(pairs.Inds))
	for i := range pairs.Inds {
		nbrs[i] = neighbor{idx: pairs.Inds[i], dist: pairs.Dists[i]}
	}
	// Ties broken by smaller library index keeps the selection stable and
	// the whole run deterministic.
	sort.Slice(nbrs, func(a, b int) bool {
		if nbrs[a].dist != nbrs[b].dist {
			return nbrs[a].dist < nbrs[b].dist
		}
		return nbrs[a].idx < nbrs[b].idx
	})
	nbrs = nbrs[:kk]
	d0 := nbrs[0].dist

	worst := Success
	for ti, theta := range opts.Thetas {
		if rs.stopRequested() {
			return Cancelled
		}

		var rc RetCode
		switch opts.Algorithm {
		case Simplex:
			localY[ti], rc = rs.simplex(theta, d0, nbrs)
		case SMap:
			var coeffs []float64
			localY[ti], coeffs, rc = rs.smap(q, theta, nbrs)
			if localCoeffs != nil {
				localCoeffs[ti] = coeffs
			}
		default:
			localY[ti], rc = Missing, InvalidAlgorithm
		}
		localRC[ti] = rc
		worst = worstRetCode(worst, rc)
	}

	rs.commit(q, pred, localY, localRC, localCoeffs)
	return worst
}

// simplex predicts by the exponentially weighted average of the neighbors'
// targets, with weights exp(-theta*sqrt(d/d0)) relative to the nearest
// neighbor. Neighbors without a target are skipped; if none remain or the
// weights degenerate to zero, the slot is missing.
func (rs *runState) simplex(theta, d0 float64, nbrs []neighbor) (float64, RetCode) {
	sumW, sumWY := 0.0, 0.0
	for _, nb := range nbrs {
		yv := rs.m.Y(nb.idx)
		if yv == Missing {
			continue
		}
		w := math.Exp(-theta * math.Sqrt(nb.dist/d0))
		sumW += w
		sumWY += w * yv
	}
	if sumW == 0 {
		return Missing, InsufficientUnique
	}
	return sumWY / sumW, Success
}

// smap fits a weighted local linear model around the query and evaluates it
// at the query point. The design matrix carries the weight in column 0 as a
// pre-weighted intercept; neighbors with a missing target or any missing
// component are excluded from the fit. Numerical failure of the solve maps
// to UnknownError for the slot.
func (rs *runState) smap(q int, theta float64, nbrs []neighbor) (float64, []float64, RetCode) {
	eActual := rs.m.EActual()
	numCoeffs := eActual + 1

	weights := make([]float64, len(nbrs))
	meanW := 0.0
	for i, nb := range nbrs {
		weights[i] = math.Sqrt(nb.dist)
		meanW += weights[i]
	}
	meanW /= float64(len(nbrs))
	for i := range weights {
		weights[i] = math.Exp(-theta * (weights[i] / meanW))
	}

	xData := make([]float64, 0, len(nbrs)*numCoeffs)
	yLS := make([]float64, 0, len(nbrs))
	for i, nb := range nbrs {
		if rs.m.Y(nb.idx) == Missing || rs.m.AnyMissing(nb.idx) {
			continue
		}
		w := weights[i]
		xData = append(xData, w)
		for j := 0; j < eActual; j++ {
			xData = append(xData, w*rs.m.At(nb.idx, j))
		}
		yLS = append(yLS, w*rs.m.Y(nb.idx))
	}
	rowc := len(yLS)
	if rowc == 0 {
		return Missing, missingRow(numCoeffs), InsufficientUnique
	}

	x := mat.NewDense(rowc, numCoeffs, xData)
	beta, err := solveLeastSquares(x, yLS)
	if err != nil {
		return Missing, missingRow(numCoeffs), UnknownError
	}

	ystar := beta[0]
	for c := 1; c < numCoeffs; c++ {
		if v := rs.mp.At(q, c-1); v != Missing {
			ystar += v * beta[c]
		}
	}
	return ystar, beta, Success
}

func missingRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = Missing
	}
	return row
}
