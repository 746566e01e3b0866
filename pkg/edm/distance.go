package edm

import "math"

// DistanceIndexPairs holds the surviving candidate indices for one query
// and their distances, aligned position by position. Candidates at exactly
// zero distance (self matches, exact duplicates) and candidates ruled out
// by the missing-value policy are absent.
type DistanceIndexPairs struct {
	Inds  []int
	Dists []float64
}

// LPDistances compares library rows inds of M against row q of Mp under the
// Euclidean or mean-absolute-error metric. With MissingDistance zero a
// single missing component removes the candidate; otherwise each missing
// component contributes MissingDistance. In panel mode a fixed IDW penalty
// is added when the panels differ.
//
// It reads only shared immutable data, so it is safe to call concurrently
// for distinct queries.
func LPDistances(q int, opts *Options, m, mp *Manifold, inds []int) DistanceIndexPairs {
	out := DistanceIndexPairs{
		Inds:  make([]int, 0, len(inds)),
		Dists: make([]float64, 0, len(inds)),
	}
	eActual := m.EActual()

	for _, i := range inds {
		dist := 0.0
		if opts.PanelMode && opts.IDW > 0 && m.Panel(i) != mp.Panel(q) {
			dist += opts.IDW
		}

		dropped := false
		for j := 0; j < eActual; j++ {
			a, b := m.At(i, j), mp.At(q, j)

			var dij float64
			if a == Missing || b == Missing {
				if opts.MissingDistance == 0 {
					dropped = true
					break
				}
				dij = opts.MissingDistance
			} else if opts.metric(j) == Diff {
				dij = a - b
			} else if a != b {
				dij = 1
			}

			if opts.Distance == MeanAbsoluteError {
				dist += math.Abs(dij) / float64(eActual)
			} else {
				dist += dij * dij
			}
		}

		if dropped || dist == 0 {
			continue
		}
		if opts.Distance == Euclidean {
			dist = math.Sqrt(dist)
		}
		out.Inds = append(out.Inds, i)
		out.Dists = append(out.Dists, dist)
	}

	return out
}
