package edm

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// machineEpsilon is the double-precision unit roundoff used for the SVD
// rank cutoff.
const machineEpsilon = 2.220446049250313e-16

var errSVDFailed = errors.New("edm: svd failed to converge")

// solveLeastSquares returns the minimum-norm least-squares solution of
// X*beta ~ y via a thin SVD, discarding singular values below the usual
// eps*max(rows,cols)*sigma_max cutoff. The matrices here are tiny (at most
// the neighbor count by E_actual+1), so a dense factorization is the whole
// story.
func solveLeastSquares(x *mat.Dense, y []float64) ([]float64, error) {
	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		return nil, errSVDFailed
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	rows, cols := x.Dims()
	maxDim := rows
	if cols > maxDim {
		maxDim = cols
	}
	tol := 0.0
	if len(s) > 0 {
		tol = machineEpsilon * float64(maxDim) * s[0]
	}

	beta := make([]float64, cols)
	for k, sigma := range s {
		if sigma <= tol {
			continue
		}
		proj := 0.0
		for i := 0; i < rows; i++ {
			proj += u.At(i, k) * y[i]
		}
		proj /= sigma
		for j := 0; j < cols; j++ {
			beta[j] += proj * v.At(j, k)
		}
	}
	return beta, nil
}
