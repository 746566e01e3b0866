package edm

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// pearsonAndMAE compares predictions against observed targets over the
// slots where both are present and finite, returning the Pearson
// correlation, the mean absolute error, and the number of pairs used.
func pearsonAndMAE(predicted, observed []float64) (rho, mae float64, n int) {
	xs := make([]float64, 0, len(predicted))
	ys := make([]float64, 0, len(predicted))
	sumAbs := 0.0
	for i := range predicted {
		p, o := predicted[i], observed[i]
		if p == Missing || o == Missing || math.IsNaN(p) || math.IsNaN(o) || math.IsInf(p, 0) || math.IsInf(o, 0) {
			continue
		}
		xs = append(xs, p)
		ys = append(ys, o)
		sumAbs += math.Abs(p - o)
	}
	n = len(xs)
	if n == 0 {
		return 0, 0, 0
	}
	return stat.Correlation(xs, ys, nil), sumAbs / float64(n), n
}
