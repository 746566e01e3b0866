package edm

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// logisticMap generates the chaotic series x[n+1] = 4 x[n] (1 - x[n]).
func logisticMap(n int, x0 float64) []float64 {
	x := make([]float64, n)
	x[0] = x0
	for i := 1; i < n; i++ {
		x[i] = 4 * x[i-1] * (1 - x[i-1])
	}
	return x
}

// oneStepTarget pairs each observation with its successor.
func oneStepTarget(x []float64) []float64 {
	y := make([]float64, len(x))
	for i := range x {
		if i+1 < len(x) {
			y[i] = x[i+1]
		} else {
			y[i] = Missing
		}
	}
	return y
}

func TestRun_LogisticMapSimplex(t *testing.T) {
	x := logisticMap(200, 0.2)
	y := oneStepTarget(x)

	// Training on the first 100 embeddable rows, prediction on the next
	// 97 rows.
	training := make([]bool, 200)
	prediction := make([]bool, 200)
	for i := 1; i <= 100; i++ {
		training[i] = true
	}
	for i := 101; i <= 197; i++ {
		prediction[i] = true
	}

	gen := NewManifoldGenerator(nil, x, y, nil, 0, 1)
	opts := Options{
		Algorithm: Simplex,
		E:         2,
		K:         3,
		Thetas:    []float64{1},
		Distance:  Euclidean,
	}

	pred, err := Run(context.Background(), opts, gen, training, prediction, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Success, pred.WorstRC)
	assert.Equal(t, 97, pred.NumPredictions)
	require.True(t, pred.HasStats)
	assert.Greater(t, pred.Rho, 0.95, "simplex should predict the logistic map well")
}

func TestRun_PerfectRecallSkipsSelf(t *testing.T) {
	// A smooth series where library and query sets coincide. The zero
	// distance self match is dropped, so k=1 picks the second-nearest,
	// which still tracks the target closely.
	n := 200
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Sin(0.1 * float64(i))
	}
	y := oneStepTarget(x)

	filter := make([]bool, n)
	for i := 1; i < n-1; i++ {
		filter[i] = true
	}

	gen := NewManifoldGenerator(nil, x, y, nil, 0, 1)
	opts := Options{
		Algorithm: Simplex,
		E:         2,
		K:         1,
		Thetas:    []float64{1},
		Distance:  Euclidean,
	}

	pred, err := Run(context.Background(), opts, gen, filter, filter, nil, nil)
	require.NoError(t, err)
	require.True(t, pred.HasStats)
	assert.Greater(t, pred.Rho, 0.99)
}

func TestRun_SimplexWeighting(t *testing.T) {
	// Hand-checkable configuration: one query at x=0, library at 1 and 3,
	// so d = (1, 3) and w = (exp(-1*sqrt(1)), exp(-1*sqrt(3))).
	x := []float64{1, 3, 0}
	y := []float64{10, 20, Missing}

	gen := NewManifoldGenerator(nil, x, y, nil, 0, 1)
	training := []bool{true, true, false}
	prediction := []bool{false, false, true}

	opts := Options{
		Algorithm: Simplex,
		E:         1,
		K:         -1,
		Thetas:    []float64{1},
		Distance:  Euclidean,
	}
	pred, err := Run(context.Background(), opts, gen, training, prediction, nil, nil)
	require.NoError(t, err)

	w0 := math.Exp(-1.0)
	w1 := math.Exp(-math.Sqrt(3.0))
	want := (w0*10 + w1*20) / (w0 + w1)
	assert.InDelta(t, want, pred.Ystar[0][0], 1e-12)
}

func TestRun_SMapRecoversLinearCoefficients(t *testing.T) {
	// y = 2*x[n] - x[n-1] + 0.1*eps: with theta=0 the S-map is a plain
	// least squares and should recover the generating coefficients.
	rng := rand.New(rand.NewSource(1))
	n := 600
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = rng.Float64()
	}
	for i := range y {
		if i == 0 {
			y[i] = Missing
			continue
		}
		y[i] = 2*x[i] - x[i-1] + 0.1*rng.NormFloat64()
	}

	training := make([]bool, n)
	prediction := make([]bool, n)
	for i := 1; i < 500; i++ {
		training[i] = true
	}
	for i := 500; i < n; i++ {
		prediction[i] = true
	}

	gen := NewManifoldGenerator(nil, x, y, nil, 0, 1)
	opts := Options{
		Algorithm:        SMap,
		E:                2,
		K:                -1,
		Thetas:           []float64{0},
		Distance:         Euclidean,
		SaveCoefficients: true,
	}

	pred, err := Run(context.Background(), opts, gen, training, prediction, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Success, pred.WorstRC)
	require.True(t, pred.HasStats)
	assert.Greater(t, pred.Rho, 0.98)

	require.NotNil(t, pred.Coeffs)
	for q := 0; q < pred.NumPredictions; q++ {
		coeffs := pred.Coeffs[0][q]
		require.Len(t, coeffs, 3)
		assert.InDelta(t, 0.0, coeffs[0], 0.05, "intercept")
		assert.InDelta(t, 2.0, coeffs[1], 0.05, "lag-0 coefficient")
		assert.InDelta(t, -1.0, coeffs[2], 0.05, "lag-1 coefficient")
	}
}

func TestRun_InsufficientUniqueWithoutForce(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []float64{2, 3, 4, 5}
	gen := NewManifoldGenerator(nil, x, y, nil, 0, 1)

	// S-map needs E_actual+1 = 3 usable neighbors but only two library
	// rows exist.
	training := []bool{false, false, true, true}
	prediction := []bool{false, true, false, false}

	opts := Options{
		Algorithm: SMap,
		E:         2,
		K:         -1,
		Thetas:    []float64{1},
		Distance:  Euclidean,
	}
	pred, err := Run(context.Background(), opts, gen, training, prediction, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, InsufficientUnique, pred.WorstRC)
	assert.Equal(t, Missing, pred.Ystar[0][0])

	opts.ForceCompute = true
	forced, err := Run(context.Background(), opts, gen, training, prediction, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Success, forced.WorstRC)
	assert.NotEqual(t, Missing, forced.Ystar[0][0])
}

func TestRun_PanelNeighborsPreferOwnPanel(t *testing.T) {
	// Two disjoint panels running the same dynamics with a large
	// inter-panel penalty: every chosen neighbor should come from the
	// query's own panel while it has candidates.
	half := 100
	a := logisticMap(half, 0.2)
	b := logisticMap(half, 0.21)
	x := append(append([]float64{}, a...), b...)
	y := oneStepTarget(x)
	y[half-1] = Missing // no target across the panel seam
	panels := make([]int, 2*half)
	for i := half; i < 2*half; i++ {
		panels[i] = 1
	}

	training := make([]bool, 2*half)
	prediction := make([]bool, 2*half)
	for i := 1; i < half-1; i++ {
		training[i] = true
		training[half+i] = true
	}
	prediction[half+50] = true

	gen := NewManifoldGenerator(nil, x, y, nil, 0, 1)
	gen.AddPanelIDs(panels)

	opts := Options{
		Algorithm: Simplex,
		E:         2,
		K:         5,
		Thetas:    []float64{1},
		Distance:  Euclidean,
		PanelMode: true,
		IDW:       10,
	}
	pred, err := Run(context.Background(), opts, gen, training, prediction, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Success, pred.WorstRC)

	// Cross-check through the distance engine: the five nearest
	// surviving candidates for the query all sit in panel 1.
	m, err := gen.Create(2, training, false)
	require.NoError(t, err)
	mp, err := gen.Create(2, prediction, true)
	require.NoError(t, err)
	got := LPDistances(0, &opts, m, mp, sequence(m.NObs()))
	require.GreaterOrEqual(t, len(got.Inds), 5)
	nearest := nearestK(got, 5)
	for _, idx := range nearest {
		assert.Equal(t, 1, m.Panel(idx))
	}
}

// nearestK returns the library indices of the k smallest distances, ties by
// index.
func nearestK(pairs DistanceIndexPairs, k int) []int {
	nbrs := make([]neighbor, len(pairs.Inds))
	for i := range pairs.Inds {
		nbrs[i] = neighbor{idx: pairs.Inds[i], dist: pairs.Dists[i]}
	}
	for i := 0; i < k; i++ {
		min := i
		for j := i + 1; j < len(nbrs); j++ {
			if nbrs[j].dist < nbrs[min].dist ||
				(nbrs[j].dist == nbrs[min].dist && nbrs[j].idx < nbrs[min].idx) {
				min = j
			}
		}
		nbrs[i], nbrs[min] = nbrs[min], nbrs[i]
	}
	out := make([]int, k)
	for i := range out {
		out[i] = nbrs[i].idx
	}
	return out
}
