package emd_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EDM-Developers/edm/pkg/emd"
)

func TestExact_ZeroDiagonal(t *testing.T) {
	// Matching mass to itself is free when a zero-cost assignment exists.
	cost := []float64{
		0, 1,
		1, 0,
	}
	got, err := emd.Exact(cost, 2, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got, 1e-12)
}

func TestExact_ForcedMove(t *testing.T) {
	// Row 0 can only ship at cost 1; row 1 ships free. Each row holds
	// half the mass.
	cost := []float64{
		1, 1,
		0, 0,
	}
	got, err := emd.Exact(cost, 2, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-12)
}

func TestExact_Rectangular(t *testing.T) {
	// One source splits evenly across two sinks.
	cost := []float64{2, 4}
	got, err := emd.Exact(cost, 1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, got, 1e-12)

	// And the transpose direction.
	got, err = emd.Exact([]float64{2, 4}, 2, 1)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, got, 1e-12)
}

func TestExact_PrefersReorderingOverPayment(t *testing.T) {
	// Moving both points across beats matching them in place.
	cost := []float64{
		99, 0,
		0, 99,
	}
	got, err := emd.Exact(cost, 2, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got, 1e-12)
}

func TestExact_UniformFloorAddsUp(t *testing.T) {
	// A constant added to every cell shifts the optimum by exactly that
	// constant (total mass is 1).
	base := []float64{
		1, 2,
		3, 0.5,
	}
	withFloor := make([]float64, len(base))
	for i, c := range base {
		withFloor[i] = c + 10
	}
	a, err := emd.Exact(base, 2, 2)
	require.NoError(t, err)
	b, err := emd.Exact(withFloor, 2, 2)
	require.NoError(t, err)
	assert.InDelta(t, a+10, b, 1e-9)
}

func TestExact_KnownThreeByThree(t *testing.T) {
	// Optimal assignment is the anti-diagonal: (1 + 0 + 2) / 3.
	cost := []float64{
		5, 5, 1,
		9, 0, 9,
		2, 7, 8,
	}
	got, err := emd.Exact(cost, 3, 3)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestExact_InputValidation(t *testing.T) {
	_, err := emd.Exact(nil, 0, 3)
	assert.ErrorIs(t, err, emd.ErrEmptyMatrix)

	_, err = emd.Exact([]float64{1, 2, 3}, 2, 2)
	assert.ErrorIs(t, err, emd.ErrDimension)

	_, err = emd.Exact([]float64{1, -2, 3, 4}, 2, 2)
	assert.ErrorIs(t, err, emd.ErrBadCost)
}
