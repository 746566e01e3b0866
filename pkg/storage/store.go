// Package storage persists the outcomes of completed prediction runs so
// clients can fetch the latest result for a named task.
package storage

import (
	"context"
	"time"
)

// RunRecord summarizes one completed prediction run. Predictions use nil
// for slots holding the engine's missing sentinel, so the record marshals
// to host-friendly JSON (missing becomes null).
type RunRecord struct {
	Name        string    `json:"name"`
	GeneratedAt time.Time `json:"generated_at"`

	Algorithm string    `json:"algorithm"`
	E         int       `json:"e"`
	Thetas    []float64 `json:"thetas"`

	NumPredictions int    `json:"num_predictions"`
	WorstRC        string `json:"worst_rc"`

	Rho      float64 `json:"rho"`
	MAE      float64 `json:"mae"`
	HasStats bool    `json:"has_stats"`

	// Ystar holds the last theta's predictions, nil where missing.
	Ystar []*float64 `json:"ystar"`

	ElapsedMS int64 `json:"elapsed_ms"`
}

// Store holds the latest run record per name.
type Store interface {
	Put(ctx context.Context, rec RunRecord) error
	GetLatest(ctx context.Context, name string) (RunRecord, bool, error)
}
