// Package router configures the HTTP routes of edmserver.
//
// Routes:
//   - POST /run - Execute a prediction run submitted as a JSON document
//     (the dump format, uncompressed, plus a top-level "name") and store
//     the outcome.
//   - GET /run/latest?name=<name> - Retrieve the latest stored run record.
//   - GET /healthz - Health check endpoint.
//   - GET /metrics - Prometheus metrics endpoint.
package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidwall/gjson"

	"github.com/EDM-Developers/edm/cmd/edmserver/metrics"
	"github.com/EDM-Developers/edm/pkg/dump"
	"github.com/EDM-Developers/edm/pkg/edm"
	"github.com/EDM-Developers/edm/pkg/httpx"
	"github.com/EDM-Developers/edm/pkg/storage"
)

var runNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,251}[a-zA-Z0-9])?$`)

// Options configures the router.
type Options struct {
	MaxBodyBytes   int64
	RunTimeout     time.Duration
	DefaultThreads int
}

// SetupRoutes wires the HTTP endpoints.
func SetupRoutes(store storage.Store, m *metrics.Metrics, opts Options, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", httpx.HealthHandler())
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /run", handleRun(store, m, opts, logger))
	mux.HandleFunc("GET /run/latest", handleGetLatest(store, logger))
	return mux
}

// handleRun executes a submitted run synchronously and stores its record.
func handleRun(store storage.Store, m *metrics.Metrics, opts Options, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, opts.MaxBodyBytes))
		if err != nil {
			m.RecordError("body_too_large")
			httpx.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}

		name := gjson.GetBytes(body, "name").String()
		if !runNameRegex.MatchString(name) {
			m.RecordError("bad_name")
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid or missing run name")
			return
		}

		d, err := dump.Parse(body)
		if err != nil {
			m.RecordError("bad_request")
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}
		if d.Options.NumThreads == 0 {
			d.Options.NumThreads = opts.DefaultThreads
		}
		if d.NumThreads > 0 {
			d.Options.NumThreads = d.NumThreads
		}

		ctx, cancel := context.WithTimeout(r.Context(), opts.RunTimeout)
		defer cancel()

		start := time.Now()
		pred, err := edm.Run(ctx, d.Options, d.Generator(), d.TrainingFilter, d.PredictionFilter, nil, nil)
		elapsed := time.Since(start)
		if err != nil {
			// The driver only errors on programmer mistakes caught
			// before work begins (bad options, mismatched filters).
			logger.Warn("run rejected", "name", name, "error", err)
			m.RecordError("bad_request")
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}

		rec := recordFromPrediction(name, d, pred, elapsed)
		if err := store.Put(r.Context(), rec); err != nil {
			logger.Error("failed to store run record", "name", name, "error", err)
			m.RecordError("store_failed")
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		m.RecordRun(elapsed.Seconds(), pred.NumPredictions, pred.WorstRC.String())
		if pred.HasStats {
			m.SetLastRho(pred.Rho)
		}
		logger.Info("run complete",
			"name", name,
			"algorithm", d.Options.Algorithm.String(),
			"predictions", pred.NumPredictions,
			"rc", pred.WorstRC.String(),
			"elapsed_ms", elapsed.Milliseconds(),
		)

		httpx.WriteJSON(w, http.StatusOK, rec)
	}
}

// handleGetLatest returns the stored record for ?name=.
func handleGetLatest(store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "name parameter required")
			return
		}
		if !runNameRegex.MatchString(name) {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid run name format")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		rec, found, err := store.GetLatest(ctx, name)
		if err != nil {
			logger.Error("failed to get run record", "name", name, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no run record for %q", name))
			return
		}

		httpx.WriteJSON(w, http.StatusOK, rec)
	}
}

// recordFromPrediction flattens the outcome into a storable record. The
// internal missing sentinel becomes nil so it serializes as JSON null.
func recordFromPrediction(name string, d *dump.Dump, pred *edm.Prediction, elapsed time.Duration) storage.RunRecord {
	ystar := make([]*float64, pred.NumPredictions)
	last := pred.Ystar[pred.NumThetas-1]
	for i, v := range last {
		if v == edm.Missing {
			continue
		}
		value := v
		ystar[i] = &value
	}

	return storage.RunRecord{
		Name:           name,
		GeneratedAt:    time.Now().UTC(),
		Algorithm:      d.Options.Algorithm.String(),
		E:              d.Options.E,
		Thetas:         d.Options.Thetas,
		NumPredictions: pred.NumPredictions,
		WorstRC:        pred.WorstRC.String(),
		Rho:            pred.Rho,
		MAE:            pred.MAE,
		HasStats:       pred.HasStats,
		Ystar:          ystar,
		ElapsedMS:      elapsed.Milliseconds(),
	}
}
