// Command edmrun replays a prediction run from a dump file.
//
// Usage:
//
//	edmrun <dump-file> [nthreads]
//
// The dump holds the raw series, embedding parameters, options, and row
// filters. edmrun executes the run, prints rho/MAE and the worst return
// code, and writes the full result next to the input as
// <dump-file minus extension>-out.json.gz.
package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/EDM-Developers/edm/pkg/dump"
	"github.com/EDM-Developers/edm/pkg/edm"
)

// result is the replay output document.
type result struct {
	WorstRC        string        `json:"worst_rc"`
	NumThetas      int           `json:"num_thetas"`
	NumPredictions int           `json:"num_predictions"`
	Rho            *float64      `json:"rho,omitempty"`
	MAE            *float64      `json:"mae,omitempty"`
	ElapsedMS      int64         `json:"elapsed_ms"`
	Ystar          [][]*float64  `json:"ystar"`
	Coeffs         [][][]float64 `json:"coeffs,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: edmrun <dump-file> [nthreads]")
		os.Exit(1)
	}
	inPath := os.Args[1]

	f, err := os.Open(inPath)
	if err != nil {
		fatal(err)
	}
	d, err := dump.Read(f)
	f.Close()
	if err != nil {
		fatal(err)
	}

	if len(os.Args) > 2 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil {
			fatal(fmt.Errorf("invalid thread count %q", os.Args[2]))
		}
		d.NumThreads = n
	}
	d.Options.NumThreads = d.NumThreads
	if d.Options.Verbosity == 0 {
		d.Options.Verbosity = 1
	}

	start := time.Now()
	pred, err := edm.Run(context.Background(), d.Options, d.Generator(), d.TrainingFilter, d.PredictionFilter, edm.ConsoleSink{}, nil)
	if err != nil {
		fatal(err)
	}
	elapsed := time.Since(start)

	base := strings.TrimSuffix(inPath, ".json.gz")
	if base == inPath {
		if i := strings.LastIndex(inPath, "."); i > 0 {
			base = inPath[:i]
		}
	}
	outPath := base + "-out.json.gz"
	if err := writeResult(outPath, pred, elapsed); err != nil {
		fatal(err)
	}

	fmt.Printf("rc=%s predictions=%d elapsed=%s\n", pred.WorstRC, pred.NumPredictions, elapsed.Round(time.Millisecond))
	if pred.HasStats {
		fmt.Printf("rho=%.6f mae=%.6f\n", pred.Rho, pred.MAE)
	}
	fmt.Printf("results written to %s\n", outPath)

	if pred.WorstRC != edm.Success {
		os.Exit(int(pred.WorstRC))
	}
}

// writeResult serializes the prediction, mapping the missing sentinel to
// JSON null the way the original host mapped it back to its own missing
// value.
func writeResult(path string, pred *edm.Prediction, elapsed time.Duration) error {
	res := result{
		WorstRC:        pred.WorstRC.String(),
		NumThetas:      pred.NumThetas,
		NumPredictions: pred.NumPredictions,
		ElapsedMS:      elapsed.Milliseconds(),
		Ystar:          make([][]*float64, pred.NumThetas),
		Coeffs:         pred.Coeffs,
	}
	if pred.HasStats {
		rho, mae := pred.Rho, pred.MAE
		res.Rho, res.MAE = &rho, &mae
	}
	for ti, row := range pred.Ystar {
		out := make([]*float64, len(row))
		for q, v := range row {
			if v == edm.Missing {
				continue
			}
			value := v
			out[q] = &value
		}
		res.Ystar[ti] = out
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(&res); err != nil {
		gz.Close()
		f.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "edmrun:", err)
	os.Exit(1)
}
