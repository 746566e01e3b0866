package dump

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/EDM-Developers/edm/pkg/dataset"
	"github.com/EDM-Developers/edm/pkg/edm"
)

func sampleDump() *Dump {
	return &Dump{
		Series: dataset.Bundle{
			T:      []float64{0, 1, 2, 3},
			X:      []float64{0.2, 0.64, edm.Missing, 0.9},
			Y:      []float64{0.64, 0.92, 0.9, edm.Missing},
			Extras: [][]float64{{1, 2, 3, 4}},
		},
		Tau:             1,
		NumExtrasLagged: 1,
		Options: edm.Options{
			Algorithm:       edm.SMap,
			E:               2,
			K:               -1,
			Thetas:          []float64{0.5, 2},
			Distance:        edm.MeanAbsoluteError,
			Metrics:         []edm.Metric{edm.Diff, edm.CheckSame},
			MissingDistance: 1.5,
			ForceCompute:    true,
		},
		TrainingFilter:   []bool{true, true, true, false},
		PredictionFilter: []bool{false, false, true, true},
		NumThreads:       2,
	}
}

func TestRoundTrip(t *testing.T) {
	d := sampleDump()

	var buf bytes.Buffer
	if err := Write(&buf, d); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if !reflect.DeepEqual(got.Series.X, d.Series.X) {
		t.Errorf("x column: got %v, want %v", got.Series.X, d.Series.X)
	}
	if !reflect.DeepEqual(got.Options, d.Options) {
		t.Errorf("options: got %+v, want %+v", got.Options, d.Options)
	}
	if !reflect.DeepEqual(got.TrainingFilter, d.TrainingFilter) {
		t.Errorf("training filter mangled")
	}
	if got.NumThreads != 2 || got.Tau != 1 || got.NumExtrasLagged != 1 {
		t.Errorf("scalars mangled: %+v", got)
	}
}

func TestRead_ToleratesUnknownFields(t *testing.T) {
	doc := map[string]any{
		"version":           1,
		"series":            map[string]any{"x": []float64{1, 2, 3}},
		"options":           map[string]any{"algorithm": "simplex", "e": 1, "thetas": []float64{1}},
		"filters":           map[string]any{"training": []bool{true, true, true}, "prediction": []bool{true, true, true}},
		"auxiliary_payload": map[string]any{"from": "a newer writer"},
	}
	d, err := Read(gzipped(t, doc))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if d.Options.Algorithm != edm.Simplex || len(d.Series.X) != 3 {
		t.Errorf("parsed dump mangled: %+v", d)
	}
}

func TestRead_FailsClosedOnMissingMandatory(t *testing.T) {
	cases := []struct {
		name string
		doc  map[string]any
		want error
	}{
		{
			name: "no version",
			doc: map[string]any{
				"series": map[string]any{"x": []float64{1}},
			},
			want: ErrBadVersion,
		},
		{
			name: "unsupported version",
			doc: map[string]any{
				"version": 99,
				"series":  map[string]any{"x": []float64{1}},
			},
			want: ErrBadVersion,
		},
		{
			name: "no primary series",
			doc: map[string]any{
				"version": 1,
				"series":  map[string]any{"y": []float64{1}},
				"options": map[string]any{"algorithm": "simplex", "e": 1, "thetas": []float64{1}},
				"filters": map[string]any{"training": []bool{true}, "prediction": []bool{true}},
			},
			want: ErrMissingField,
		},
		{
			name: "no filters",
			doc: map[string]any{
				"version": 1,
				"series":  map[string]any{"x": []float64{1}},
				"options": map[string]any{"algorithm": "simplex", "e": 1, "thetas": []float64{1}},
			},
			want: ErrMissingField,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(gzipped(t, tc.doc))
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestGenerator_RebuildsEmbedding(t *testing.T) {
	d := sampleDump()
	d.DTWeight = 2
	d.DT0 = true

	gen := d.Generator()
	if gen.EDt(2) != 2 {
		t.Errorf("dt columns not rebuilt: EDt(2) = %d", gen.EDt(2))
	}
	if gen.EActual(2) != 2+2+2 {
		t.Errorf("EActual(2) = %d", gen.EActual(2))
	}
}

func gzipped(t *testing.T, doc map[string]any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(doc); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf
}
