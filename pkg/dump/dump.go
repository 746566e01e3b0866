// Package dump reads and writes versioned run dumps: everything needed to
// replay a prediction run outside its original host — the raw series, the
// embedding parameters, the options, the two row filters, and a requested
// thread count.
//
// The format is a gzip-compressed JSON document with a mandatory "version"
// field. Readers tolerate unknown auxiliary fields (they are simply not
// queried) and fail closed on missing mandatory ones.
package dump

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"github.com/EDM-Developers/edm/pkg/dataset"
	"github.com/EDM-Developers/edm/pkg/edm"
)

// Version is the format version emitted by Write.
const Version = 1

var (
	// ErrBadVersion indicates an absent or unsupported version field.
	ErrBadVersion = errors.New("dump: missing or unsupported version")

	// ErrMissingField indicates a mandatory field is absent.
	ErrMissingField = errors.New("dump: mandatory field missing")
)

// Dump is a fully materialized replay input.
type Dump struct {
	Series dataset.Bundle

	// Embedding parameters of the generator.
	Tau             int
	NumExtrasLagged int
	DTWeight        float64
	DT0             bool
	CumulativeDT    bool

	Options edm.Options

	TrainingFilter   []bool
	PredictionFilter []bool

	NumThreads int
}

// Generator rebuilds the manifold generator the dump describes.
func (d *Dump) Generator() *edm.ManifoldGenerator {
	gen := d.Series.Generator(d.NumExtrasLagged, d.Tau)
	if d.DTWeight != 0 {
		gen.AddDTData(d.DTWeight, d.DT0, d.CumulativeDT)
	}
	return gen
}

// wire mirrors the on-disk document; enums travel as their wire names.
type wire struct {
	Version int `json:"version"`

	Series struct {
		T      []float64   `json:"t,omitempty"`
		X      []float64   `json:"x"`
		Y      []float64   `json:"y,omitempty"`
		CoX    []float64   `json:"co_x,omitempty"`
		Panel  []int       `json:"panel,omitempty"`
		Extras [][]float64 `json:"extras,omitempty"`
	} `json:"series"`

	Embedding struct {
		Tau             int     `json:"tau"`
		NumExtrasLagged int     `json:"num_extras_lagged"`
		DTWeight        float64 `json:"dt_weight"`
		DT0             bool    `json:"dt0"`
		CumulativeDT    bool    `json:"cumulative_dt"`
	} `json:"embedding"`

	Options struct {
		Algorithm        string    `json:"algorithm"`
		E                int       `json:"e"`
		K                int       `json:"k"`
		Thetas           []float64 `json:"thetas"`
		Distance         string    `json:"distance"`
		Metrics          []string  `json:"metrics,omitempty"`
		MissingDistance  float64   `json:"missing_distance"`
		ForceCompute     bool      `json:"force_compute"`
		PanelMode        bool      `json:"panel_mode"`
		IDW              float64   `json:"idw"`
		AspectRatio      float64   `json:"aspect_ratio"`
		SaveCoefficients bool      `json:"save_coefficients"`
		Verbosity        int       `json:"verbosity"`
	} `json:"options"`

	Filters struct {
		Training   []bool `json:"training"`
		Prediction []bool `json:"prediction"`
	} `json:"filters"`

	NumThreads int `json:"num_threads"`
}

// Write serializes the dump as gzip-compressed JSON.
func Write(w io.Writer, d *Dump) error {
	var doc wire
	doc.Version = Version
	doc.Series.T = d.Series.T
	doc.Series.X = d.Series.X
	doc.Series.Y = d.Series.Y
	doc.Series.CoX = d.Series.CoX
	doc.Series.Panel = d.Series.PanelIDs
	doc.Series.Extras = d.Series.Extras
	doc.Embedding.Tau = d.Tau
	doc.Embedding.NumExtrasLagged = d.NumExtrasLagged
	doc.Embedding.DTWeight = d.DTWeight
	doc.Embedding.DT0 = d.DT0
	doc.Embedding.CumulativeDT = d.CumulativeDT
	doc.Options.Algorithm = d.Options.Algorithm.String()
	doc.Options.E = d.Options.E
	doc.Options.K = d.Options.K
	doc.Options.Thetas = d.Options.Thetas
	doc.Options.Distance = d.Options.Distance.String()
	for _, m := range d.Options.Metrics {
		name := "diff"
		if m == edm.CheckSame {
			name = "check_same"
		}
		doc.Options.Metrics = append(doc.Options.Metrics, name)
	}
	doc.Options.MissingDistance = d.Options.MissingDistance
	doc.Options.ForceCompute = d.Options.ForceCompute
	doc.Options.PanelMode = d.Options.PanelMode
	doc.Options.IDW = d.Options.IDW
	doc.Options.AspectRatio = d.Options.AspectRatio
	doc.Options.SaveCoefficients = d.Options.SaveCoefficients
	doc.Options.Verbosity = d.Options.Verbosity
	doc.Filters.Training = d.TrainingFilter
	doc.Filters.Prediction = d.PredictionFilter
	doc.NumThreads = d.NumThreads

	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(&doc); err != nil {
		gz.Close()
		return fmt.Errorf("dump: encode: %w", err)
	}
	return gz.Close()
}

// Read decompresses and parses a dump file.
func Read(r io.Reader) (*Dump, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("dump: open gzip stream: %w", err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("dump: read: %w", err)
	}
	return Parse(data)
}

// Parse parses a dump document, ignoring unknown fields and rejecting
// documents with a missing version or missing mandatory sections.
func Parse(data []byte) (*Dump, error) {
	doc := gjson.ParseBytes(data)

	version := doc.Get("version")
	if !version.Exists() || version.Int() != Version {
		return nil, fmt.Errorf("%w: got %q", ErrBadVersion, version.Raw)
	}
	for _, field := range []string{"series.x", "options.algorithm", "options.e", "options.thetas", "filters.training", "filters.prediction"} {
		if !doc.Get(field).Exists() {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, field)
		}
	}

	d := &Dump{}

	series := doc.Get("series").Raw
	bundle, err := dataset.FromJSON([]byte(series))
	if err != nil {
		return nil, fmt.Errorf("dump: series: %w", err)
	}
	d.Series = *bundle

	d.Tau = int(doc.Get("embedding.tau").Int())
	if d.Tau == 0 {
		d.Tau = 1
	}
	d.NumExtrasLagged = int(doc.Get("embedding.num_extras_lagged").Int())
	d.DTWeight = doc.Get("embedding.dt_weight").Float()
	d.DT0 = doc.Get("embedding.dt0").Bool()
	d.CumulativeDT = doc.Get("embedding.cumulative_dt").Bool()

	if d.Options.Algorithm, err = edm.ParseAlgorithm(doc.Get("options.algorithm").String()); err != nil {
		return nil, err
	}
	if d.Options.Distance, err = edm.ParseDistanceKind(doc.Get("options.distance").String()); err != nil {
		return nil, err
	}
	d.Options.E = int(doc.Get("options.e").Int())
	d.Options.K = int(doc.Get("options.k").Int())
	for _, th := range doc.Get("options.thetas").Array() {
		d.Options.Thetas = append(d.Options.Thetas, th.Float())
	}
	for _, m := range doc.Get("options.metrics").Array() {
		metric := edm.Diff
		if m.String() == "check_same" {
			metric = edm.CheckSame
		}
		d.Options.Metrics = append(d.Options.Metrics, metric)
	}
	d.Options.MissingDistance = doc.Get("options.missing_distance").Float()
	d.Options.ForceCompute = doc.Get("options.force_compute").Bool()
	d.Options.PanelMode = doc.Get("options.panel_mode").Bool()
	d.Options.IDW = doc.Get("options.idw").Float()
	d.Options.AspectRatio = doc.Get("options.aspect_ratio").Float()
	d.Options.SaveCoefficients = doc.Get("options.save_coefficients").Bool()
	d.Options.Verbosity = int(doc.Get("options.verbosity").Int())

	for _, b := range doc.Get("filters.training").Array() {
		d.TrainingFilter = append(d.TrainingFilter, b.Bool())
	}
	for _, b := range doc.Get("filters.prediction").Array() {
		d.PredictionFilter = append(d.PredictionFilter, b.Bool())
	}
	d.NumThreads = int(doc.Get("num_threads").Int())

	return d, nil
}
