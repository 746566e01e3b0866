package dataset

import (
	"github.com/tidwall/gjson"

	"github.com/EDM-Developers/edm/pkg/edm"
)

// FromJSON builds a Bundle from a JSON document of column arrays:
//
//	{
//	  "t":      [1, 2, 3],
//	  "x":      [0.2, 0.64, null],
//	  "y":      [0.64, null, 0.9],
//	  "co_x":   [...],        // optional
//	  "panel":  [0, 0, 1],    // optional
//	  "extras": [[...], ...]  // optional, one array per extra variable
//	}
//
// Unknown fields are ignored. null and non-numeric cells become
// edm.Missing. Only "x" is mandatory.
func FromJSON(data []byte) (*Bundle, error) {
	doc := gjson.ParseBytes(data)

	x := doc.Get("x")
	if !x.Exists() {
		return nil, ErrNoPrimary
	}

	b := &Bundle{X: floatColumn(x)}
	if t := doc.Get("t"); t.Exists() {
		b.T = floatColumn(t)
	}
	if y := doc.Get("y"); y.Exists() {
		b.Y = floatColumn(y)
	}
	if co := doc.Get("co_x"); co.Exists() {
		b.CoX = floatColumn(co)
	}
	if panel := doc.Get("panel"); panel.Exists() {
		for _, v := range panel.Array() {
			b.PanelIDs = append(b.PanelIDs, int(v.Int()))
		}
	}
	if extras := doc.Get("extras"); extras.Exists() {
		for _, col := range extras.Array() {
			b.Extras = append(b.Extras, floatColumn(col))
		}
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// floatColumn converts a JSON array to floats, mapping null and anything
// non-numeric to the sentinel.
func floatColumn(col gjson.Result) []float64 {
	arr := col.Array()
	out := make([]float64, len(arr))
	for i, v := range arr {
		if v.Type != gjson.Number {
			out[i] = edm.Missing
			continue
		}
		out[i] = normalize(v.Float(), true)
	}
	return out
}
