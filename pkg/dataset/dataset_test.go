package dataset

import (
	"errors"
	"strings"
	"testing"

	"github.com/EDM-Developers/edm/pkg/edm"
)

func TestFromJSON_Basic(t *testing.T) {
	doc := `{
		"t": [0, 1, 2],
		"x": [0.2, null, 0.9],
		"y": [0.64, 0.9, "bad"],
		"panel": [0, 0, 1],
		"extras": [[1, 2, 3]],
		"future_field": {"ignored": true}
	}`

	b, err := FromJSON([]byte(doc))
	if err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}
	if got := b.NumObs(); got != 3 {
		t.Fatalf("NumObs = %d, want 3", got)
	}
	if b.X[1] != edm.Missing {
		t.Errorf("null cell should map to the missing sentinel")
	}
	if b.Y[2] != edm.Missing {
		t.Errorf("non-numeric cell should map to the missing sentinel")
	}
	if b.X[0] != 0.2 || b.X[2] != 0.9 {
		t.Errorf("numeric cells mangled: %v", b.X)
	}
	if len(b.PanelIDs) != 3 || b.PanelIDs[2] != 1 {
		t.Errorf("panel ids mangled: %v", b.PanelIDs)
	}
	if len(b.Extras) != 1 || b.Extras[0][1] != 2 {
		t.Errorf("extras mangled: %v", b.Extras)
	}
}

func TestFromJSON_MissingPrimary(t *testing.T) {
	_, err := FromJSON([]byte(`{"y": [1, 2, 3]}`))
	if !errors.Is(err, ErrNoPrimary) {
		t.Fatalf("err = %v, want ErrNoPrimary", err)
	}
}

func TestFromJSON_Ragged(t *testing.T) {
	_, err := FromJSON([]byte(`{"x": [1, 2, 3], "y": [1]}`))
	if !errors.Is(err, ErrRaggedColumns) {
		t.Fatalf("err = %v, want ErrRaggedColumns", err)
	}
}

func TestFromCSV_Basic(t *testing.T) {
	csvDoc := strings.Join([]string{
		"time,temp,target,region",
		"0,20.5,21.0,1",
		"1,,21.5,1",
		"2,22.0,not-a-number,2",
	}, "\n")

	b, err := FromCSV(strings.NewReader(csvDoc), ColumnSpec{
		T:     "time",
		X:     "temp",
		Y:     "target",
		Panel: "region",
	})
	if err != nil {
		t.Fatalf("FromCSV failed: %v", err)
	}
	if b.NumObs() != 3 {
		t.Fatalf("NumObs = %d, want 3", b.NumObs())
	}
	if b.X[1] != edm.Missing {
		t.Errorf("empty cell should map to the missing sentinel")
	}
	if b.Y[2] != edm.Missing {
		t.Errorf("unparseable cell should map to the missing sentinel")
	}
	if b.PanelIDs[2] != 2 {
		t.Errorf("panel ids mangled: %v", b.PanelIDs)
	}
}

func TestFromCSV_UnknownColumn(t *testing.T) {
	_, err := FromCSV(strings.NewReader("a,b\n1,2\n"), ColumnSpec{X: "nope"})
	if !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("err = %v, want ErrColumnNotFound", err)
	}
}

func TestGenerator_WiresOptionalColumns(t *testing.T) {
	b := &Bundle{
		X:        []float64{1, 2, 3},
		CoX:      []float64{10, 20, 30},
		PanelIDs: []int{0, 0, 1},
	}
	gen := b.Generator(0, 1)
	if !gen.PanelMode() {
		t.Error("panel ids should switch the generator into panel mode")
	}
	m, err := gen.Create(1, []bool{true, true, true}, true)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if m.At(0, 0) != 10 {
		t.Errorf("prediction manifold should use the co-prediction series, got %v", m.At(0, 0))
	}
}
