package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kilianp07/evcorridor/core/model"
)

const corridor = `segment_id,length,aadt,truck_pct,latitude,longitude,cost_small,cost_medium,cost_large,existing_ports
1,10,30000,12.5,49.1,-123.1,100,180,300,
2,12.5,25000.0,10,49.2,-123.0,100,180,300,4
3,8,18000,20,49.3,-122.9,110,190,320,0
`

func TestRead(t *testing.T) {
	tbl, err := Read(strings.NewReader(corridor))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(tbl.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(tbl.Segments))
	}
	s := tbl.Segments[1]
	if s.ID != 2 || s.Length != 12.5 || s.AADT != 25000 || s.Costs[2] != 300 {
		t.Fatalf("unexpected segment %+v", s)
	}
	if len(tbl.Existing) != 1 || tbl.Existing[2] != 4 {
		t.Fatalf("unexpected existing %v", tbl.Existing)
	}
}

func TestReadAliases(t *testing.T) {
	data := "LHRS,Sec Len,AADT,Truck %,Latitude,Longitude,cost 1,cost 2,cost 3\n" +
		"7,5,1000,0,0,0,1,2,3\n"
	tbl, err := Read(strings.NewReader(data))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if tbl.Segments[0].ID != 7 || tbl.Segments[0].Costs != [3]float64{1, 2, 3} {
		t.Fatalf("unexpected segment %+v", tbl.Segments[0])
	}
}

func TestReadRejectsMalformedRows(t *testing.T) {
	header := "segment_id,length,aadt,truck_pct,latitude,longitude,cost_small,cost_medium,cost_large\n"
	cases := map[string]string{
		"missing column": "segment_id,length\n1,2\n",
		"not a number":   header + "1,ten,1000,0,0,0,1,2,3\n",
		"fractional id":  header + "1.5,10,1000,0,0,0,1,2,3\n",
		"infinite aadt":  header + "1,10,Inf,0,0,0,1,2,3\n",
		"huge aadt":      header + "1,10,1e30,0,0,0,1,2,3\n",
		"huge id":        header + "9.3e18,10,1000,0,0,0,1,2,3\n",
		"negative aadt":  header + "1,10,-5,0,0,0,1,2,3\n",
		"truck share":    header + "1,10,1000,140,0,0,1,2,3\n",
		"no rows":        header,
		"empty":          "",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Read(strings.NewReader(data))
			if !errors.Is(err, model.ErrMalformedSegment) {
				t.Fatalf("expected ErrMalformedSegment, got %v", err)
			}
		})
	}
}

func TestReadReportsLine(t *testing.T) {
	data := "segment_id,length,aadt,truck_pct,latitude,longitude,cost_small,cost_medium,cost_large\n" +
		"1,10,1000,0,0,0,1,2,3\n" +
		"2,10,abc,0,0,0,1,2,3\n"
	_, err := Read(strings.NewReader(data))
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("expected error on line 3, got %v", err)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segments.csv")
	if err := os.WriteFile(path, []byte(corridor), 0o600); err != nil {
		t.Fatal(err)
	}
	tbl, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if len(tbl.Segments) != 3 {
		t.Fatalf("expected 3 segments")
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
