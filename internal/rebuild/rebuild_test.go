package rebuild

import (
	"testing"

	"eds/internal/table"
)

func pmsiBatch() map[string]*table.Table {
	pmsi := table.New("EVTID", "ELTID", "CODEACTES", "DALL", "DATENT", "DATSORT")
	// Procedure extract rows.
	pmsi.AppendRow([]table.Value{
		table.Text("e1"), table.Text("x1"), table.Text("HBQK389"), table.Null(),
		table.Text("2024-01-02T08:00:00Z"), table.Text("2024-01-05T10:00:00Z"),
	})
	pmsi.AppendRow([]table.Value{
		table.Text("e1"), table.Null(), table.Text("AAFA001"), table.Null(),
		table.Null(), table.Null(),
	})
	// Diagnosis extract rows for the same episode.
	pmsi.AppendRow([]table.Value{
		table.Text("e1"), table.Null(), table.Null(), table.Text("J18.9"),
		table.Null(), table.Null(),
	})
	pmsi.AppendRow([]table.Value{
		table.Text("e1"), table.Null(), table.Null(), table.Text("J18.9"),
		table.Null(), table.Null(),
	})
	// A second episode.
	pmsi.AppendRow([]table.Value{
		table.Text("e2"), table.Text("x9"), table.Text("ZZQX111"), table.Text("I10"),
		table.Text("2024-02-01T10:00:00+0100"), table.Text("2024-02-03T09:00:00+0100"),
	})
	return map[string]*table.Table{"pmsi": pmsi}
}

func TestRebuild_GroupsByEpisodeAndJoinsMultiValued(t *testing.T) {
	t.Parallel()

	tables := pmsiBatch()
	New(DefaultSpecs()).Rebuild(tables)

	pmsi := tables["pmsi"]
	if pmsi.NumRows() != 2 {
		t.Fatalf("expected one row per episode, got %d", pmsi.NumRows())
	}

	codes := pmsi.ColumnIndex("CODEACTES")
	dall := pmsi.ColumnIndex("DALL")
	eltid := pmsi.ColumnIndex("ELTID")

	// Sorted, de-duplicated, ';'-joined.
	if got := pmsi.Cell(0, codes).String(); got != "AAFA001;HBQK389" {
		t.Fatalf("e1 CODEACTES = %q", got)
	}
	if got := pmsi.Cell(0, dall).String(); got != "J18.9" {
		t.Fatalf("e1 DALL = %q (duplicates must collapse)", got)
	}
	// Scalars reduce to the first non-null value.
	if got := pmsi.Cell(0, eltid).String(); got != "x1" {
		t.Fatalf("e1 ELTID = %q", got)
	}
	if got := pmsi.Cell(1, codes).String(); got != "ZZQX111" {
		t.Fatalf("e2 CODEACTES = %q", got)
	}
}

func TestRebuild_StayDuration(t *testing.T) {
	t.Parallel()

	tables := pmsiBatch()
	New(DefaultSpecs()).Rebuild(tables)

	pmsi := tables["pmsi"]
	sejdur := pmsi.ColumnIndex("SEJDUR")
	if sejdur < 0 {
		t.Fatalf("SEJDUR column not added")
	}
	// e1: 2024-01-02T08:00Z to 2024-01-05T10:00Z is 3 whole days.
	if v := pmsi.Cell(0, sejdur); v.Kind() != table.KindNumber || v.String() != "3" {
		t.Fatalf("e1 SEJDUR = %v", v)
	}
	// e2 uses colon-less offsets; 1 whole day.
	if v := pmsi.Cell(1, sejdur); v.String() != "1" {
		t.Fatalf("e2 SEJDUR = %v", v)
	}
}

func TestDaysBetween_ToleratesFormatsAndDefaultsToZero(t *testing.T) {
	t.Parallel()

	cases := []struct {
		start, end string
		want       int
	}{
		{"2024-01-01", "2024-01-08", 7},                         // date-only
		{"2024-01-01T00:00:00", "2024-01-02T12:00:00", 1},       // zone-less
		{"2024-01-01T00:00:00Z", "2024-01-02T00:00:00+0200", 0}, // mixed offsets
		{"garbage", "2024-01-02", 0},                            // unparseable start
		{"2024-01-02", "", 0},                                   // missing end
		{"2024-01-05", "2024-01-01", 0},                         // negative span clamps
	}
	for _, c := range cases {
		if got := daysBetween(c.start, c.end); got != c.want {
			t.Fatalf("daysBetween(%q, %q) = %d, want %d", c.start, c.end, got, c.want)
		}
	}
}

func TestRebuild_BlankKeyRowsStaySeparate(t *testing.T) {
	t.Parallel()

	pmsi := table.New("EVTID", "CODEACTES")
	pmsi.AppendRow([]table.Value{table.Null(), table.Text("A")})
	pmsi.AppendRow([]table.Value{table.Null(), table.Text("B")})
	tables := map[string]*table.Table{"pmsi": pmsi}

	New(DefaultSpecs()).Rebuild(tables)

	if got := tables["pmsi"].NumRows(); got != 2 {
		t.Fatalf("blank-key rows must not merge, got %d rows", got)
	}
}

func TestRebuild_LeavesOtherTablesAlone(t *testing.T) {
	t.Parallel()

	biol := table.New("EVTID", "PNAME")
	biol.AppendRow([]table.Value{table.Text("e1"), table.Text("Sodium")})
	biol.AppendRow([]table.Value{table.Text("e1"), table.Text("Potassium")})
	tables := map[string]*table.Table{"biol": biol}

	New(DefaultSpecs()).Rebuild(tables)

	if tables["biol"].NumRows() != 2 {
		t.Fatalf("non-canonical table must not be grouped")
	}
}
