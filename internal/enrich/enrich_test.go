package enrich

import (
	"testing"
	"time"

	"eds/internal/table"
)

func fixedNow(t *testing.T, j *Joiner) {
	t.Helper()
	j.now = func() time.Time {
		return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	}
}

func buildBatch() map[string]*table.Table {
	patient := table.New("PATID", "PATBD", "PATSEX")
	patient.AppendRow([]table.Value{table.Text("p1"), table.Text("1990-06-16"), table.Text("female")})
	patient.AppendRow([]table.Value{table.Text("p2"), table.Text("1950-01-31T00:00:00Z"), table.Text("male")})

	mvt := table.New("EVTID", "PATID", "DATENT", "DATSORT", "SEJUM", "PATBD", "PATAGE", "PATSEX")
	mvt.AppendRow([]table.Value{
		table.Text("e1"), table.Text("p1"),
		table.Text("2024-01-02T08:00:00Z"), table.Text("2024-01-05T10:00:00Z"),
		table.Null(), table.Null(), table.Null(), table.Null(),
	})

	biol := table.New("EVTID", "PNAME", "RESULT", "PATID", "PATSEX", "DATENT")
	biol.AppendRow([]table.Value{
		table.Text("e1"), table.Text("Sodium"), table.Number(140),
		table.Null(), table.Null(), table.Null(),
	})
	biol.AppendRow([]table.Value{
		table.Text("e1"), table.Text("Potassium"), table.Number(4.1),
		table.Null(), table.Text("unknown"), table.Null(),
	})

	return map[string]*table.Table{"patient": patient, "mvt": mvt, "biol": biol}
}

func TestEnrich_SubjectThenEpisodePropagation(t *testing.T) {
	t.Parallel()

	j := New(DefaultConfig())
	fixedNow(t, j)
	tables := buildBatch()
	j.Enrich(tables)

	mvt := tables["mvt"]
	if got := mvt.Cell(0, mvt.ColumnIndex("PATSEX")).String(); got != "female" {
		t.Fatalf("mvt PATSEX = %q", got)
	}
	if got := mvt.Cell(0, mvt.ColumnIndex("PATBD")).String(); got != "1990-06-16" {
		t.Fatalf("mvt PATBD = %q", got)
	}

	// biol has no PATID value of its own; it reaches the demographics
	// through the episode pass.
	biol := tables["biol"]
	if got := biol.Cell(0, biol.ColumnIndex("PATID")).String(); got != "p1" {
		t.Fatalf("biol PATID = %q", got)
	}
	if got := biol.Cell(0, biol.ColumnIndex("PATSEX")).String(); got != "female" {
		t.Fatalf("biol PATSEX = %q", got)
	}
	if got := biol.Cell(0, biol.ColumnIndex("DATENT")).String(); got != "2024-01-02T08:00:00Z" {
		t.Fatalf("biol DATENT = %q", got)
	}
}

func TestEnrich_CoalesceNeverOverwrites(t *testing.T) {
	t.Parallel()

	j := New(DefaultConfig())
	fixedNow(t, j)
	tables := buildBatch()
	j.Enrich(tables)

	biol := tables["biol"]
	if got := biol.Cell(1, biol.ColumnIndex("PATSEX")).String(); got != "unknown" {
		t.Fatalf("existing non-null value overwritten: %q", got)
	}
}

func TestEnrich_DerivedAge(t *testing.T) {
	t.Parallel()

	j := New(DefaultConfig())
	fixedNow(t, j) // 2024-06-15

	tables := buildBatch()
	j.Enrich(tables)

	patient := tables["patient"]
	ageIdx := patient.ColumnIndex("PATAGE")
	if ageIdx < 0 {
		t.Fatalf("PATAGE column not added to subject table")
	}
	// Birthday 1990-06-16 is one day after the reference date.
	if got := patient.Cell(0, ageIdx).String(); got != "33" {
		t.Fatalf("p1 age = %q, want 33", got)
	}
	// Zone-suffixed birth date still parses.
	if got := patient.Cell(1, ageIdx).String(); got != "74" {
		t.Fatalf("p2 age = %q, want 74", got)
	}

	// The age flows through both passes into the fact table.
	mvt := tables["mvt"]
	if got := mvt.Cell(0, mvt.ColumnIndex("PATAGE")).String(); got != "33" {
		t.Fatalf("mvt PATAGE = %q", got)
	}
}

func TestEnrich_DefaultWard(t *testing.T) {
	t.Parallel()

	j := New(DefaultConfig())
	fixedNow(t, j)
	tables := buildBatch()
	j.Enrich(tables)

	mvt := tables["mvt"]
	if got := mvt.Cell(0, mvt.ColumnIndex("SEJUM")).String(); got != "Service Général" {
		t.Fatalf("SEJUM default = %q", got)
	}
}

func TestEnrich_MissingParentTablesIsANoop(t *testing.T) {
	t.Parallel()

	j := New(DefaultConfig())
	fixedNow(t, j)

	biol := table.New("EVTID", "PNAME")
	biol.AppendRow([]table.Value{table.Text("e1"), table.Text("Sodium")})
	tables := map[string]*table.Table{"biol": biol}

	j.Enrich(tables) // must not panic
	if biol.NumRows() != 1 {
		t.Fatalf("rows changed: %d", biol.NumRows())
	}
}

func TestEnrich_BlankKeysNeverJoin(t *testing.T) {
	t.Parallel()

	j := New(DefaultConfig())
	fixedNow(t, j)

	patient := table.New("PATID", "PATBD", "PATSEX")
	patient.AppendRow([]table.Value{table.Text(""), table.Text("1990-01-01"), table.Text("female")})

	mvt := table.New("EVTID", "PATID", "PATSEX")
	mvt.AppendRow([]table.Value{table.Text("e1"), table.Text(""), table.Null()})

	tables := map[string]*table.Table{"patient": patient, "mvt": mvt}
	j.Enrich(tables)

	if v := mvt.Cell(0, mvt.ColumnIndex("PATSEX")); !v.IsNull() {
		t.Fatalf("blank key must not join, got %v", v)
	}
}
