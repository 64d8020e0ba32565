package table

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnforce_PadsDropsAndReorders(t *testing.T) {
	t.Parallel()

	src := New("B", "X", "A")
	src.AppendRow([]Value{Text("b1"), Text("x1"), Text("a1")})

	out := Enforce(src, []string{"A", "B", "C"})

	if len(out.Columns) != 3 || out.Columns[0] != "A" || out.Columns[1] != "B" || out.Columns[2] != "C" {
		t.Fatalf("unexpected columns: %#v", out.Columns)
	}
	if got := out.Cell(0, 0).String(); got != "a1" {
		t.Fatalf("expected a1, got %q", got)
	}
	if got := out.Cell(0, 1).String(); got != "b1" {
		t.Fatalf("expected b1, got %q", got)
	}
	if !out.Cell(0, 2).IsNull() {
		t.Fatalf("expected null pad for missing column, got %v", out.Cell(0, 2))
	}
	if out.HasColumn("X") {
		t.Fatalf("extra column X should have been dropped")
	}
}

func TestEnforce_IsIdempotent(t *testing.T) {
	t.Parallel()

	src := New("B", "A")
	src.AppendRow([]Value{Number(2), Number(1)})
	expected := []string{"A", "B", "C"}

	once := Enforce(src, expected)
	twice := Enforce(once, expected)

	if len(once.Columns) != len(twice.Columns) {
		t.Fatalf("column counts differ: %d vs %d", len(once.Columns), len(twice.Columns))
	}
	for i := range once.Columns {
		if once.Columns[i] != twice.Columns[i] {
			t.Fatalf("column %d differs: %q vs %q", i, once.Columns[i], twice.Columns[i])
		}
	}
	for r := range once.Rows {
		for c := range once.Columns {
			if once.Cell(r, c) != twice.Cell(r, c) {
				t.Fatalf("cell (%d,%d) differs after second enforce", r, c)
			}
		}
	}
}

func TestEnforce_NilInputIsEmptyTable(t *testing.T) {
	t.Parallel()

	out := Enforce(nil, []string{"A", "B"})

	if out == nil {
		t.Fatalf("expected an empty table, got nil")
	}
	if len(out.Columns) != 2 || out.Columns[0] != "A" || out.Columns[1] != "B" {
		t.Fatalf("unexpected columns: %#v", out.Columns)
	}
	if out.NumRows() != 0 {
		t.Fatalf("expected zero rows, got %d", out.NumRows())
	}
}

func TestEnforce_EmptyExpectedReturnsInput(t *testing.T) {
	t.Parallel()

	src := New("A")
	if out := Enforce(src, nil); out != src {
		t.Fatalf("expected the same table back for empty expected list")
	}
}

func TestAlign_UnionKeepsBaseOrderFirst(t *testing.T) {
	t.Parallel()

	base := New("A", "B")
	base.AppendRow([]Value{Text("a"), Text("b")})
	incoming := New("B", "C")
	incoming.AppendRow([]Value{Text("b2"), Text("c2")})

	a, b := Align(base, incoming)

	want := []string{"A", "B", "C"}
	for i, col := range want {
		if a.Columns[i] != col || b.Columns[i] != col {
			t.Fatalf("union column %d: got %q/%q, want %q", i, a.Columns[i], b.Columns[i], col)
		}
	}
	if !a.Cell(0, 2).IsNull() {
		t.Fatalf("base side should have null C")
	}
	if !b.Cell(0, 0).IsNull() {
		t.Fatalf("incoming side should have null A")
	}
}

func TestAlign_KindClashCastsBothSidesToText(t *testing.T) {
	t.Parallel()

	base := New("V")
	base.AppendRow([]Value{Number(12)})
	incoming := New("V")
	incoming.AppendRow([]Value{Text("twelve")})

	a, b := Align(base, incoming)

	if got := a.Cell(0, 0); got.Kind() != KindText || got.String() != "12" {
		t.Fatalf("base cell not cast to text: %v", got)
	}
	if got := b.Cell(0, 0); got.Kind() != KindText {
		t.Fatalf("incoming cell not text: %v", got)
	}
}

func TestAlign_AllNullColumnDoesNotClash(t *testing.T) {
	t.Parallel()

	base := New("V")
	base.AppendRow([]Value{Null()})
	incoming := New("V")
	incoming.AppendRow([]Value{Number(3)})

	_, b := Align(base, incoming)

	if got := b.Cell(0, 0); got.Kind() != KindNumber {
		t.Fatalf("number should survive alignment against a null column, got %v", got)
	}
}

func TestCodec_RoundTripPreservesKindsAndOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := New("EVTID", "N", "OK")
	src.AppendRow([]Value{Text("e1"), Number(1.5), Bool(true)})
	src.AppendRow([]Value{Null(), Number(2), Bool(false)})

	if err := WriteFile(dir, "mvt", src); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(dir, "mvt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if got.NumRows() != 2 || len(got.Columns) != 3 {
		t.Fatalf("unexpected shape: %d rows, %d columns", got.NumRows(), len(got.Columns))
	}
	if got.Columns[0] != "EVTID" || got.Columns[2] != "OK" {
		t.Fatalf("column order lost: %#v", got.Columns)
	}
	if v := got.Cell(0, 1); v.Kind() != KindNumber {
		t.Fatalf("number kind lost: %v", v)
	}
	if v := got.Cell(1, 0); !v.IsNull() {
		t.Fatalf("null lost: %v", v)
	}
	if v := got.Cell(0, 2); v.Kind() != KindBool {
		t.Fatalf("bool kind lost: %v", v)
	}
}

func TestReadFile_AbsentFileIsNilNotError(t *testing.T) {
	t.Parallel()

	got, err := ReadFile(t.TempDir(), "nothing")
	if err != nil {
		t.Fatalf("absent file must not error: %v", err)
	}
	if got != nil {
		t.Fatalf("absent file must read as nil table, got %#v", got)
	}
}

func TestWriteFile_LeavesNoTempFilesBehind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := New("A")
	src.AppendRow([]Value{Text("x")})
	if err := WriteFile(dir, "t", src); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != FileName("t") {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Fatalf("unexpected directory contents: %v", names)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName("t"))); err != nil {
		t.Fatalf("published file missing: %v", err)
	}
}

func TestListTables_FindsOnlyTableFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"biol", "mvt"} {
		tbl := New("A")
		tbl.AppendRow([]Value{Text("1")})
		if err := WriteFile(dir, name, tbl); err != nil {
			t.Fatalf("WriteFile %s: %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile notes: %v", err)
	}

	names, err := ListTables(dir)
	if err != nil {
		t.Fatalf("ListTables: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 tables, got %v", names)
	}
}

func TestValue_CanonicalStringForms(t *testing.T) {
	t.Parallel()

	cases := []struct {
		v    Value
		want string
	}{
		{Null(), ""},
		{Text("abc"), "abc"},
		{Number(42), "42"},
		{Number(1.25), "1.25"},
		{Bool(true), "true"},
		{Bool(false), "false"},
	}
	for _, c := range cases {
		if got := c.v.String(); got != c.want {
			t.Fatalf("String(%v) = %q, want %q", c.v, got, c.want)
		}
	}
}
