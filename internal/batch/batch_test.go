package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"eds/internal/mapping"
	"eds/internal/table"
)

const testMapping = `{
  "Patient": {
    "table_name": "patient",
    "columns": {"PATID": "id", "PATBD": "birthDate", "PATSEX": "gender"}
  },
  "Encounter": {
    "table_name": "mvt",
    "columns": {"EVTID": "id", "PATID": "subject.reference", "DATENT": "period.start"}
  },
  "Observation": {
    "table_name": "biol",
    "columns": {
      "EVTID": "encounter.reference",
      "PNAME": "code.text",
      "RESULT": "valueQuantity.value",
      "PRLVTDATE": "effectiveDateTime"
    }
  },
  "MedicationRequest": {
    "table_name": "pharma",
    "columns": {"EVTID": "encounter.reference", "ELTID": "id"}
  }
}`

const bundleJSON = `{
  "resourceType": "Bundle",
  "entry": [
    {"resource": {"resourceType": "Patient", "id": "p1", "birthDate": "1990-06-16", "gender": "female"}},
    {"resource": {"resourceType": "Encounter", "id": "e1",
                  "subject": {"reference": "Patient/p1"},
                  "period": {"start": "2024-01-02T08:00:00Z"}}},
    {"resource": {"resourceType": "Observation", "code": {"text": "Sodium"},
                  "encounter": {"reference": "Encounter/e1"},
                  "valueQuantity": {"value": 140},
                  "effectiveDateTime": "2024-01-02T09:00:00Z"}}
  ]
}`

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	cfg, err := mapping.Decode([]byte(testMapping))
	if err != nil {
		t.Fatalf("decode mapping: %v", err)
	}
	return New(cfg, mapping.NewRegistry(cfg), nil)
}

func writeInput(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestBuild_StagesNonEmptyTablesOnly(t *testing.T) {
	t.Parallel()

	inputDir := t.TempDir()
	batchDir := t.TempDir()
	writeInput(t, inputDir, "bundle.json", bundleJSON)

	res, err := newTestBuilder(t).Build(context.Background(), inputDir, batchDir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if res.FilesProcessed != 1 {
		t.Fatalf("files processed = %d", res.FilesProcessed)
	}
	if res.Tables["mvt"].Rows != 1 || res.Tables["biol"].Rows != 1 {
		t.Fatalf("unexpected table summaries: %#v", res.Tables)
	}

	// No MedicationRequest resources were present, so pharma is reported
	// empty and its file is not written.
	foundEmpty := false
	for _, name := range res.EmptyTables {
		if name == "pharma" {
			foundEmpty = true
		}
	}
	if !foundEmpty {
		t.Fatalf("pharma should be listed empty: %#v", res.EmptyTables)
	}
	if _, err := os.Stat(filepath.Join(batchDir, table.FileName("pharma"))); !os.IsNotExist(err) {
		t.Fatalf("empty table file should not exist: %v", err)
	}

	mvt, err := table.ReadFile(batchDir, "mvt")
	if err != nil || mvt == nil {
		t.Fatalf("read staged mvt: %v", err)
	}
	if got := mvt.Cell(0, mvt.ColumnIndex("EVTID")).String(); got != "e1" {
		t.Fatalf("staged EVTID = %q", got)
	}
}

func TestBuild_SchemaOnlyTableStagesEmpty(t *testing.T) {
	t.Parallel()

	// A "_schemas" entry can declare a table that no mapping rule feeds;
	// the build must report it empty rather than fail on the missing buffer.
	withGhost := testMapping + `{"_schemas": {"ghost": ["A", "B"]}}`
	cfg, err := mapping.Decode([]byte(withGhost))
	if err != nil {
		t.Fatalf("decode mapping: %v", err)
	}
	b := New(cfg, mapping.NewRegistry(cfg), nil)

	docs, err := DecodeDocuments([]byte(bundleJSON))
	if err != nil {
		t.Fatalf("DecodeDocuments: %v", err)
	}
	res, err := b.BuildDocuments(context.Background(), docs, t.TempDir())
	if err != nil {
		t.Fatalf("BuildDocuments: %v", err)
	}

	found := false
	for _, name := range res.EmptyTables {
		if name == "ghost" {
			found = true
		}
	}
	if !found {
		t.Fatalf("ghost should be listed empty: %#v", res.EmptyTables)
	}
	if _, ok := res.Tables["ghost"]; ok {
		t.Fatalf("ghost should not have been staged: %#v", res.Tables)
	}
}

func TestBuild_StagedTablesMatchDeclaredSchema(t *testing.T) {
	t.Parallel()

	inputDir := t.TempDir()
	batchDir := t.TempDir()
	writeInput(t, inputDir, "bundle.json", bundleJSON)

	if _, err := newTestBuilder(t).Build(context.Background(), inputDir, batchDir); err != nil {
		t.Fatalf("Build: %v", err)
	}

	biol, err := table.ReadFile(batchDir, "biol")
	if err != nil || biol == nil {
		t.Fatalf("read staged biol: %v", err)
	}
	// The staged file carries exactly the mapped columns, in rule order.
	want := []string{"EVTID", "PNAME", "RESULT", "PRLVTDATE"}
	if len(biol.Columns) != len(want) {
		t.Fatalf("staged biol columns: %v", biol.Columns)
	}
	for i := range want {
		if biol.Columns[i] != want[i] {
			t.Fatalf("staged biol column %d = %q, want %q", i, biol.Columns[i], want[i])
		}
	}
}

func TestBuild_BadDocumentIsWarningNotFailure(t *testing.T) {
	t.Parallel()

	inputDir := t.TempDir()
	writeInput(t, inputDir, "bad.json", "{ definitely broken")
	writeInput(t, inputDir, "good.json", bundleJSON)

	res, err := newTestBuilder(t).Build(context.Background(), inputDir, t.TempDir())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.FilesProcessed != 1 {
		t.Fatalf("expected only the good file processed, got %d", res.FilesProcessed)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one warning, got %#v", res.Warnings)
	}
}

func TestBuild_MissingInputDirFails(t *testing.T) {
	t.Parallel()

	_, err := newTestBuilder(t).Build(context.Background(), filepath.Join(t.TempDir(), "nope"), "")
	if err == nil {
		t.Fatalf("expected error for missing input directory")
	}
}

func TestBuildDocuments_InMemoryBundle(t *testing.T) {
	t.Parallel()

	docs, err := DecodeDocuments([]byte(bundleJSON))
	if err != nil {
		t.Fatalf("DecodeDocuments: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 resources, got %d", len(docs))
	}

	batchDir := t.TempDir()
	res, err := newTestBuilder(t).BuildDocuments(context.Background(), docs, batchDir)
	if err != nil {
		t.Fatalf("BuildDocuments: %v", err)
	}
	if res.Tables["patient"].Rows != 1 {
		t.Fatalf("patient rows = %d", res.Tables["patient"].Rows)
	}
}

func TestDecodeDocuments_NoiseAndConcatenation(t *testing.T) {
	t.Parallel()

	noisy := "\uFEFFresponse follows\n```json\n" +
		`{"resourceType": "Patient", "id": "p9"}` + "\n" +
		`{"birthDate": "2001-02-03"}` + "\n```"

	docs, err := DecodeDocuments([]byte(noisy))
	if err != nil {
		t.Fatalf("DecodeDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("concatenated objects should merge into one document, got %d", len(docs))
	}
	if docs[0]["id"] != "p9" || docs[0]["birthDate"] != "2001-02-03" {
		t.Fatalf("merged document wrong: %#v", docs[0])
	}
}

func TestScanInputDir_SortedJSONOnly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeInput(t, dir, "b.json", "{}")
	writeInput(t, dir, "a.json", "{}")
	writeInput(t, dir, "notes.txt", "x")
	if err := os.Mkdir(filepath.Join(dir, "sub.json"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	files, err := ScanInputDir(dir)
	if err != nil {
		t.Fatalf("ScanInputDir: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.json" || filepath.Base(files[1]) != "b.json" {
		t.Fatalf("unexpected files: %v", files)
	}
}
