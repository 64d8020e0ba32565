// Package rebuild aggregates canonical tables: tables assembled from several
// raw per-resource extracts that share an episode key are reduced to one row
// per key, with deterministic handling of multi-valued columns and a derived
// stay duration.
package rebuild

import (
	"sort"
	"strings"
	"time"

	"eds/internal/table"
)

// Spec declares how one canonical table is rebuilt.
//
// The contributing extracts all land in the same target table (several
// mapping rules share one table_name), so rebuilding means grouping that
// union by the key column and reducing each group to a single row:
// first-non-null for scalar columns, sorted/de-duplicated/delimiter-joined
// text for the multi-valued columns. Episode-level fields were already
// coalesced in by the enrichment pass, so the reduced row keeps them.
type Spec struct {
	Table       string
	Key         string
	MultiValued []string
	Delimiter   string

	// Duration, when set, adds a derived whole-day stay length column.
	Duration *DurationSpec
}

// DurationSpec computes Target = whole days between the Start and End
// timestamp columns. An unparseable endpoint yields zero, by design.
type DurationSpec struct {
	Target string
	Start  string
	End    string
}

// DefaultSpecs covers the standard warehouse: administrative coding (union
// of procedure and diagnosis extracts) and the free-text document table
// (union of the document-like extracts).
func DefaultSpecs() []Spec {
	return []Spec{
		{
			Table:       "pmsi",
			Key:         "EVTID",
			MultiValued: []string{"CODEACTES", "DALL"},
			Delimiter:   ";",
			Duration:    &DurationSpec{Target: "SEJDUR", Start: "DATENT", End: "DATSORT"},
		},
		{
			Table:       "doceds",
			Key:         "EVTID",
			MultiValued: []string{"RECTYPE", "RECFAMTXT", "RECTXT"},
			Delimiter:   ";",
		},
	}
}

// Rebuilder applies canonical specs to an in-memory batch.
type Rebuilder struct {
	specs []Spec
}

// New returns a Rebuilder for the given specs.
func New(specs []Spec) *Rebuilder { return &Rebuilder{specs: specs} }

// Rebuild replaces each canonical table in the batch with its reduced form.
// Tables absent from the batch (or empty) are left alone.
func (rb *Rebuilder) Rebuild(tables map[string]*table.Table) {
	for _, spec := range rb.specs {
		t := tables[spec.Table]
		if t.NumRows() == 0 {
			continue
		}
		reduced := reduce(t, spec)
		if spec.Duration != nil {
			addDuration(reduced, *spec.Duration)
		}
		tables[spec.Table] = reduced
	}
}

// reduce groups rows by the key column (first-seen order) and collapses each
// group to one row. Rows with a blank key stay as their own group.
func reduce(t *table.Table, spec Spec) *table.Table {
	keyIdx := t.ColumnIndex(spec.Key)
	if keyIdx < 0 {
		return t
	}

	multi := map[int]bool{}
	for _, c := range spec.MultiValued {
		if i := t.ColumnIndex(c); i >= 0 {
			multi[i] = true
		}
	}

	delim := spec.Delimiter
	if delim == "" {
		delim = ";"
	}

	type group struct {
		first []table.Value           // first-non-null scalars, positional
		sets  map[int]map[string]bool // multi-valued collection per column
	}

	var order []table.Value
	groups := map[table.Value]*group{}
	blankSeq := 0

	for r := range t.Rows {
		k := t.Cell(r, keyIdx)
		if k.IsNull() || strings.TrimSpace(k.String()) == "" {
			// Synthesize a distinct key so blank-key rows never merge.
			blankSeq++
			k = table.Text("\x00blank\x00" + table.Number(float64(blankSeq)).String())
		}

		g, ok := groups[k]
		if !ok {
			g = &group{first: make([]table.Value, len(t.Columns)), sets: map[int]map[string]bool{}}
			groups[k] = g
			order = append(order, k)
		}

		for i := range t.Columns {
			v := t.Cell(r, i)
			if v.IsNull() {
				continue
			}
			if multi[i] {
				set := g.sets[i]
				if set == nil {
					set = map[string]bool{}
					g.sets[i] = set
				}
				if s := strings.TrimSpace(v.String()); s != "" {
					set[s] = true
				}
				continue
			}
			if g.first[i].IsNull() {
				g.first[i] = v
			}
		}
	}

	out := table.New(t.Columns...)
	for _, k := range order {
		g := groups[k]
		row := append([]table.Value(nil), g.first...)
		for i := range t.Columns {
			if !multi[i] {
				continue
			}
			if joined := joinSorted(g.sets[i], delim); joined != "" {
				row[i] = table.Text(joined)
			}
		}
		out.AppendRow(row)
	}
	return out
}

func joinSorted(set map[string]bool, delim string) string {
	if len(set) == 0 {
		return ""
	}
	vals := make([]string, 0, len(set))
	for v := range set {
		vals = append(vals, v)
	}
	sort.Strings(vals)
	return strings.Join(vals, delim)
}

// addDuration fills the target column with the whole-day span between the
// start and end columns. The column is added if missing; existing non-null
// values are preserved.
func addDuration(t *table.Table, d DurationSpec) {
	startIdx := t.ColumnIndex(d.Start)
	endIdx := t.ColumnIndex(d.End)
	if startIdx < 0 || endIdx < 0 {
		return
	}
	target := t.AddColumn(d.Target)

	for r := range t.Rows {
		if !t.Cell(r, target).IsNull() {
			continue
		}
		days := daysBetween(t.Cell(r, startIdx).String(), t.Cell(r, endIdx).String())
		t.SetCell(r, target, table.Number(float64(days)))
	}
}

// stayLayouts tolerates the offset spellings seen in the wild: RFC3339,
// offsets without the colon, zone-less timestamps, and bare dates.
var stayLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// daysBetween returns the whole-day span between two timestamps, zero when
// either endpoint is unparseable or the span is negative.
func daysBetween(start, end string) int {
	st, ok := parseStay(start)
	if !ok {
		return 0
	}
	en, ok := parseStay(end)
	if !ok {
		return 0
	}
	days := int(en.Sub(st).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func parseStay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range stayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
