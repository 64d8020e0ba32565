// Package extract turns nested interchange documents into flat per-table row
// buffers by applying the declarative mapping configuration.
package extract

import (
	"strings"

	"eds/internal/fhirpath"
	"eds/internal/mapping"
	"eds/internal/normalize"
	"eds/internal/table"
)

// Stats accumulates non-fatal counters across one extraction run.
type Stats struct {
	ResourcesSeen    int
	ResourcesSkipped int
	RowsByTable      map[string]int
	CoercionWarnings int
}

// Extractor applies mapping rules to documents, accumulating rows into
// per-table buffers. It never writes to disk.
type Extractor struct {
	cfg     *mapping.Config
	reg     *mapping.Registry
	buffers map[string]*table.Table
	stats   Stats
}

// New builds an extractor with one empty buffer per mapped table, columns
// pre-set to the registry's expected order so every rule for a table fills
// the same row shape.
func New(cfg *mapping.Config, reg *mapping.Registry) *Extractor {
	e := &Extractor{
		cfg:     cfg,
		reg:     reg,
		buffers: map[string]*table.Table{},
		stats:   Stats{RowsByTable: map[string]int{}},
	}
	for _, name := range cfg.TableNames() {
		e.buffers[name] = table.New(reg.Expected(name)...)
	}
	return e
}

// Resource extracts one document into the buffers. A document whose kind has
// no mapping rule is skipped silently (counted, never an error).
func (e *Extractor) Resource(doc map[string]any) {
	e.stats.ResourcesSeen++

	kind, _ := doc["resourceType"].(string)
	rule := e.cfg.Rule(kind)
	if rule == nil {
		e.stats.ResourcesSkipped++
		return
	}

	buf := e.buffers[rule.TableName]

	// Multi-component resources fan out to one row per sub-measurement.
	if comp, ok := componentRules[kind]; ok {
		if components := comp.components(doc); len(components) > 0 {
			for _, c := range components {
				e.appendRow(buf, rule, doc, c, comp.columns)
			}
			return
		}
	}

	e.appendRow(buf, rule, doc, nil, nil)
}

// appendRow resolves every declared column and appends one complete row.
// When a component is present, columns with a component override resolve
// against the component; all others resolve against the document.
func (e *Extractor) appendRow(
	buf *table.Table,
	rule *mapping.Rule,
	doc map[string]any,
	component map[string]any,
	overrides map[string]fhirpath.Expr,
) {
	row := make([]table.Value, len(buf.Columns))

	for _, col := range rule.Columns {
		idx := buf.ColumnIndex(col.Name)
		if idx < 0 {
			continue
		}

		var raw any
		if expr, ok := overrides[col.Name]; ok && component != nil {
			raw = expr.Resolve(component)
		} else {
			raw = col.Expr.Resolve(doc)
		}

		v, warned := normalize.Value(raw, e.reg.DeclaredType(rule.TableName, col.Name))
		if warned {
			e.stats.CoercionWarnings++
		}
		if isIdentifierColumn(col.Name) && v.Kind() == table.KindText {
			if cleaned := normalize.Identifier(v.String()); cleaned == "" {
				v = table.Null()
			} else {
				v = table.Text(cleaned)
			}
		}
		row[idx] = v
	}

	buf.AppendRow(row)
	e.stats.RowsByTable[rule.TableName]++
}

// Tables hands the buffers to the next stage. Buffers stay owned by the
// extractor; callers transform them in place.
func (e *Extractor) Tables() map[string]*table.Table { return e.buffers }

// Stats returns the accumulated counters.
func (e *Extractor) Stats() Stats { return e.stats }

// isIdentifierColumn flags foreign-key-like columns for identifier cleaning.
func isIdentifierColumn(name string) bool { return strings.HasSuffix(name, "ID") }

// componentRule describes the one-to-many fan-out for resource kinds that
// carry an internal list of sub-measurements (multi-component lab panels).
// Shared top-level columns are copied into every row; the listed columns are
// drawn from the sub-measurement instead.
type componentRule struct {
	list    fhirpath.Expr
	columns map[string]fhirpath.Expr
}

func (c componentRule) components(doc map[string]any) []map[string]any {
	raw := c.list.Resolve(doc)
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, el := range list {
		if m, ok := el.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

var componentRules = map[string]componentRule{
	"Observation": {
		list: fhirpath.MustParse("component"),
		columns: map[string]fhirpath.Expr{
			"PNAME":  fhirpath.MustParse("code.text||code.coding[0].display"),
			"LOINC":  fhirpath.MustParse("code.coding[0].code"),
			"RESULT": fhirpath.MustParse("valueQuantity.value"),
			"UNIT":   fhirpath.MustParse("valueQuantity.unit"),
		},
	},
}
