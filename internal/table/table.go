package table

// Table is an ordered sequence of rows sharing one column list. Rows are
// positional: row[i] belongs to Columns[i]. A cell may be missing only when a
// row was appended before a column was added; readers must treat a short row
// as null-padded.
type Table struct {
	Columns []string
	Rows    [][]Value
}

// New returns an empty table with the given column order.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// NumRows reports the row count.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether name is a column of t.
func (t *Table) HasColumn(name string) bool { return t.ColumnIndex(name) >= 0 }

// AppendRow appends a row, padding or truncating it to the column count.
func (t *Table) AppendRow(row []Value) {
	t.Rows = append(t.Rows, t.fit(row))
}

func (t *Table) fit(row []Value) []Value {
	if len(row) == len(t.Columns) {
		return row
	}
	out := make([]Value, len(t.Columns))
	copy(out, row)
	return out
}

// Cell returns the value at row r, column idx, null-padding short rows.
func (t *Table) Cell(r, idx int) Value {
	row := t.Rows[r]
	if idx < 0 || idx >= len(row) {
		return Null()
	}
	return row[idx]
}

// SetCell writes the value at row r, column idx, growing short rows.
func (t *Table) SetCell(r, idx int, v Value) {
	if idx >= len(t.Rows[r]) {
		grown := make([]Value, len(t.Columns))
		copy(grown, t.Rows[r])
		t.Rows[r] = grown
	}
	t.Rows[r][idx] = v
}

// AddColumn appends a column (if absent) and null-pads existing rows.
// It returns the column's index.
func (t *Table) AddColumn(name string) int {
	if i := t.ColumnIndex(name); i >= 0 {
		return i
	}
	t.Columns = append(t.Columns, name)
	for r := range t.Rows {
		grown := make([]Value, len(t.Columns))
		copy(grown, t.Rows[r])
		t.Rows[r] = grown
	}
	return len(t.Columns) - 1
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := New(t.Columns...)
	out.Rows = make([][]Value, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = append([]Value(nil), row...)
	}
	return out
}

// ColumnKind scans a column and returns the kind of its non-null cells, or
// KindNull when the column is entirely null. Mixed kinds report ok=false.
func (t *Table) ColumnKind(idx int) (Kind, bool) {
	kind := KindNull
	for r := range t.Rows {
		v := t.Cell(r, idx)
		if v.IsNull() {
			continue
		}
		if kind == KindNull {
			kind = v.Kind()
			continue
		}
		if v.Kind() != kind {
			return kind, false
		}
	}
	return kind, true
}

// CastColumnText rewrites every non-null cell of the column as text.
func (t *Table) CastColumnText(idx int) {
	for r := range t.Rows {
		v := t.Cell(r, idx)
		if v.IsNull() || v.Kind() == KindText {
			continue
		}
		t.SetCell(r, idx, v.AsText())
	}
}
