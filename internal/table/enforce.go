package table

// Enforce reshapes t to exactly the expected column list: missing columns are
// added null-filled, extra columns are dropped, and the result's column order
// matches expected. A nil input is treated as an empty table, so a declared
// table nothing contributed to still enforces cleanly. An empty expected list
// returns t unchanged.
//
// Enforce is idempotent: Enforce(Enforce(t, s), s) == Enforce(t, s).
func Enforce(t *Table, expected []string) *Table {
	if t == nil {
		t = New()
	}
	if len(expected) == 0 {
		return t
	}

	src := make([]int, len(expected))
	for i, col := range expected {
		src[i] = t.ColumnIndex(col)
	}

	out := New(expected...)
	out.Rows = make([][]Value, len(t.Rows))
	for r := range t.Rows {
		row := make([]Value, len(expected))
		for i, from := range src {
			if from < 0 {
				row[i] = Null()
				continue
			}
			row[i] = t.Cell(r, from)
		}
		out.Rows[r] = row
	}
	return out
}
