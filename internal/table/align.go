package table

// Align reshapes base and incoming onto the union of their columns so they
// can be concatenated or joined safely.
//
// Column order is base's order followed by incoming-only columns in their own
// order; keeping the store side first preserves schema stability across runs.
// The side missing a column gets it null-filled.
//
// When the same column holds different non-null kinds on the two sides, both
// sides are cast to text for that column. This is the conservative,
// information-preserving fallback: a type clash must never drop data.
func Align(base, incoming *Table) (*Table, *Table) {
	union := append([]string(nil), base.Columns...)
	for _, c := range incoming.Columns {
		if base.ColumnIndex(c) < 0 {
			union = append(union, c)
		}
	}

	a := Enforce(base, union)
	b := Enforce(incoming, union)

	for i := range union {
		ka, okA := a.ColumnKind(i)
		kb, okB := b.ColumnKind(i)
		clash := !okA || !okB ||
			(ka != KindNull && kb != KindNull && ka != kb)
		if clash {
			a.CastColumnText(i)
			b.CastColumnText(i)
		}
	}
	return a, b
}

// Concat appends src's rows to dst. Both tables must share the same column
// list (use Align first); rows are copied, not aliased.
func Concat(dst, src *Table) {
	for _, row := range src.Rows {
		dst.AppendRow(append([]Value(nil), row...))
	}
}
