package mapping

// Registry holds, per target table, the ordered expected column list and the
// optional declared column types. It is computed once per run from the
// mapping configuration.
//
// Invariant: every column any rule can produce for a table appears in that
// table's expected list, in stable first-seen order, unless an explicit
// "_schemas" override exists for the table, in which case the override is
// authoritative.
type Registry struct {
	tables   []string
	expected map[string][]string
	types    map[string]map[string]string
}

// NewRegistry derives the registry from a decoded configuration.
func NewRegistry(cfg *Config) *Registry {
	r := &Registry{
		expected: map[string][]string{},
		types:    map[string]map[string]string{},
	}

	addTable := func(name string) {
		if _, ok := r.expected[name]; !ok {
			r.tables = append(r.tables, name)
			r.expected[name] = nil
		}
	}

	for _, rule := range cfg.Rules {
		addTable(rule.TableName)
		cols := r.expected[rule.TableName]
		for _, c := range rule.Columns {
			if !containsString(cols, c.Name) {
				cols = append(cols, c.Name)
			}
		}
		r.expected[rule.TableName] = cols
	}

	// Explicit schemas replace the computed column order for their table.
	for _, s := range cfg.Schemas {
		addTable(s.Table)
		r.expected[s.Table] = append([]string(nil), s.Columns...)
		if len(s.Types) > 0 {
			types := make(map[string]string, len(s.Types))
			for col, typ := range s.Types {
				types[col] = typ
			}
			r.types[s.Table] = types
		}
	}

	return r
}

// Tables returns the known table names in stable order.
func (r *Registry) Tables() []string { return r.tables }

// Expected returns the ordered column list for a table (nil if unknown).
func (r *Registry) Expected(tableName string) []string { return r.expected[tableName] }

// DeclaredType returns the declared type for a column, or "" when the
// configuration leaves it untyped.
func (r *Registry) DeclaredType(tableName, column string) string {
	return r.types[tableName][column]
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
