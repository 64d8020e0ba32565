// Package mapping loads and models the declarative extraction configuration:
// which source kinds produce which tables, which column comes from which path
// expression, the per-table expected schemas, and the per-table unique keys
// used by the merge engine.
//
// Column order matters everywhere downstream (schema stability), so objects
// are decoded at token level rather than into Go maps.
package mapping

import (
	"eds/internal/fhirpath"
)

// ColumnRule binds one output column to a parsed path expression.
type ColumnRule struct {
	Name string
	Expr fhirpath.Expr
}

// Rule is the extraction rule for one source kind.
type Rule struct {
	SourceKind string
	TableName  string
	Columns    []ColumnRule
}

// TableSchema is an explicit schema override from the "_schemas" section:
// an ordered column list, optionally with declared column types.
type TableSchema struct {
	Table   string
	Columns []string
	Types   map[string]string
}

// Config is the decoded mapping configuration.
type Config struct {
	// Rules in file order, one per source kind. A kind seen again in a later
	// concatenated object replaces the earlier rule.
	Rules []Rule

	// Schemas holds the optional explicit "_schemas" overrides, in file order.
	Schemas []TableSchema
}

// Rule returns the rule for a source kind, or nil.
func (c *Config) Rule(kind string) *Rule {
	for i := range c.Rules {
		if c.Rules[i].SourceKind == kind {
			return &c.Rules[i]
		}
	}
	return nil
}

// TableNames returns the distinct target tables in first-seen order.
func (c *Config) TableNames() []string {
	var out []string
	seen := map[string]bool{}
	for _, r := range c.Rules {
		if !seen[r.TableName] {
			seen[r.TableName] = true
			out = append(out, r.TableName)
		}
	}
	return out
}

func (c *Config) replaceRule(r Rule) {
	for i := range c.Rules {
		if c.Rules[i].SourceKind == r.SourceKind {
			c.Rules[i] = r
			return
		}
	}
	c.Rules = append(c.Rules, r)
}

func (c *Config) replaceSchema(s TableSchema) {
	for i := range c.Schemas {
		if c.Schemas[i].Table == s.Table {
			c.Schemas[i] = s
			return
		}
	}
	c.Schemas = append(c.Schemas, s)
}
