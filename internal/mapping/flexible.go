package mapping

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"eds/internal/fhirpath"
)

// LoadFile reads and decodes a mapping configuration file.
//
// Mapping files travel through copy-paste and LLM tooling, so the loader is
// deliberately forgiving about surrounding noise: UTF-8/UTF-16 BOMs, markdown
// fences, prose before the first structural delimiter, and several
// concatenated top-level objects (merged, later keys winning). Anything that
// still fails to decode is a fatal configuration error.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mapping: read %s: %w", path, err)
	}
	cfg, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("mapping: %s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses mapping configuration from raw bytes. See LoadFile.
func Decode(raw []byte) (*Config, error) {
	text, err := CleanText(raw)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	cfg := &Config{}
	objects := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode object %d: %w", objects+1, err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			return nil, fmt.Errorf("decode object %d: root must be an object, got %v", objects+1, tok)
		}
		if err := decodeRootObject(dec, cfg); err != nil {
			return nil, fmt.Errorf("decode object %d: %w", objects+1, err)
		}
		objects++
	}

	if objects == 0 {
		return nil, fmt.Errorf("no JSON object found")
	}
	if len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("configuration declares no mapping rules")
	}
	return cfg, nil
}

// CleanText strips BOMs, markdown fence lines and leading prose, and returns
// the text starting at the first '{' or '['. Input documents travel through
// the same copy-paste channels as mapping files, so the batch reader shares
// this cleanup.
func CleanText(raw []byte) (string, error) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return "", fmt.Errorf("decode bytes: %w", err)
	}

	text := strings.ReplaceAll(string(decoded), "\r\n", "\n")

	lines := strings.Split(text, "\n")
	start, end := 0, len(lines)
	for start < end && (strings.TrimSpace(lines[start]) == "" || strings.HasPrefix(strings.TrimSpace(lines[start]), "```")) {
		start++
	}
	for end > start && strings.HasPrefix(strings.TrimSpace(lines[end-1]), "```") {
		end--
	}
	text = strings.Join(lines[start:end], "\n")

	if i := strings.IndexAny(text, "{["); i >= 0 {
		return strings.TrimSpace(text[i:]), nil
	}
	return "", fmt.Errorf("no '{' or '[' found")
}

// decodeRootObject walks one top-level object. Keys starting with '_' are
// configuration sections ("_schemas") or ignorable annotations; every other
// key is a source kind with a rule object.
func decodeRootObject(dec *json.Decoder, cfg *Config) error {
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("object key not a string: %v", keyTok)
		}

		switch {
		case key == "_schemas":
			if err := decodeSchemas(dec, cfg); err != nil {
				return fmt.Errorf("_schemas: %w", err)
			}
		case strings.HasPrefix(key, "_"):
			if err := skipValue(dec); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		default:
			rule, err := decodeRule(dec, key)
			if err != nil {
				return fmt.Errorf("rule %s: %w", key, err)
			}
			cfg.replaceRule(rule)
		}
	}

	end, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read object end: %w", err)
	}
	if end != json.Delim('}') {
		return fmt.Errorf("expected '}', got %v", end)
	}
	return nil
}

func decodeRule(dec *json.Decoder, kind string) (Rule, error) {
	rule := Rule{SourceKind: kind}

	if err := expectDelim(dec, '{'); err != nil {
		return rule, err
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return rule, err
		}
		key, _ := keyTok.(string)

		switch key {
		case "table_name":
			tok, err := dec.Token()
			if err != nil {
				return rule, err
			}
			name, ok := tok.(string)
			if !ok {
				return rule, fmt.Errorf("table_name must be a string, got %v", tok)
			}
			rule.TableName = name

		case "columns":
			cols, err := decodeColumns(dec)
			if err != nil {
				return rule, err
			}
			rule.Columns = cols

		default:
			if err := skipValue(dec); err != nil {
				return rule, err
			}
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return rule, err
	}

	if rule.TableName == "" {
		return rule, fmt.Errorf("missing table_name")
	}
	return rule, nil
}

func decodeColumns(dec *json.Decoder) ([]ColumnRule, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var cols []ColumnRule
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := keyTok.(string)

		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		pathExpr, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("column %s: path must be a string, got %v", name, tok)
		}

		expr, err := fhirpath.Parse(pathExpr)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		cols = append(cols, ColumnRule{Name: name, Expr: expr})
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return cols, nil
}

// decodeSchemas parses the "_schemas" section: table -> ordered column list,
// or table -> { column: declared type } object.
func decodeSchemas(dec *json.Decoder, cfg *Config) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		tableName, _ := keyTok.(string)

		tok, err := dec.Token()
		if err != nil {
			return err
		}
		d, ok := tok.(json.Delim)
		if !ok {
			return fmt.Errorf("table %s: schema must be an array or object", tableName)
		}

		schema := TableSchema{Table: tableName}
		switch d {
		case '[':
			for dec.More() {
				ct, err := dec.Token()
				if err != nil {
					return err
				}
				col, ok := ct.(string)
				if !ok {
					return fmt.Errorf("table %s: column names must be strings", tableName)
				}
				schema.Columns = append(schema.Columns, col)
			}
			if err := expectDelim(dec, ']'); err != nil {
				return err
			}

		case '{':
			schema.Types = map[string]string{}
			for dec.More() {
				ct, err := dec.Token()
				if err != nil {
					return err
				}
				col, _ := ct.(string)
				vt, err := dec.Token()
				if err != nil {
					return err
				}
				typ, ok := vt.(string)
				if !ok {
					return fmt.Errorf("table %s column %s: declared type must be a string", tableName, col)
				}
				schema.Columns = append(schema.Columns, col)
				schema.Types[col] = typ
			}
			if err := expectDelim(dec, '}'); err != nil {
				return err
			}

		default:
			return fmt.Errorf("table %s: unexpected delimiter %v", tableName, d)
		}

		cfg.replaceSchema(schema)
	}
	return expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// skipValue consumes the next JSON value without materializing it.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return nil
	}

	switch d {
	case '{':
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return err
			}
			if err := skipValue(dec); err != nil {
				return err
			}
		}
		return expectDelim(dec, '}')
	case '[':
		for dec.More() {
			if err := skipValue(dec); err != nil {
				return err
			}
		}
		return expectDelim(dec, ']')
	default:
		return fmt.Errorf("unexpected delimiter %q", d)
	}
}
