package mapping

import (
	"encoding/json"
	"fmt"
	"os"
)

// UniqueKeys maps a table name to the ordered column set defining row
// identity inside that table. Tables without an entry merge as pure append.
type UniqueKeys map[string][]string

// DefaultKeys is the production key set for the standard warehouse tables.
//
// biol identity includes the sample date because one episode routinely holds
// many measurements of the same analyte; doceds includes the document body so
// two same-day documents of the same type do not collapse.
func DefaultKeys() UniqueKeys {
	return UniqueKeys{
		"mvt":    {"EVTID"},
		"biol":   {"EVTID", "PNAME", "PRLVTDATE"},
		"pharma": {"EVTID", "ELTID"},
		"doceds": {"EVTID", "RECTYPE", "RECDATE", "RECTXT"},
		"pmsi":   {"EVTID", "ELTID"},
	}
}

// LoadKeysFile reads a `{table: [key columns]}` JSON file.
func LoadKeysFile(path string) (UniqueKeys, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keys: read %s: %w", path, err)
	}
	var keys UniqueKeys
	if err := json.Unmarshal(b, &keys); err != nil {
		return nil, fmt.Errorf("keys: parse %s: %w", path, err)
	}
	return keys, nil
}
