package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"eds/internal/mapping"
)

// ScanInputDir lists the .json documents directly under dir, sorted by name
// so a batch is deterministic regardless of directory iteration order.
func ScanInputDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("batch: scan %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ReadDocumentFile reads one input file and returns the resources it carries.
//
// A file may hold a single resource, a bundle with an entry array, a root
// array of resources, or several concatenated top-level objects (merged,
// later keys winning). The same noise tolerance as mapping files applies:
// BOMs, markdown fences, and leading prose are stripped before decoding.
func ReadDocumentFile(path string) ([]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("batch: read %s: %w", path, err)
	}
	docs, err := DecodeDocuments(raw)
	if err != nil {
		return nil, fmt.Errorf("batch: %s: %w", path, err)
	}
	return docs, nil
}

// DecodeDocuments parses raw document bytes. See ReadDocumentFile.
func DecodeDocuments(raw []byte) ([]map[string]any, error) {
	text, err := mapping.CleanText(raw)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	if strings.HasPrefix(text, "[") {
		var list []any
		if err := dec.Decode(&list); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		var docs []map[string]any
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				docs = append(docs, unpackResources(m)...)
			}
		}
		return docs, nil
	}

	merged := map[string]any{}
	objects := 0
	for {
		var obj map[string]any
		if err := dec.Decode(&obj); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decode object %d: %w", objects+1, err)
		}
		for k, v := range obj {
			merged[k] = v
		}
		objects++
	}
	if objects == 0 {
		return nil, fmt.Errorf("no JSON object found")
	}
	return unpackResources(merged), nil
}

// unpackResources flattens a bundle-style document into the resources under
// its entry array; anything else is a single resource.
func unpackResources(doc map[string]any) []map[string]any {
	entries, ok := doc["entry"].([]any)
	if !ok {
		return []map[string]any{doc}
	}
	var docs []map[string]any
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if res, ok := m["resource"].(map[string]any); ok {
			docs = append(docs, res)
		}
	}
	return docs
}

// ensureDir makes a batch staging directory, creating a temporary one when
// the caller did not name a location.
func ensureDir(dir string) (string, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "eds-batch-*")
		if err != nil {
			return "", fmt.Errorf("batch: create staging dir: %w", err)
		}
		return tmp, nil
	}
	if err := os.MkdirAll(dir, fs.FileMode(0o755)); err != nil {
		return "", fmt.Errorf("batch: create staging dir %s: %w", dir, err)
	}
	return dir, nil
}
