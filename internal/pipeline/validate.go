package pipeline

import (
	"fmt"
	"os"

	"eds/internal/mapping"
)

// Issue severities.
const (
	SeverityError = "error"
	SeverityWarn  = "warn"
)

// Issue is one validation finding.
type Issue struct {
	Severity string
	Field    string
	Message  string
}

// HasErrors reports whether any issue is fatal.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks a run configuration without touching the store, for use
// behind a -validate flag. It decodes the mapping and keys files so syntax
// problems surface before a scheduled run does.
func Validate(cfg Config) []Issue {
	var issues []Issue
	errf := func(field, format string, a ...any) {
		issues = append(issues, Issue{SeverityError, field, fmt.Sprintf(format, a...)})
	}
	warnf := func(field, format string, a ...any) {
		issues = append(issues, Issue{SeverityWarn, field, fmt.Sprintf(format, a...)})
	}

	if cfg.MappingPath == "" {
		errf("mapping", "mapping path is required")
	} else if mcfg, err := mapping.LoadFile(cfg.MappingPath); err != nil {
		errf("mapping", "%v", err)
	} else if len(mapping.NewRegistry(mcfg).Tables()) == 0 {
		errf("mapping", "no target tables declared")
	}

	if cfg.KeysPath != "" {
		if _, err := mapping.LoadKeysFile(cfg.KeysPath); err != nil {
			errf("keys", "%v", err)
		}
	}

	if cfg.InputDir == "" {
		errf("input", "input directory is required")
	} else if st, err := os.Stat(cfg.InputDir); err != nil || !st.IsDir() {
		errf("input", "not a directory: %s", cfg.InputDir)
	}

	if cfg.StoreDir == "" {
		errf("store", "store directory is required")
	}
	if cfg.ReportsDir == "" {
		warnf("reports", "reports directory not set; run reports will not be written")
	}

	if cfg.Mirror.Kind != "" && cfg.Mirror.DSN == "" {
		errf("mirror", "mirror kind %q set without a DSN", cfg.Mirror.Kind)
	}
	if cfg.Mirror.Kind == "" && cfg.Mirror.DSN != "" {
		warnf("mirror", "mirror DSN set without a kind; mirroring disabled")
	}

	return issues
}
