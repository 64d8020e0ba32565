package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"eds/internal/metrics"
	"eds/internal/metrics/datadog"
	"eds/internal/pipeline"
	"eds/internal/storage"
	"eds/internal/table"

	// register all mirror backends with the storage factory.
	// flags specify which to use but we need to build in support for all of them.
	_ "eds/internal/storage/all"
)

// main is the entry point for the ingest binary. It parses the run
// configuration, optionally initializes a metrics backend, and executes one
// ingest run.
func main() {
	var (
		mappingPath       string
		inputDir          string
		storeDir          string
		reportsDir        string
		keysPath          string
		mirrorKind        string
		mirrorDSN         string
		metricsBackendFlg string
		validate          bool
		inspect           bool
	)

	flag.StringVar(&mappingPath, "mapping", "configs/mapping.json", "mapping configuration JSON path")
	flag.StringVar(&inputDir, "input", "", "directory of input documents (.json)")
	flag.StringVar(&storeDir, "store", "", "warehouse store directory")
	flag.StringVar(&reportsDir, "reports", "", "run report directory (empty disables reports)")
	flag.StringVar(&keysPath, "keys", "", "unique keys JSON path (empty uses built-in defaults)")
	flag.StringVar(&mirrorKind, "mirror-kind", "", "SQL mirror backend (postgres, sqlite, mssql; empty disables)")
	flag.StringVar(&mirrorDSN, "mirror-dsn", "", "SQL mirror DSN")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (datadog, none)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.BoolVar(&inspect, "inspect", false, "print store table summaries and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	cfg := pipeline.Config{
		MappingPath: mappingPath,
		InputDir:    inputDir,
		StoreDir:    storeDir,
		ReportsDir:  reportsDir,
		KeysPath:    keysPath,
		Mirror:      storage.Config{Kind: mirrorKind, DSN: os.ExpandEnv(mirrorDSN)},
	}

	if inspect {
		if err := inspectStore(storeDir); err != nil {
			fatalf("inspect: %v", err)
		}
		return
	}

	issues := pipeline.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Field, iss.Message)
	}
	if pipeline.HasErrors(issues) {
		log.Printf("configuration is invalid")
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid")
		os.Exit(0)
	}

	// Decide metrics backend: flag → env → default.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		// Buffers metrics and submits periodically, with one final submit at
		// shutdown (Close()).
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))

		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    "eds_ingest",
			Tags:       extraTags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=%v tags=%v", backendName, extraTags)
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		// metrics disabled; nop backend remains
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx := context.Background()
	start := time.Now()

	runner := pipeline.New(cfg, log.Default())
	rep, err := runner.Run(ctx)
	if rep != nil {
		for _, rec := range rep.Merge {
			log.Printf("run %s: %s before=%d incoming=%d added=%d after=%d",
				rep.RunID, rec.Table, rec.BeforeRows, rec.IncomingRows, rec.AddedRows, rec.AfterRows)
		}
	}
	if err != nil {
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// inspectStore prints one line per stored table.
func inspectStore(storeDir string) error {
	if storeDir == "" {
		return fmt.Errorf("-store is required")
	}
	names, err := table.ListTables(storeDir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("store is empty")
		return nil
	}
	for _, name := range names {
		t, err := table.ReadFile(storeDir, name)
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %8d rows  %3d columns\n", name, t.NumRows(), len(t.Columns))
	}
	return nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
