package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"stage-inventory-api/internal/app"
	"stage-inventory-api/internal/config"
	"stage-inventory-api/internal/logger"
	"stage-inventory-api/pkg/importer"
)

func main() {
	var (
		filePath    = flag.String("file", "", "Path to the .xlsx workbook")
		mappingPath = flag.String("mapping", "", "Mapping YAML (default: built-in mapping)")
		actorID     = flag.String("actor", "import-cli", "Actor recorded in equipment history")
		dryRun      = flag.Bool("dry-run", false, "Validate and count without writing")
		maxErrors   = flag.Int("max-errors", 50, "Abort after this many row errors")
	)
	flag.Parse()

	if *filePath == "" {
		fmt.Println("Error: -file is required")
		fmt.Println("Usage: import_excel -file=path.xlsx [-mapping=configs/mapping.yaml] [-dry-run] [-actor=...]")
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if *mappingPath != "" {
		cfg.IntakeMapping = *mappingPath
	}

	zl, err := logger.New(cfg.LogLevel, "console")
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			log.Printf("Close: %v", err)
		}
	}()

	file, err := os.Open(*filePath)
	if err != nil {
		log.Fatalf("Failed to open Excel file: %v", err)
	}
	defer file.Close()

	fmt.Printf("Importing from %s (store=%s, dry_run=%v)\n", *filePath, cfg.StoreDriver, *dryRun)
	fmt.Println("=" + strings.Repeat("=", 60))

	summary, err := importer.ImportExcel(ctx, a.Inventory, file, importer.ImportOptions{
		ActorID:   *actorID,
		Mapping:   a.Mapping,
		DryRun:    *dryRun,
		MaxErrors: *maxErrors,
	})
	printSummary(summary)
	if err != nil {
		fmt.Printf("\nImport failed: %v\n", err)
		os.Exit(1)
	}
}

func printSummary(summary importer.ImportSummary) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("IMPORT SUMMARY")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("Total inserted: %d\n", summary.Inserted)
	fmt.Printf("Total updated: %d\n", summary.Updated)
	fmt.Printf("Total skipped: %d\n", summary.Skipped)
	fmt.Printf("Total errors: %d\n", summary.Errors)
	fmt.Printf("Dry run: %v\n", summary.DryRun)

	if len(summary.Sheets) == 0 {
		return
	}
	fmt.Println("\nSheet Details:")
	for _, sheet := range summary.Sheets {
		fmt.Printf("  %s: inserted=%d, updated=%d, skipped=%d, errors=%d\n",
			sheet.Name, sheet.Inserted, sheet.Updated, sheet.Skipped, sheet.Errors)
		if len(sheet.Samples) > 0 {
			fmt.Printf("    Error samples:\n")
			for _, sample := range sheet.Samples {
				fmt.Printf("      Row %d: %s\n", sample.Row, sample.Message)
			}
		}
	}
}
