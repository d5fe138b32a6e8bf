// Command check-catalog loads every test in the catalog once and reports
// load failures and answer-key problems. It exits non-zero if any test fails
// to load.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-mocktest/internal/catalog"
	"github.com/stemsi/exstem-mocktest/internal/config"
	"github.com/stemsi/exstem-mocktest/internal/loader"
	"github.com/stemsi/exstem-mocktest/internal/logger"
	"github.com/stemsi/exstem-mocktest/internal/validator"
)

func main() {
	cfg := config.Load()

	var catalogPath, dataDir string
	flag.StringVar(&catalogPath, "catalog", cfg.CatalogPath, "Path to the catalog YAML")
	flag.StringVar(&dataDir, "data", cfg.DataDir, "Base directory for file sources")
	flag.Parse()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	validator.Setup()

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", catalogPath).Msg("Failed to load test catalog")
	}

	l := loader.New(dataDir, cfg.FetchTimeout, log)
	failed := 0
	for _, e := range cat.List() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout+time.Second)
		paper, err := l.Load(ctx, e.Source)
		cancel()

		if err != nil {
			failed++
			fmt.Printf("FAIL  %-24s %v\n", e.ID, err)
			var le *loader.LoadError
			if errors.As(err, &le) {
				for field, msg := range le.Fields {
					fmt.Printf("      %s: %s\n", field, msg)
				}
			}
			continue
		}

		fmt.Printf("OK    %-24s %d questions, %d min\n", e.ID, len(paper.Questions), paper.Config.DurationMinutes)
		for _, w := range paper.Warnings {
			fmt.Printf("WARN  %-24s %s\n", e.ID, w)
		}
	}

	fmt.Printf("\n%d tests, %d failed\n", len(cat.List()), failed)
	if failed > 0 {
		os.Exit(1)
	}
}
