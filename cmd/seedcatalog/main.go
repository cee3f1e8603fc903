package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"contentgen/internal/adapter/repo"
	"contentgen/internal/catalog"
	"contentgen/internal/infra"
)

func main() {
	_ = godotenv.Load()

	var (
		fileFlag   string
		dryRunFlag bool
	)
	flag.StringVar(&fileFlag, "file", "", "YAML seed file with assets, scenarios and rules")
	flag.BoolVar(&dryRunFlag, "dry-run", false, "validate the seed file without writing it")
	flag.Parse()

	if strings.TrimSpace(fileFlag) == "" {
		exitWithError(fmt.Errorf("-file is required"))
	}
	seed, err := catalog.LoadSeedFile(fileFlag)
	if err != nil {
		exitWithError(err)
	}
	if dryRunFlag {
		fmt.Printf("seed ok: %d assets, %d scenarios, %d rules\n", len(seed.Assets), len(seed.Scenarios), len(seed.Rules))
		return
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(fmt.Errorf("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to create pool: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger(os.Getenv("APP_ENV"), "seedcatalog").With().Str("file", fileFlag).Logger()
	runner := infra.NewSQLRunner(pool, logger)
	counts, err := seed.Apply(ctx, catalog.SeedTargets{
		Assets:    repo.NewAssetRepository(runner),
		Scenarios: repo.NewScenarioRepository(runner),
		Rules:     repo.NewRuleRepository(runner),
	})
	if err != nil {
		exitWithError(err)
	}
	logger.Info().Int("assets", counts.Assets).Int("scenarios", counts.Scenarios).Int("rules", counts.Rules).Msg("seed applied")
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "seedcatalog: %v\n", err)
	os.Exit(1)
}
