// Command customer-ingest bulk-loads customers from gzip-compressed CSV
// files with rows of id,tier,registered_on.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/repository"
)

type config struct {
	DatabaseURL string  `usage:"PostgreSQL connection URL (or DATABASE_URL env)" flag:"database-url"`
	DataDir     string  `default:"data" usage:"Directory containing the CSV files" flag:"data-dir"`
	Pattern     string  `default:"customers*.csv.gz" usage:"Glob matched inside the data directory"`
	Expected    uint    `default:"10000000" usage:"Expected number of distinct customers, sizes the bloom filter"`
	FPRate      float64 `default:"0.001" usage:"Bloom filter false positive rate" flag:"fp-rate"`
}

func main() {
	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	var cfg config
	if err := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "RDS",
		SkipFiles: true,
	}).Load(); err != nil {
		lg.Fatal("Load config", zap.Error(err))
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		lg.Fatal("Database URL is required: set RDS_DATABASE_URL or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, cfg); err != nil {
		lg.Fatal("Customer ingest failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, cfg config) error {
	files, err := filepath.Glob(filepath.Join(cfg.DataDir, cfg.Pattern))
	if err != nil {
		return errors.Wrap(err, "match input files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s in %s", cfg.Pattern, cfg.DataDir)
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	in := newIngester(repository.NewCustomerRepository(pool), lg, cfg.Expected, cfg.FPRate)
	stats, err := in.Run(ctx, files)
	if err != nil {
		return err
	}
	lg.Info("Customer ingest completed",
		zap.Int("files", len(files)),
		zap.Int64("rows", stats.Rows),
		zap.Int64("invalid", stats.Invalid),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("saved", stats.Saved),
	)
	return nil
}
