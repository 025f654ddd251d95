package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/repository"
)

type config struct {
	DatabaseURL     string `usage:"PostgreSQL connection URL (or DATABASE_URL env)" flag:"database-url"`
	APIKeyPepper    string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	SeedAPIKey      string `usage:"Raw API key to seed" flag:"seed-api-key"`
	SeedKeyCustomer string `default:"EMP001" usage:"Customer bound to the seeded API key" flag:"seed-key-customer"`
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
	if cfg.SeedAPIKey == "" {
		lg.Fatal("API key is required: set RDS_SEED_API_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, cfg); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, cfg config) error {
	lg.Info("Running migrations")
	if err := repository.RunMigrations(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	s := seeder{
		customers: repository.NewCustomerRepository(pool),
		keys:      repository.NewAPIKeyRepository(pool),
		lg:        lg,
	}
	if err := s.seedCustomers(ctx); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if err := s.seedAPIKey(ctx, cfg.SeedAPIKey, []byte(cfg.APIKeyPepper), cfg.SeedKeyCustomer); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}
