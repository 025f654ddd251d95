package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/customer"
)

const (
	dateLayout    = "2006-01-02"
	progressEvery = 1_000_000
)

// Stats summarises an ingest run.
type Stats struct {
	Rows       int64
	Invalid    int64
	Duplicates int64
	Saved      int64
}

// ingester streams files concurrently and stores each distinct customer
// once. The bloom filter is only touched by the single consumer goroutine.
type ingester struct {
	customers customer.Repository
	lg        *zap.Logger
	seen      *bloom.BloomFilter
}

func newIngester(customers customer.Repository, lg *zap.Logger, expected uint, fpRate float64) *ingester {
	return &ingester{
		customers: customers,
		lg:        lg,
		seen:      bloom.NewWithEstimates(expected, fpRate),
	}
}

// Run reads every file and upserts the customers found.
func (in *ingester) Run(ctx context.Context, files []string) (Stats, error) {
	var (
		stats   Stats
		rows    atomic.Int64
		invalid atomic.Int64
		wg      sync.WaitGroup
	)
	parsed := make(chan customer.Customer, 1024)

	g, ctx := errgroup.WithContext(ctx)
	for _, path := range files {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			return in.readFile(ctx, path, parsed, &rows, &invalid)
		})
	}
	g.Go(func() error {
		wg.Wait()
		close(parsed)
		return nil
	})
	g.Go(func() error {
		for c := range parsed {
			if err := in.store(ctx, c, &stats); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	stats.Rows = rows.Load()
	stats.Invalid = invalid.Load()
	return stats, err
}

// store upserts c unless it was already stored. A bloom hit is confirmed
// against the repository because the filter can report false positives.
func (in *ingester) store(ctx context.Context, c customer.Customer, stats *Stats) error {
	if in.seen.TestAndAddString(c.ID()) {
		_, err := in.customers.FindByID(ctx, c.ID())
		switch {
		case err == nil:
			stats.Duplicates++
			return nil
		case !errors.Is(err, customer.ErrNotFound):
			return errors.Wrapf(err, "confirm duplicate %s", c.ID())
		}
	}
	if err := in.customers.Save(ctx, c); err != nil {
		return errors.Wrapf(err, "upsert customer %s", c.ID())
	}
	stats.Saved++
	if stats.Saved%progressEvery == 0 {
		in.lg.Info("Ingest progress", zap.Int64("saved", stats.Saved))
	}
	return nil
}

func (in *ingester) readFile(ctx context.Context, path string, out chan<- customer.Customer, rows, invalid *atomic.Int64) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	lg := in.lg.With(zap.String("file", path))
	r := csv.NewReader(gz)
	r.FieldsPerRecord = 3
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return errors.Wrapf(err, "read %s", path)
			}
			invalid.Add(1)
			lg.Warn("Skipping malformed row", zap.Int("line", perr.Line), zap.Error(err))
			continue
		}
		line, _ := r.FieldPos(0)
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "id") {
			continue
		}

		rows.Add(1)
		c, err := parseRecord(rec)
		if err != nil {
			invalid.Add(1)
			lg.Warn("Skipping invalid customer", zap.Int("line", line), zap.Error(err))
			continue
		}

		select {
		case out <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	lg.Info("File complete")
	return nil
}

func parseRecord(rec []string) (customer.Customer, error) {
	tier, err := customer.ParseTier(rec[1])
	if err != nil {
		return customer.Customer{}, err
	}
	registeredOn, err := time.Parse(dateLayout, strings.TrimSpace(rec[2]))
	if err != nil {
		return customer.Customer{}, errors.Wrap(err, "parse registered_on")
	}
	return customer.New(strings.TrimSpace(rec[0]), tier, registeredOn)
}
