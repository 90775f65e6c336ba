package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/primorial/fortunate/internal/config"
	"github.com/primorial/fortunate/internal/ledger"
	"github.com/primorial/fortunate/internal/observability"
	"github.com/primorial/fortunate/internal/primality"
	"github.com/primorial/fortunate/internal/primorial"
	"github.com/primorial/fortunate/internal/search"
	"github.com/primorial/fortunate/internal/service"
	"github.com/primorial/fortunate/internal/storage"
	"github.com/primorial/fortunate/internal/sweep"
)

// Components holds everything a search needs, built once from the config
// and shared by the CLI modes and the servers.
type Components struct {
	Provider    *primorial.Provider
	Coordinator *search.Coordinator
	Ledger      ledger.Ledger
	Storage     storage.ObjectStorage
	Stats       *observability.RunStats
	Service     *service.Service
	Sweep       *sweep.Runner
}

// Build wires the components described by cfg. cfg must be resolved and
// validated. Extra observers see every search.
func Build(ctx context.Context, cfg *config.Config, observers ...search.Observer) (*Components, error) {
	c := &Components{
		Provider: primorial.NewProvider(cfg.Provider.MaxIndex),
		Stats:    observability.NewRunStats(24 * time.Hour),
	}

	oracle, err := newOracle(cfg.Oracle)
	if err != nil {
		return nil, err
	}

	opts := search.Options{
		Workers:             cfg.Search.Workers,
		BasePeriod:          cfg.Search.BasePeriod,
		Tolerance:           cfg.Search.Tolerance,
		InitialBatchSize:    cfg.Search.InitialBatchSize,
		MinBatchSize:        cfg.Search.MinBatchSize,
		MaxBatchSize:        cfg.Search.MaxBatchSize,
		Rounds:              cfg.Search.Rounds,
		CancelCheckInterval: cfg.Search.CancelCheckInterval,
		MaxRetries:          cfg.Search.MaxRetries,
	}
	coordOpts := []search.CoordinatorOption{
		search.WithObserver(append(search.MultiObserver{c.Stats}, observers...)),
	}
	if cfg.Search.Prefilter {
		coordOpts = append(coordOpts, search.WithPrefilter(func(n int) (search.Prefilter, error) {
			return c.Provider.Filter(n)
		}))
	}
	if c.Coordinator, err = search.NewCoordinator(c.Provider, oracle, opts, coordOpts...); err != nil {
		return nil, err
	}

	if cfg.Ledger.Enabled {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
		c.Ledger = l
	}

	if c.Storage, err = newStorage(ctx, cfg.Storage); err != nil {
		c.Close()
		return nil, err
	}

	c.Service = service.New(c.Coordinator, c.Provider, c.Ledger, c.Stats)
	c.Sweep = sweep.NewRunner(c.Service, c.Storage, cfg.Sweep.ReportPrefix, cfg.Search.Workers)
	return c, nil
}

// Close cancels running searches and releases the ledger.
func (c *Components) Close() error {
	if c.Service != nil {
		c.Service.Close()
	}
	if c.Ledger != nil {
		return c.Ledger.Close()
	}
	return nil
}

func newOracle(cfg config.OracleConfig) (search.PrimalityOracle, error) {
	switch cfg.Type {
	case config.OracleGP:
		gp := primality.NewGPOracle(cfg.GPPath, 0)
		if !gp.Available() {
			return nil, fmt.Errorf("oracle: gp executable %q not found", cfg.GPPath)
		}
		log.Printf("oracle: using PARI/GP at %s", cfg.GPPath)
		return gp, nil
	default:
		return primality.NewMillerRabin(), nil
	}
}

func newStorage(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	switch cfg.Type {
	case "s3":
		s3cfg := storage.DefaultS3Config()
		if cfg.S3.Region != "" {
			s3cfg.Region = cfg.S3.Region
		}
		s3cfg.Endpoint = cfg.S3.Endpoint
		s3cfg.UsePathStyle = cfg.S3.Endpoint != ""
		return storage.NewS3Storage(ctx, cfg.S3.Bucket, s3cfg)
	default:
		return storage.NewLocalStorage(cfg.Path)
	}
}
