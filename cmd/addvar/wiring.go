package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/egobogo/addvar/internal/config"
	"github.com/egobogo/addvar/internal/embedding"
	"github.com/egobogo/addvar/internal/embedding/selector"
	"github.com/egobogo/addvar/internal/index"
	"github.com/egobogo/addvar/internal/memory"
	"github.com/egobogo/addvar/internal/memory/badgerdb"
	"github.com/egobogo/addvar/internal/memory/inmemory"
	"github.com/egobogo/addvar/internal/reconcile"
	"github.com/egobogo/addvar/internal/server"
	"github.com/egobogo/addvar/internal/storage"
)

func openStore(cfg config.MemoryConfig, logger *slog.Logger) (memory.Store, error) {
	switch cfg.Backend {
	case "", "inmemory":
		return inmemory.New(inmemory.WithLogger(logger)), nil
	case "badger":
		s, err := badgerdb.Open(badgerdb.Options{Dir: cfg.Dir, Logger: logger})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}

func openSink(cfg config.ReconcileConfig) (storage.FileStore, error) {
	switch cfg.Sink {
	case "", "local":
		l, err := storage.NewLocal(cfg.LocalDir)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "s3":
		client := storage.NewS3Client(storage.S3Options{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		return storage.NewS3(client, cfg.S3.Bucket, cfg.S3.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown reconcile sink %q", cfg.Sink)
	}
}

// selectProvider returns a nil provider, not an error, when none is
// configured: the service still runs on keyword ranking.
func selectProvider(cfg config.EmbeddingConfig, logger *slog.Logger) (embedding.Provider, error) {
	p, err := selector.Select(cfg, logger)
	if errors.Is(err, embedding.ErrProviderUnavailable) {
		logger.Warn("no embedding provider, semantic search disabled", "err", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// service is the fully wired core shared by the subcommands.
type service struct {
	store memory.Store
	sink  storage.FileStore
	api   *server.Server
}

func newService(cfg *config.Config, logger *slog.Logger) (*service, error) {
	builders, err := index.Builders(cfg.Index)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.ProviderTimeout()
	if err != nil {
		return nil, err
	}
	provider, err := selectProvider(cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}
	sink, err := openSink(cfg.Reconcile)
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg.Memory, logger)
	if err != nil {
		return nil, err
	}

	api := server.New(server.Options{
		Addr:         cfg.Server.Addr,
		Store:        store,
		Index:        index.New(index.WithBuilders(builders...), index.WithTimeout(timeout), index.WithLogger(logger)),
		Provider:     provider,
		Reconciler:   reconcile.New(sink, cfg.Reconcile.Path, reconcile.WithLogger(logger)),
		AuditRecalls: cfg.Server.AuditRecalls,
		Logger:       logger,
	})
	return &service{store: store, sink: sink, api: api}, nil
}

func (s *service) Close() error { return s.store.Close() }
