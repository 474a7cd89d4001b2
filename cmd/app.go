package main

import (
	"context"
	"fmt"
	"log"

	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/deepwiki-go/repochat/internal/data"
	"github.com/deepwiki-go/repochat/internal/rag"
	"github.com/go-redis/redis/v8"
)

// app holds the long-lived components shared by every command
type app struct {
	cfg       *config.Config
	rdb       redis.UniversalClient
	store     data.SnapshotStore
	indexes   *data.DatabaseManager
	files     *data.FileFetcher
	providers *rag.ProviderRegistry
	rag       *rag.RAG
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	if cfg.UsesRedis() {
		a.rdb = data.NewRedisClient(cfg)
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: redis at %s is not reachable: %v", cfg.Redis.Addr, err)
		}
	}

	embedder, err := data.NewEmbedder(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.store, err = data.NewSnapshotStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	a.indexes = data.NewDatabaseManager(cfg,
		data.NewRepositoryManager(cfg),
		embedder,
		a.store,
		data.NewBuildLocker(cfg, a.rdb),
	)
	a.files = data.NewFileFetcher(cfg)
	a.providers = rag.NewConfiguredRegistry(ctx, cfg)
	a.rag = rag.NewRAG(cfg, a.indexes, a.files, a.providers)
	return a, nil
}

func (a *app) Close() {
	if a.providers != nil {
		if err := a.providers.Close(); err != nil {
			log.Printf("Error closing providers: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Printf("Error closing snapshot store: %v", err)
		}
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
}
