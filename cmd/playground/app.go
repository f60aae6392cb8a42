package main

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jingkaihe/playground/pkg/chat"
	"github.com/jingkaihe/playground/pkg/config"
	"github.com/jingkaihe/playground/pkg/conversations"
	"github.com/jingkaihe/playground/pkg/db"
	"github.com/jingkaihe/playground/pkg/db/migrations"
	"github.com/jingkaihe/playground/pkg/errorlog"
	"github.com/jingkaihe/playground/pkg/logger"
)

// lockTimeout bounds the wait for another playground process to release the database
const lockTimeout = 2 * time.Second

// app holds the resources shared by the commands that use the database
type app struct {
	paths    config.Paths
	apiKey   string
	db       *sqlx.DB
	registry *db.Registry
	store    *conversations.Store
	sink     *errorlog.Sink
	unlock   func()
}

type appOptions struct {
	// requireKey fails with chat.ErrMissingAPIKey before touching the database
	requireKey bool
}

func openApp(ctx context.Context, c config.Config, opts appOptions) (*app, error) {
	paths, err := c.ResolvePaths()
	if err != nil {
		return nil, err
	}

	apiKey, err := c.ResolveAPIKey(paths)
	if err != nil {
		return nil, err
	}
	if opts.requireKey && apiKey == "" {
		return nil, chat.ErrMissingAPIKey
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	unlock, err := db.Lock(lockCtx, paths.Database)
	if err != nil {
		if errors.Is(err, db.ErrLocked) {
			return nil, errors.Wrap(err, "another playground process is using the database")
		}
		return nil, err
	}

	sqlDB, err := db.Open(ctx, paths.Database)
	if err != nil {
		unlock()
		return nil, err
	}

	logger.G(ctx).WithField("database", paths.Database).Debug("database opened")

	return &app{
		paths:    paths,
		apiKey:   apiKey,
		db:       sqlDB,
		registry: db.NewRegistry(sqlDB, migrations.All()),
		store:    conversations.NewStore(sqlDB),
		sink:     errorlog.NewSink(sqlDB),
		unlock:   unlock,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		logger.L.WithError(err).Warn("failed to close database")
	}
	a.unlock()
}
