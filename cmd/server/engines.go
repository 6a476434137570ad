package main

import (
	"context"
	"fmt"

	"docengine/internal/core/engine"
	"docengine/internal/infrastructure/storage/mysql"
	"docengine/internal/infrastructure/storage/postgres"
	"docengine/internal/infrastructure/storage/rpc"
	"docengine/pkg/config"
	"docengine/pkg/logger"
)

// openEngines connects every engine with a DSN. The caller closes them
// through the selector.
func openEngines(ctx context.Context, cfg *config.Config, log *logger.Logger) ([]engine.Engine, error) {
	var engines []engine.Engine
	fail := func(err error) ([]engine.Engine, error) {
		for _, e := range engines {
			_ = e.Close()
		}
		return nil, err
	}

	if dsn := cfg.Engine.Postgres.DSN; dsn != "" {
		pc := postgres.DefaultPoolConfig(dsn)
		pc.ApplicationName = cfg.App.Name
		pc.MaxConns = cfg.Engine.Postgres.MaxConns
		pc.MinConns = cfg.Engine.Postgres.MinConns
		pool, err := postgres.NewPool(ctx, pc)
		if err != nil {
			return fail(fmt.Errorf("postgresql engine: %w", err))
		}
		engines = append(engines, postgres.NewSQLEngine(pool, cfg.Kinds))
		log.Infow("engine registered", "engine", engine.Postgres)
	}

	if dsn := cfg.Engine.Supabase.DSN; dsn != "" {
		pc := postgres.DefaultPoolConfig(dsn)
		pc.ApplicationName = cfg.App.Name + "-rpc"
		pc.MaxConns = cfg.Engine.Supabase.MaxConns
		pool, err := postgres.NewPool(ctx, pc)
		if err != nil {
			return fail(fmt.Errorf("supabase engine: %w", err))
		}
		e, err := rpc.New(pool, rpc.Config{
			RoutineSchema: cfg.Engine.Supabase.RoutineSchema,
			ExecRole:      cfg.Engine.Supabase.ExecRole,
			Claims:        cfg.Engine.Supabase.Claims,
		})
		if err != nil {
			pool.Close()
			return fail(fmt.Errorf("supabase engine: %w", err))
		}
		engines = append(engines, e)
		log.Infow("engine registered", "engine", engine.Supabase)
	}

	if dsn := cfg.Engine.MySQL.DSN; dsn != "" {
		db, err := mysql.Open(ctx, mysql.Config{
			DSN:             dsn,
			MaxOpenConns:    cfg.Engine.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.Engine.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.Engine.MySQL.ConnMaxLifetime,
		})
		if err != nil {
			return fail(fmt.Errorf("mysql engine: %w", err))
		}
		engines = append(engines, mysql.New(db))
		log.Infow("engine registered", "engine", engine.MySQL)
	}

	return engines, nil
}
