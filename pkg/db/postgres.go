package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var embeddedSchema string

type Config struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
	// ApplySchema runs the schema on connect.
	ApplySchema bool
	// SchemaPath overrides the embedded schema when set.
	SchemaPath string
}

// Connect opens a pool, verifies it with a ping and optionally applies the schema.
func Connect(ctx context.Context, cfg Config, log *zap.Logger) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable not set")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}

	log.Info("connected to postgres",
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.Int32("min_conns", poolCfg.MinConns),
	)

	if cfg.ApplySchema {
		schemaCtx, cancelSchema := context.WithTimeout(ctx, 30*time.Second)
		defer cancelSchema()
		if err := ApplySchema(schemaCtx, pool, cfg.SchemaPath); err != nil {
			pool.Close()
			return nil, err
		}
		source := cfg.SchemaPath
		if source == "" {
			source = "embedded"
		}
		log.Info("schema applied", zap.String("source", source))
	}

	return pool, nil
}

// ApplySchema executes the schema file at path, or the embedded schema when
// path is empty. Every statement is idempotent.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool, path string) error {
	sql := embeddedSchema
	if path != "" {
		bytes, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read schema file: %w", err)
		}
		sql = string(bytes)
	}

	sql = strings.TrimSpace(sql)
	if sql == "" {
		return fmt.Errorf("schema is empty: %q", path)
	}

	if _, err := pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}
