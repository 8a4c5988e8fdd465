package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
	// LogLevel is the pgx trace level: trace, debug, info, warn, error or
	// none. Empty disables query logging.
	LogLevel string
}

func NewPool(ctx context.Context, pc PoolConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(pc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	if pc.LogLevel != "" {
		level, err := tracelog.LogLevelFromString(pc.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("parse db log level: %w", err)
		}
		cfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   NewQueryLogger(logger),
			LogLevel: level,
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// QueryLogger forwards pgx trace output to zerolog.
type QueryLogger struct {
	logger zerolog.Logger
}

func NewQueryLogger(logger zerolog.Logger) *QueryLogger {
	return &QueryLogger{logger: logger.With().Str("component", "pgx").Logger()}
}

func (l *QueryLogger) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	var ev *zerolog.Event
	switch level {
	case tracelog.LogLevelTrace:
		ev = l.logger.Trace()
	case tracelog.LogLevelDebug:
		ev = l.logger.Debug()
	case tracelog.LogLevelInfo:
		ev = l.logger.Info()
	case tracelog.LogLevelWarn:
		ev = l.logger.Warn()
	case tracelog.LogLevelError:
		ev = l.logger.Error()
	default:
		return
	}
	for k, v := range data {
		if d, ok := v.(time.Duration); ok {
			ev = ev.Dur(k, d)
			continue
		}
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
