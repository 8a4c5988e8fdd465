package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const pingTimeout = 5 * time.Second

// PoolStats is the pgxpool snapshot included in /health/db.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
	AcquireCount  int64 `json:"acquire_count"`
	// EmptyAcquires counts acquires that had to wait for a connection.
	EmptyAcquires int64 `json:"empty_acquires"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
		AcquireCount:  stat.AcquireCount(),
		EmptyAcquires: stat.EmptyAcquireCount(),
	}
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReport is the /health/db response body.
type HealthReport struct {
	Status  string     `json:"status"`
	Store   string     `json:"store"`
	Latency string     `json:"latency,omitempty"`
	Pool    *PoolStats `json:"pool,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// HealthHandler checks the PostgreSQL pool.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return Health(pool, func() *PoolStats { return GetPoolStats(pool) })
}

// Health pings p and reports 503 when the ping fails. stats may be nil.
func Health(p Pinger, stats func() *PoolStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()

		start := time.Now()
		err := p.Ping(ctx)
		report := HealthReport{
			Status:  "healthy",
			Store:   "postgres",
			Latency: time.Since(start).Round(time.Microsecond).String(),
		}
		if stats != nil {
			report.Pool = stats()
		}
		if err != nil {
			report.Status = "unhealthy"
			report.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}

// MemoryHealth reports the in-memory store, which is always available.
func MemoryHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthReport{Status: "healthy", Store: "memory"})
}
