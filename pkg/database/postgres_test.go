package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-etf/pkg/config"
)

func TestNewNotConfigured(t *testing.T) {
	_, err := New(context.Background(), config.DatabaseConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPoolConfigFrom(t *testing.T) {
	cfg := config.DatabaseConfig{
		URL:             "postgresql://u:p@localhost:5432/aegis_etf",
		MaxConns:        7,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
	}

	pc, err := poolConfigFrom(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, int32(1), pc.MinConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
	assert.Equal(t, "aegis_etf", pc.ConnConfig.Database)

	_, err = poolConfigFrom(config.DatabaseConfig{URL: "://bad"})
	assert.Error(t, err)
}

func TestIntegrationSchemaAndHealth(t *testing.T) {
	if testing.Short() || os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := New(ctx, cfg.Database)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.EnsureSchema(ctx))
	status := db.HealthCheck(ctx)
	assert.True(t, status.Healthy)
}
