package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"STORE_DRIVER", "MEETING_TIMEZONE", "MEETING_LIVE_WINDOW_MINUTES"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 2*time.Hour, cfg.Meetings.LiveWindow())
	loc, err := cfg.Meetings.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("MEETING_TIMEZONE", "Asia/Kolkata")
	t.Setenv("MEETING_LIVE_WINDOW_MINUTES", "90")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMongo, cfg.Store.Driver)
	assert.Equal(t, 90*time.Minute, cfg.Meetings.LiveWindow())
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 3, cfg.Redis.Options().DB)
	assert.Equal(t, int32(10), cfg.Database.PoolOptions().MaxConns)
	assert.Equal(t, 30*time.Minute, cfg.Database.PoolOptions().MaxConnLifetime)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "unknown driver", key: "STORE_DRIVER", val: "sqlite"},
		{name: "unknown zone", key: "MEETING_TIMEZONE", val: "Mars/Olympus"},
		{name: "zero window", key: "MEETING_LIVE_WINDOW_MINUTES", val: "0"},
		{name: "non-numeric window", key: "MEETING_LIVE_WINDOW_MINUTES", val: "two hours"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: "5432", DBName: "x", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/x?sslmode=disable", c.DSN())

	c.URL = "postgres://elsewhere/y"
	assert.Equal(t, "postgres://elsewhere/y", c.DSN())
}
