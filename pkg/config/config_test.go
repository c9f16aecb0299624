package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := fromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.DB.Driver)
	assert.Equal(t, 5*time.Second, cfg.Ledger.LockTimeout)
	assert.Equal(t, "bulk-import", cfg.Import.Actor)
	assert.Empty(t, cfg.JWT.AllowedActors)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("DB_DRIVER", "SQLite")
	v.Set("DB_PATH", "/tmp/w.db")
	v.Set("LEDGER_LOCK_TIMEOUT", "750ms")
	v.Set("ALLOWED_ACTORS", " ana, luis ,,")
	v.Set("HTTP_PORT", "9090")
	v.Set("REDIS_ADDR", "localhost:6379")

	cfg, err := fromViper(v)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.DB.Driver)
	assert.Equal(t, "/tmp/w.db", cfg.DB.Path)
	assert.Equal(t, 750*time.Millisecond, cfg.Ledger.LockTimeout)
	assert.Equal(t, []string{"ana", "luis"}, cfg.JWT.AllowedActors)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestFromViper_LockTimeoutEnSegundos(t *testing.T) {
	v := viper.New()
	v.Set("LEDGER_LOCK_TIMEOUT", "3")

	cfg, err := fromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Ledger.LockTimeout)
}

func TestFromViper_Invalidos(t *testing.T) {
	v := viper.New()
	v.Set("DB_DRIVER", "mysql")
	_, err := fromViper(v)
	assert.Error(t, err)

	v = viper.New()
	v.Set("LEDGER_LOCK_TIMEOUT", "pronto")
	_, err = fromViper(v)
	assert.Error(t, err)
}

func TestDBConfig_DSNEscapaPassword(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss:word", DBName: "warehouse", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss%3Aword@db:5432/warehouse?sslmode=disable", c.DSN())

	c.DatabaseURL = "postgres://x"
	assert.Equal(t, "postgres://x", c.ConnectionString())
}
