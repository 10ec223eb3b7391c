package dbconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_PASSWORD", "p@ss")

	cfg := NewConfigFromEnv()
	assert.Equal(t, "db", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "scrumscope", cfg.Database)
	assert.Equal(t, "postgres://postgres:p%40ss@db:6543/scrumscope?sslmode=disable", cfg.DSN())
	assert.Equal(t, "postgres://postgres:xxxxx@db:6543/scrumscope?sslmode=disable", cfg.Redacted())
}

func TestBadPortFallsBack(t *testing.T) {
	t.Setenv("DB_PORT", "x")
	assert.Equal(t, 5432, NewConfigFromEnv().Port)
}

func TestDatabaseURLWins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@remote:5432/poker")
	t.Setenv("DB_HOST", "ignored")
	assert.Equal(t, "postgres://u:p@remote:5432/poker", NewConfigFromEnv().DSN())
}
