package postgres_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dbconfig "github.com/tigerroll/suicsync/pkg/batch/adapter/database/config"
	"github.com/tigerroll/suicsync/pkg/batch/adapter/database/gorm/postgres"
)

func TestConnectionString(t *testing.T) {
	cfg := dbconfig.DatabaseConfig{
		Type:                  "postgres",
		Host:                  "pg_host",
		Port:                  5432,
		Database:              "pg_db",
		User:                  "pg_user",
		Password:              "pg_password",
		Sslmode:               "require",
		ConnectTimeoutSeconds: 10,
	}

	assert.Equal(t,
		"host=pg_host port=5432 user=pg_user password=pg_password dbname=pg_db sslmode=require connect_timeout=10",
		postgres.ConnectionString(cfg))

	cfg.Sslmode = ""
	cfg.Schema = "ops"
	cfg.ConnectTimeoutSeconds = 0
	assert.Equal(t,
		"host=pg_host port=5432 user=pg_user password=pg_password dbname=pg_db sslmode=disable search_path=ops",
		postgres.ConnectionString(cfg))
}
