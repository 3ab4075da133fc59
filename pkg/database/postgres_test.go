package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/alers-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "tutor", Password: "secret", Name: "alers"})
	assert.Equal(t, "host=db port=5433 user=tutor password=secret dbname=alers sslmode=disable", dsn)

	dsn = DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "require"})
	assert.Contains(t, dsn, "sslmode=require")
}
