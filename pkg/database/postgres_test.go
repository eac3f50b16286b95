package database

import (
	"order_lifecycle/internal/pkg/config"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host: "localhost", User: "orders", Password: "secret", DBName: "order_lifecycle",
		Port: "5432", SSLMode: "disable", TimeZone: "Asia/Kolkata",
	})
	assert.Equal(t, "host=localhost user=orders password=secret dbname=order_lifecycle port=5432 sslmode=disable TimeZone=Asia/Kolkata", dsn)
}

func TestMigrateURLEscapesPassword(t *testing.T) {
	u := MigrateURL(config.DatabaseConfig{
		Host: "db", User: "orders", Password: "p@ss/word", DBName: "order_lifecycle",
		Port: "5432", SSLMode: "disable",
	})
	assert.Equal(t, "postgres://orders:p%40ss%2Fword@db:5432/order_lifecycle?sslmode=disable", u)
}
