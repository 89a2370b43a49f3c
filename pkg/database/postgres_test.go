package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-risk-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "risk", Password: "pw", Name: "school_risk", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5432 user=risk password=pw dbname=school_risk sslmode=disable connect_timeout=5", dsn)
}

func TestPinger(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	ping := Pinger(sqlx.NewDb(db, "sqlmock"))
	assert.NoError(t, ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Error(t, Pinger(nil)(context.Background()))
}
