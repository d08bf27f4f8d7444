package database

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/backend/config"
)

func TestMigrate_AppliesEmbeddedSchema(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer mock.Close()

	require.Contains(t, schemaSQL, "rides_one_active_per_driver")
	mock.ExpectExec(schemaSQL).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	assert.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_WrapsFailure(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer mock.Close()

	cause := errors.New("permission denied for schema public")
	mock.ExpectExec(schemaSQL).WillReturnError(cause)

	err = Migrate(context.Background(), mock)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "schema migration failed")
}

func TestConnectDB_RequiresURL(t *testing.T) {
	_, err := ConnectDB(context.Background(), &config.Config{})
	assert.EqualError(t, err, "DATABASE_URL is not set")
}

func TestCloseDB_NilIsSafe(t *testing.T) {
	assert.NotPanics(t, func() { CloseDB(nil) })
}
