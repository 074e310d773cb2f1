package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsSerializationFailure(t *testing.T) {
	require.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40P01"}))
	require.True(t, IsSerializationFailure(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})))

	require.False(t, IsSerializationFailure(nil))
	require.False(t, IsSerializationFailure(errors.New("plain error")))
	require.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
}

func TestMigrateURLScheme(t *testing.T) {
	require.Equal(t, "pgx5://localhost/permata", migrateURL("postgres://localhost/permata"))
	require.Equal(t, "pgx5://localhost/permata", migrateURL("postgresql://localhost/permata"))
	require.Equal(t, "pgx5://localhost/permata", migrateURL("pgx5://localhost/permata"))
}
