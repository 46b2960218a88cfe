package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMigrations_FreshAndIdempotent(t *testing.T) {
	db, err := openDatabase(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	ctx := context.Background()

	v, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", v.String())

	require.NoError(t, ApplyMigrations(ctx, db))
	v, err = SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	// Second run applies nothing
	require.NoError(t, ApplyMigrations(ctx, db))
	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&n))
	assert.Equal(t, len(AllMigrations), n)
}

func TestRollbackMigration(t *testing.T) {
	db, err := openDatabase(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, db))

	for i := len(AllMigrations) - 1; i >= 0; i-- {
		require.NoError(t, RollbackMigration(ctx, db))
		v, err := SchemaVersion(ctx, db)
		require.NoError(t, err)
		want := "0.0.0"
		if i > 0 {
			want = AllMigrations[i-1].Version
		}
		assert.Equal(t, want, v.String())
	}

	assert.Error(t, RollbackMigration(ctx, db))

	// Everything re-applies cleanly
	require.NoError(t, ApplyMigrations(ctx, db))
	v, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())
}
