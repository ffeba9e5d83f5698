package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "warden.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	data, err := store.Load(ctx, "delegation_rules")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, store.Save(ctx, "delegation_rules", []byte(`[{"rule_id":"r-1"}]`)))
	require.NoError(t, store.Save(ctx, "delegation_rules", []byte(`[{"rule_id":"r-2"}]`)))

	data, err = store.Load(ctx, "delegation_rules")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"rule_id":"r-2"}]`, string(data))
}

func TestSQLStoreLoadError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS snapshots").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewSQLStore(db)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT data FROM snapshots WHERE name").
		WithArgs("acl_entries").
		WillReturnError(errors.New("disk I/O error"))

	_, err = store.Load(context.Background(), "acl_entries")
	assert.ErrorContains(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreSaveError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS snapshots").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewSQLStore(db)
	require.NoError(t, err)

	mock.ExpectExec("INSERT OR REPLACE INTO snapshots").
		WillReturnError(errors.New("database is locked"))

	err = store.Save(context.Background(), "service_plans", []byte(`[]`))
	assert.ErrorContains(t, err, "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreSchemaError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS snapshots").
		WillReturnError(errors.New("read-only database"))

	_, err = NewSQLStore(db)
	assert.ErrorContains(t, err, "read-only database")
}
