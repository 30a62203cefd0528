package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewSQLStore(db, DialectPostgres), mock
}

func TestSQLStore_Migrate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS plugin_catalog").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Replace(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO plugin_catalog").
		WithArgs("a1", true, `["u1"]`, `{"name":"alpha"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := NewRecord("a1", map[string]interface{}{"name": "alpha", "server.js": "x"})
	rec.Users = []string{"u1"}
	require.NoError(t, s.Replace(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_FindByID(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "enabled", "users", "fields"}).
		AddRow("a1", false, `["u1"]`, `{"name":"alpha","size":3}`)
	mock.ExpectQuery("SELECT id, enabled, users, fields FROM plugin_catalog WHERE id").
		WithArgs("a1").
		WillReturnRows(rows)

	rec, err := s.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.False(t, rec.Enabled)
	assert.Equal(t, []string{"u1"}, rec.Users)
	assert.Equal(t, "alpha", rec.Fields["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_FindByID_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, enabled, users, fields FROM plugin_catalog WHERE id").
		WithArgs("zz").
		WillReturnRows(sqlmock.NewRows([]string{"id", "enabled", "users", "fields"}))

	_, err := s.FindByID(context.Background(), "zz")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestSQLStore_FindAll_Error(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, enabled, users, fields FROM plugin_catalog ORDER BY id").
		WillReturnError(errors.New("connection reset"))

	_, err := s.FindAll(context.Background())
	assert.ErrorContains(t, err, "connection reset")
}

func TestSQLStore_SetEnabled(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "existing record", affected: 1},
		{name: "unknown record", affected: 0, wantErr: ErrRecordNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectExec("UPDATE plugin_catalog SET enabled").
				WithArgs(false, sqlmock.AnyArg(), "a1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := s.SetEnabled(context.Background(), "a1", false)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_Delete(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM plugin_catalog WHERE id").
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM plugin_catalog WHERE id").
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Delete(context.Background(), "a1"))
	assert.ErrorIs(t, s.Delete(context.Background(), "a1"), ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Rebind(t *testing.T) {
	pg := NewSQLStore(nil, DialectPostgres)
	lite := NewSQLStore(nil, DialectSQLite)

	query := `UPDATE t SET a = ?, b = ? WHERE id = ?`
	assert.Equal(t, `UPDATE t SET a = $1, b = $2 WHERE id = $3`, pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}

func TestOpenSQLStore_UnknownDialect(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), Dialect("mongodb"), "")
	assert.Error(t, err)
}
