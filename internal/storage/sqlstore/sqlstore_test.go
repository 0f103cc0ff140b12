package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"github.com/vadimbarashkov/linkhub/internal/storage"
)

var errUnknown = errors.New("unknown error")

func setupStore(t testing.TB) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	db := sqlx.NewDb(mockDB, "sqlmock")
	store := New(db)

	t.Cleanup(func() {
		mockDB.Close()
		db.Close()
	})

	return store, mock
}

func TestStore_Load(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		store, mock := setupStore(t)

		mock.ExpectQuery(`SELECT data FROM snapshots`).
			WithArgs("shortened-urls").
			WillReturnRows(sqlmock.NewRows([]string{"data"}))

		data, err := store.Load(context.TODO(), "shortened-urls")

		assert.ErrorIs(t, err, storage.ErrKeyNotFound)
		assert.Nil(t, data)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown error", func(t *testing.T) {
		store, mock := setupStore(t)

		mock.ExpectQuery(`SELECT data FROM snapshots`).
			WithArgs("shortened-urls").
			WillReturnError(errUnknown)

		data, err := store.Load(context.TODO(), "shortened-urls")

		assert.ErrorIs(t, err, errUnknown)
		assert.Nil(t, data)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		store, mock := setupStore(t)

		rows := sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"docs":{}}`))
		mock.ExpectQuery(`SELECT data FROM snapshots`).
			WithArgs("shortened-urls").
			WillReturnRows(rows)

		data, err := store.Load(context.TODO(), "shortened-urls")

		assert.NoError(t, err)
		assert.Equal(t, []byte(`{"docs":{}}`), data)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Save(t *testing.T) {
	t.Run("unknown error", func(t *testing.T) {
		store, mock := setupStore(t)

		mock.ExpectExec(`INSERT INTO snapshots`).
			WithArgs("app-logs", []byte(`[]`)).
			WillReturnError(errUnknown)

		err := store.Save(context.TODO(), "app-logs", []byte(`[]`))

		assert.ErrorIs(t, err, errUnknown)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		store, mock := setupStore(t)

		mock.ExpectExec(`INSERT INTO snapshots`).
			WithArgs("app-logs", []byte(`[]`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.Save(context.TODO(), "app-logs", []byte(`[]`))

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Delete(t *testing.T) {
	t.Run("unknown error", func(t *testing.T) {
		store, mock := setupStore(t)

		mock.ExpectExec(`DELETE FROM snapshots`).
			WithArgs("app-logs").
			WillReturnError(errUnknown)

		err := store.Delete(context.TODO(), "app-logs")

		assert.ErrorIs(t, err, errUnknown)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		store, mock := setupStore(t)

		mock.ExpectExec(`DELETE FROM snapshots`).
			WithArgs("app-logs").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.Delete(context.TODO(), "app-logs")

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Bootstrap(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS snapshots`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, store.Bootstrap(context.TODO()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
