package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vadimbarashkov/linkhub/internal/config"
	"github.com/vadimbarashkov/linkhub/internal/storage"
	"github.com/vadimbarashkov/linkhub/internal/storage/sqlstore"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func setupPostgres(t testing.TB) config.Postgres {
	t.Helper()

	ctx := context.Background()

	pgUser := "test"
	pgPassword := "test"
	pgDB := "linkhub"

	pgCont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "postgres:16-alpine",
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDB,
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForExposedPort(),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgCont.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate postgres container: %v", err)
		}
	})

	pgHost, err := pgCont.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	pgPort, err := pgCont.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return config.Postgres{
		User:     pgUser,
		Password: pgPassword,
		Host:     pgHost,
		Port:     pgPort.Int(),
		DB:       pgDB,
		SSLMode:  "disable",
	}
}

func runMigrations(t testing.TB, cfg config.Postgres) {
	t.Helper()

	migrationPath := "file://../../migrations"

	m, err := migrate.New(migrationPath, cfg.DSN())
	if err != nil {
		t.Fatalf("Failed to initialize migrations: %v", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			t.Fatalf("Failed to rollback migrations: %v", err)
		}
	})
}

func setupStore(t testing.TB) *sqlstore.Store {
	t.Helper()

	cfg := setupPostgres(t)
	runMigrations(t, cfg)

	db, err := sqlstore.Open(context.Background(), sqlstore.DriverPostgres, cfg.DSN())
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("Failed to close database: %v", err)
		}
	})

	return sqlstore.New(db)
}

func TestSQLStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(t)

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Load(ctx, "missing")

		assert.ErrorIs(t, err, storage.ErrKeyNotFound)
	})

	t.Run("save and load round trip", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "shortened-urls", []byte(`{"docs":{}}`)))

		data, err := store.Load(ctx, "shortened-urls")

		require.NoError(t, err)
		assert.JSONEq(t, `{"docs":{}}`, string(data))
	})

	t.Run("save overwrites", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "app-logs", []byte(`[]`)))
		require.NoError(t, store.Save(ctx, "app-logs", []byte(`[{"id":"log-1"}]`)))

		data, err := store.Load(ctx, "app-logs")

		require.NoError(t, err)
		assert.JSONEq(t, `[{"id":"log-1"}]`, string(data))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "tmp", []byte(`{}`)))
		require.NoError(t, store.Delete(ctx, "tmp"))

		_, err := store.Load(ctx, "tmp")
		assert.ErrorIs(t, err, storage.ErrKeyNotFound)

		assert.NoError(t, store.Delete(ctx, "tmp"))
	})
}
