package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"

	"github.com/go-chi/httplog/v2"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/vadimbarashkov/linkhub/internal/config"
	"github.com/vadimbarashkov/linkhub/internal/eventlog"
	"github.com/vadimbarashkov/linkhub/internal/models"
	"github.com/vadimbarashkov/linkhub/internal/registry"
	"github.com/vadimbarashkov/linkhub/internal/storage"
	"github.com/vadimbarashkov/linkhub/internal/storage/filestore"
	"github.com/vadimbarashkov/linkhub/internal/storage/sqlstore"

	myhttp "github.com/vadimbarashkov/linkhub/internal/api/http"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx); err != nil {
		panic(err)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Env)

	g, ctx := errgroup.WithContext(ctx)

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	// The store must outlive the errgroup: the flushers' final shutdown
	// writes run inside it, so the connection pool closes only after
	// g.Wait() has returned.
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("failed to close snapshot store", slog.Any("err", err))
		}
	}()

	clock := models.RealClock{}

	elog := eventlog.New(ctx, store, clock, logger.Logger,
		eventlog.WithCapacity(cfg.LogCapacity),
		eventlog.WithFlushInterval(cfg.FlushInterval),
	)
	g.Go(func() error {
		return elog.Run(ctx)
	})

	reg := registry.New(ctx, store, elog, clock,
		registry.WithCodeLength(cfg.ShortCodeLength),
		registry.WithFlushInterval(cfg.FlushInterval),
	)
	g.Go(func() error {
		return reg.Run(ctx)
	})

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        myhttp.NewRouter(logger, reg, elog),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})

	return g.Wait()
}

func newLogger(env string) *httplog.Logger {
	opts := httplog.Options{
		LogLevel: slog.LevelDebug,
		Concise:  true,
	}

	if env == config.EnvProd {
		opts.LogLevel = slog.LevelInfo
		opts.JSON = true
		opts.Concise = false
	}

	return httplog.NewLogger("linkhub", opts)
}

func noopClose() error { return nil }

// newStore builds the snapshot store selected by the config. The returned
// close function releases the backing resources; the caller invokes it after
// all flushers have finished.
func newStore(ctx context.Context, cfg *config.Config) (storage.Store, func() error, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return storage.NewMemory(), noopClose, nil

	case config.DriverFile:
		store, err := filestore.New(cfg.Storage.FileDir)
		if err != nil {
			return nil, nil, err
		}

		return store, noopClose, nil

	case config.DriverSQLite:
		db, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}

		store := sqlstore.New(db)
		if err := store.Bootstrap(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}

		return store, db.Close, nil

	case config.DriverPostgres:
		dsn := cfg.Storage.Postgres.DSN()

		if err := sqlstore.RunMigrations("file://migrations", dsn); err != nil {
			return nil, nil, err
		}

		db, err := sqlstore.Open(ctx, sqlstore.DriverPostgres, dsn,
			sqlstore.WithConnMaxIdleTime(cfg.Storage.Postgres.ConnMaxIdleTime),
			sqlstore.WithConnMaxLifetime(cfg.Storage.Postgres.ConnMaxLifetime),
			sqlstore.WithMaxIdleConns(cfg.Storage.Postgres.MaxIdleConns),
			sqlstore.WithMaxOpenConns(cfg.Storage.Postgres.MaxOpenConns),
		)
		if err != nil {
			return nil, nil, err
		}

		return sqlstore.New(db), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver: %q", cfg.Storage.Driver)
	}
}
