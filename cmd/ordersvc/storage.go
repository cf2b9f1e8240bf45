package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	config "github.com/damian-zhang-1027/order-service/internal/config"
	orderDomain "github.com/damian-zhang-1027/order-service/internal/order/domain"
	orderMongo "github.com/damian-zhang-1027/order-service/internal/order/infra/outbound/db/mongodb"
	orderPostgres "github.com/damian-zhang-1027/order-service/internal/order/infra/outbound/db/postgre"
	orderSQLite "github.com/damian-zhang-1027/order-service/internal/order/infra/outbound/db/sqlite"
	sharedDomain "github.com/damian-zhang-1027/order-service/internal/shared/domain"
	sharedMongo "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/db/mongodb"
	sharedPostgres "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/db/postgres"
	sharedSQLite "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/db/sqlite"
)

// storage agrupa el repositorio de órdenes y el outbox del mismo motor.
type storage struct {
	orders orderDomain.OrderRepository
	outbox sharedDomain.OutboxRepository
	close  func()
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case "sqlite":
		db, err := sql.Open("sqlite", sharedSQLite.DSN(cfg.SQLitePath))
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite: %w", err)
		}
		db.SetMaxOpenConns(1) // un único escritor
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping SQLite: %w", err)
		}
		if err := orderSQLite.InitSQLite(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
		}
		log.Info("🗄️ Storage: SQLite", zap.String("path", cfg.SQLitePath))
		return &storage{
			orders: orderSQLite.NewOrderRepoSQLite(db),
			outbox: sharedSQLite.NewOutboxRepoSQLite(db),
			close:  func() { db.Close() },
		}, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open Postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping Postgres: %w", err)
		}
		if err := orderPostgres.InitPostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("🗄️ Storage: Postgres")
		return &storage{
			orders: orderPostgres.NewOrderRepoPostgres(pool),
			outbox: sharedPostgres.NewOutboxRepoPostgres(pool, sharedPostgres.DefaultLease),
			close:  pool.Close,
		}, nil

	case "mongodb":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		disconnect := func() { _ = client.Disconnect(context.Background()) }

		repo, err := orderMongo.NewOrderRepoMongoDB(ctx, client, cfg.MongoDatabase)
		if err != nil {
			disconnect()
			return nil, err
		}
		if err := repo.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, fmt.Errorf("failed to create MongoDB indexes: %w", err)
		}
		log.Info("🗄️ Storage: MongoDB", zap.String("database", cfg.MongoDatabase))
		return &storage{
			orders: repo,
			outbox: sharedMongo.NewOutboxRepoMongoDB(client, cfg.MongoDatabase),
			close:  disconnect,
		}, nil
	}

	return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
}
