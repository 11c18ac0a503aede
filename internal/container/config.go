package container

import (
	"github.com/garyjia/expense-desk/internal/application/service"
	"github.com/garyjia/expense-desk/internal/config"
	"github.com/garyjia/expense-desk/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-desk/internal/infrastructure/persistence/cache"
	"github.com/garyjia/expense-desk/internal/infrastructure/persistence/gormstore"
	"github.com/garyjia/expense-desk/internal/infrastructure/persistence/mongostore"
	"github.com/garyjia/expense-desk/internal/infrastructure/persistence/postgres"
	"github.com/garyjia/expense-desk/internal/infrastructure/storage"
	"github.com/garyjia/expense-desk/pkg/database"
)

// The functions below translate the file/env configuration into the settings
// each infrastructure package expects.

func sqliteConfig(c *config.Config) database.Config {
	return database.Config{
		Path:            c.SQLite.Path,
		MaxOpenConns:    c.SQLite.MaxOpenConns,
		MaxIdleConns:    c.SQLite.MaxIdleConns,
		ConnMaxLifetime: c.SQLite.ConnMaxLifetime,
	}
}

func postgresConfig(c *config.Config) postgres.Config {
	return postgres.Config{
		URL:         c.Postgres.URL,
		MaxConns:    c.Postgres.MaxConns,
		AutoMigrate: c.Postgres.AutoMigrate,
	}
}

func gormConfig(c *config.Config) gormstore.Config {
	return gormstore.Config{
		DSN:          c.Postgres.URL,
		MaxOpenConns: int(c.Postgres.MaxConns),
		AutoMigrate:  c.Postgres.AutoMigrate,
	}
}

func mongoConfig(c *config.Config) mongostore.Config {
	return mongostore.Config{
		URI:            c.Mongo.URI,
		Database:       c.Mongo.Database,
		Collection:     c.Mongo.Collection,
		ConnectTimeout: c.Mongo.ConnectTimeout,
	}
}

func cacheConfig(c *config.Config) cache.Config {
	return cache.Config{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TTL:      c.Redis.TTL,
	}
}

func minioConfig(c *config.Config) storage.MinioConfig {
	return storage.MinioConfig{
		Endpoint:  c.Receipts.Minio.Endpoint,
		AccessKey: c.Receipts.Minio.AccessKey,
		SecretKey: c.Receipts.Minio.SecretKey,
		Bucket:    c.Receipts.Minio.Bucket,
		Region:    c.Receipts.Minio.Region,
	}
}

func larkConfig(c *config.Config) lark.Config {
	return lark.Config{
		AppID:     c.Lark.AppID,
		AppSecret: c.Lark.AppSecret,
		ChatID:    c.Lark.ChatID,
	}
}

func requiredProfile(c *config.Config) service.RequiredProfile {
	return service.RequiredProfile(c.Expenses.RequiredProfile)
}
