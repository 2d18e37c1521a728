package database

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/gridbase/backend/internal/config"
	"github.com/gridbase/backend/pkg/logging"
)

// tlsConfigName is the name the remote TLS config is registered under.
const tlsConfigName = "tidb"

// TiDBConnection represents a TiDB database connection.
// sql.DB is already safe for concurrent use and pools its own connections,
// so it is not wrapped in a mutex.
type TiDBConnection struct {
	db *sql.DB
}

var (
	instance *TiDBConnection
	once     sync.Once
	initErr  error
	tlsOnce  sync.Once // TLS config is registered only once
)

// GetInstance returns the singleton TiDB connection, opening it on first use.
func GetInstance(cfg config.DBConfig) (*TiDBConnection, error) {
	once.Do(func() {
		instance, initErr = newConnection(cfg)
	})
	return instance, initErr
}

func newConnection(cfg config.DBConfig) (*TiDBConnection, error) {
	// Remote hosts (e.g. TiDB Cloud) require TLS with the ServerName set
	tlsParam := ""
	if !cfg.IsLocal() {
		tlsOnce.Do(func() {
			if err := mysql.RegisterTLSConfig(tlsConfigName, &tls.Config{
				MinVersion: tls.VersionTLS12,
				ServerName: cfg.Host,
			}); err != nil {
				logging.L().Warn("failed to register TLS config", zap.Error(err))
			}
		})
		tlsParam = tlsConfigName
	}

	db, err := sql.Open("mysql", cfg.DSN(tlsParam))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// MaxIdleConns matches MaxOpenConns so connections are not churned under load.
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(50)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(3 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &TiDBConnection{db: db}, nil
}

// NewFromDB wraps an already opened pool, for tests and tools.
func NewFromDB(db *sql.DB) *TiDBConnection {
	return &TiDBConnection{db: db}
}

// DB returns the underlying pool. Repositories take it directly.
func (c *TiDBConnection) DB() *sql.DB {
	return c.db
}

// Ping checks the connection is alive.
func (c *TiDBConnection) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection.
func (c *TiDBConnection) Close() error {
	return c.db.Close()
}
