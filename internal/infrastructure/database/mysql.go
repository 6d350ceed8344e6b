package database

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config describes a MySQL-compatible server (MySQL or TiDB)
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	TLS             bool
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Connection wraps the pooled *sql.DB.
// sql.DB is already safe for concurrent use; no extra locking is added.
type Connection struct {
	db *sql.DB
}

var tlsOnce sync.Once

// DSN builds the driver connection string for cfg.
func (cfg Config) DSN() string {
	dc := mysql.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dc.DBName = cfg.Database
	dc.ParseTime = true
	// Conditional updates read RowsAffected as matched rows, not changed rows.
	dc.ClientFoundRows = true
	dc.Loc = time.UTC
	dc.Params = map[string]string{"charset": "utf8mb4"}
	if cfg.TLS {
		dc.TLSConfig = "workflow"
	}
	return dc.FormatDSN()
}

// Open connects to the server described by cfg and verifies it with a ping.
func Open(ctx context.Context, cfg Config) (*Connection, error) {
	if cfg.TLS {
		// Registration is process-wide; repeated Opens (tests, reconnects) must not re-register.
		tlsOnce.Do(func() {
			if err := mysql.RegisterTLSConfig("workflow", &tls.Config{
				MinVersion: tls.VersionTLS12,
				ServerName: cfg.Host,
			}); err != nil {
				log.Printf("Failed to register TLS config: %v\n", err)
			}
		})
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 50
	}
	// Idle must match open or connections churn under load and exhaust ports.
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	} else {
		db.SetConnMaxIdleTime(3 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("🗄️ Connected to %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return &Connection{db: db}, nil
}

// Wrap adopts an existing pool, e.g. one opened by sqlmock.
func Wrap(db *sql.DB) *Connection {
	return &Connection{db: db}
}

// DB returns the underlying pool
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Close closes the database connection
func (c *Connection) Close() error {
	return c.db.Close()
}
