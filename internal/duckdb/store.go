// Package duckdb stores pipeline results in a DuckDB database: exported gene
// pools, cross-validation runs with their held-out genomes, and predictions.
package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"

	goduckdb "github.com/marcboeker/go-duckdb"
)

// Store manages a DuckDB connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS genes (
		source VARCHAR,
		genome_index BIGINT,
		genome_id VARCHAR,
		position BIGINT,
		annotation VARCHAR,
		category BIGINT,
		strand BIGINT,
		start_pos BIGINT,
		end_pos BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		run_id VARCHAR PRIMARY KEY,
		folds BIGINT,
		succeeded BIGINT,
		failed BIGINT,
		mean_accuracy DOUBLE,
		std_accuracy DOUBLE
	)`,
	`CREATE TABLE IF NOT EXISTS fold_results (
		run_id VARCHAR,
		fold BIGINT,
		status VARCHAR,
		stage VARCHAR,
		error_message VARCHAR,
		train_size BIGINT,
		val_size BIGINT,
		evaluated BIGINT,
		correct BIGINT,
		accuracy DOUBLE,
		epochs BIGINT,
		val_loss DOUBLE,
		PRIMARY KEY (run_id, fold)
	)`,
	`CREATE TABLE IF NOT EXISTS heldout_genomes (
		run_id VARCHAR,
		fold BIGINT,
		ordinal BIGINT,
		genome_id VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS predictions (
		run_id VARCHAR,
		genome_id VARCHAR,
		position BIGINT,
		category BIGINT,
		score DOUBLE,
		accepted BOOLEAN
	)`,
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// appendRows runs fn with an Appender on table and flushes it.
func (s *Store) appendRows(table string, fn func(*goduckdb.Appender) error) error {
	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", table)
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	if err := fn(appender); err != nil {
		return err
	}
	return appender.Flush()
}
