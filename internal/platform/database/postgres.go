package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"codenvibe/internal/platform/config"
	"codenvibe/internal/platform/logger"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"go.uber.org/zap"
)

var DB *sql.DB

//go:embed schema.sql
var schema string

func Connect() error {
	var err error
	DB, err = sql.Open("pgx", config.AppConfig.DBConnStr)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = DB.PingContext(ctx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	logger.Info(ctx, "connected to PostgreSQL", zap.String("host", config.AppConfig.DBHost), zap.String("db", config.AppConfig.DBName))
	return nil
}

// Migrate applies the idempotent schema: tables and indexes use IF NOT
// EXISTS, the append-only function is CREATE OR REPLACE, and its trigger is
// dropped with IF EXISTS before being recreated. It runs on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func Close() {
	if DB != nil {
		DB.Close()
		logger.Info(context.Background(), "database connection closed")
	}
}
