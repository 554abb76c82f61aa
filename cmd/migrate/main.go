package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

const usage = "Usage: go run ./cmd/migrate [up|drop]"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "up":
		if err := createTables(ctx, conn); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("✅ Sign-in audit tables created successfully")

	case "drop":
		if err := dropTables(ctx, conn); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ Sign-in audit tables dropped successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func createTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sign_in_events (
			id UUID PRIMARY KEY,
			user_id UUID,
			flow TEXT NOT NULL,
			succeeded BOOLEAN NOT NULL DEFAULT false,
			reason TEXT,
			path TEXT,
			error_type TEXT,
			request_id TEXT,
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sign_in_events_user_time ON sign_in_events(user_id, occurred_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sign_in_events_failures ON sign_in_events(occurred_at DESC) WHERE NOT succeeded`,
	}

	return runInTx(ctx, conn, queries, "Executed")
}

func dropTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		`DROP TABLE IF EXISTS sign_in_events CASCADE`,
	}

	return runInTx(ctx, conn, queries, "Dropped")
}

func runInTx(ctx context.Context, conn *pgx.Conn, queries []string, verb string) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, query := range queries {
		if _, err := tx.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		fmt.Printf("  %s: %s\n", verb, firstLine(query))
	}

	return tx.Commit(ctx)
}

func firstLine(query string) string {
	for i, c := range query {
		if c == '\n' {
			return query[:i]
		}
	}
	return query
}
