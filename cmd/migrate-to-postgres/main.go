// migrate-to-postgres copies quest records from a SQLite store to PostgreSQL.
// Records already present at the same or a newer revision are left alone,
// so the tool can be rerun after an interruption.
//
// Usage:
//
//	go run ./cmd/migrate-to-postgres \
//	    -sqlite data/quests.db \
//	    -pg-host localhost \
//	    -pg-port 5432 \
//	    -pg-user quests \
//	    -pg-password quests \
//	    -pg-database quests
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/config"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/logger"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/store"
)

func main() {
	// Parse command-line flags
	sqlitePath := flag.String("sqlite", "data/quests.db", "Path to SQLite database")
	pgHost := flag.String("pg-host", "localhost", "PostgreSQL host")
	pgPort := flag.Int("pg-port", 5432, "PostgreSQL port")
	pgUser := flag.String("pg-user", "quests", "PostgreSQL user")
	pgPassword := flag.String("pg-password", "quests", "PostgreSQL password")
	pgDatabase := flag.String("pg-database", "quests", "PostgreSQL database name")
	pgSSLMode := flag.String("pg-sslmode", "disable", "PostgreSQL SSL mode")
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	timeout := flag.Duration("timeout", 30*time.Minute, "Abort the migration after this long")
	flag.Parse()

	log.Println("SQLite to PostgreSQL Migration Tool")
	log.Println("====================================")

	log.Printf("Opening SQLite database: %s", *sqlitePath)
	src, err := store.OpenSQLite(*sqlitePath)
	if err != nil {
		log.Fatalf("Failed to open SQLite database: %v", err)
	}
	defer src.Close()

	pg := config.PostgresConfig{
		Host:     *pgHost,
		Port:     *pgPort,
		User:     *pgUser,
		Password: *pgPassword,
		Database: *pgDatabase,
		SSLMode:  *pgSSLMode,
	}
	log.Printf("Opening PostgreSQL database: %s@%s:%d/%s", *pgUser, *pgHost, *pgPort, *pgDatabase)
	dst, err := store.OpenPostgres(pg)
	if err != nil {
		log.Fatalf("Failed to open PostgreSQL database: %v", err)
	}
	defer dst.Close()

	if *dryRun {
		log.Println("DRY RUN MODE - No changes will be made")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	stats, err := store.Copy(ctx, src, dst, *dryRun, logger.Component("migrate"))
	if err != nil {
		log.Fatalf("Migration failed after %d records: %v", stats.Copied, err)
	}

	log.Println("====================================")
	log.Printf("Players:  %d", stats.Players)
	log.Printf("Copied:   %d", stats.Copied)
	log.Printf("Skipped:  %d (already up to date)", stats.Skipped)
	log.Printf("Duration: %s", time.Since(start).Round(time.Millisecond))
}
