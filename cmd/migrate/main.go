package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/seanankenbruck/analytics-sql-ai/internal/config"
	"github.com/seanankenbruck/analytics-sql-ai/internal/database"
)

func main() {
	down := flag.Bool("down", false, "roll back every migration")
	flag.Parse()

	cfg, err := config.NewDefaultLoader().Load(context.Background())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	dsn := cfg.History.DSN
	if dsn == "" {
		log.Fatal("HISTORY_DSN is required")
	}

	fmt.Println("=== Running Query History Migrations ===")
	fmt.Printf("Connecting to database: %s\n", redact(dsn))

	if name := databaseName(dsn); name != "" {
		if err := database.CheckDatabase(dsn, name); err != nil {
			log.Fatalf("Database connectivity failed: %v", err)
		}
		fmt.Println("✓ Database connectivity verified")
	}

	if err := database.RunMigrations(database.MigrationConfig{DatabaseURL: dsn, Down: *down}); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if *down {
		fmt.Println("✓ Database migrations rolled back")
		return
	}
	fmt.Println("✓ Database migrations completed successfully!")
}

// databaseName extracts the database from a postgres:// URL
func databaseName(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// redact hides the password in a postgres:// URL
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
