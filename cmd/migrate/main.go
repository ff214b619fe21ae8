// Command migrate applies or rolls back the liquidation_attempts/laf_attempts
// schema (spec.md §6), following the teacher's db/migrate.go flag shape.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/dimajoyti/aave-sentinel/internal/config"
)

func main() {
	upFlag := flag.Bool("up", false, "Migrate up")
	downFlag := flag.Bool("down", false, "Migrate down")
	versionFlag := flag.Int("version", 0, "Migrate to a specific version")
	configFlag := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	m, err := migrate.New("file://db/migrations", dbURL)
	if err != nil {
		log.Fatalf("failed to create migrate instance: %v", err)
	}
	defer m.Close()

	switch {
	case *upFlag:
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("failed to migrate up: %v", err)
		}
		log.Println("migration up completed")
	case *downFlag:
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("failed to migrate down: %v", err)
		}
		log.Println("migration down completed")
	case *versionFlag > 0:
		if err := m.Migrate(uint(*versionFlag)); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("failed to migrate to version %d: %v", *versionFlag, err)
		}
		log.Printf("migration to version %d completed", *versionFlag)
	default:
		log.Fatal("no migration action specified; use -up, -down, or -version")
	}
}
