// Command migrate applies pending postgres schema migrations.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/paynet/ebics-gateway/internal/storage/postgres"
)

func main() {
	var direction string
	flag.StringVar(&direction, "direction", "up", "migration direction: up")
	flag.Parse()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN environment variable is required")
	}

	if direction != "up" {
		log.Fatalf("unsupported migration direction: %s", direction)
	}

	if err := postgres.RunMigrations(dsn); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	fmt.Println("migrations applied")
}
