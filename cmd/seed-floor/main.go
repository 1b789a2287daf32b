// seed-floor creates the default machines and paints of the floor when their tables are empty.
// Existing rows are never touched, so it is safe to rerun.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-floor [-migrate]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/models"
)

func main() {
	migrate := flag.Bool("migrate", false, "run AutoMigrate before seeding")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	if *migrate {
		if err := models.MigrateTable(); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
	}

	machines, err := models.InitMachines(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed machines: %v\n", err)
		os.Exit(1)
	}
	paints, err := models.InitPaints(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed paints: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("machines created: %d\npaints created: %d\n", machines, paints)
}
