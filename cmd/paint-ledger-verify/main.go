// paint-ledger-verify replays every paint's movement journal and compares the result with the stored stock.
// Exits 1 when any paint disagrees with its journal.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/paint-ledger-verify [-all]
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
	all := flag.Bool("all", false, "print consistent paints too")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	replays, err := models.VerifyPaintLedger(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to replay paint ledger: %v\n", err)
		os.Exit(1)
	}

	mismatches := 0
	for _, r := range replays {
		if r.Consistent && !*all {
			continue
		}
		state := "OK"
		if !r.Consistent {
			state = "MISMATCH"
			mismatches++
		}
		fmt.Printf("%-8s %-20s initial=%s movements=%d replayed=%s stored=%s\n",
			state, r.PaintName, r.InitialStockKg.String(), r.MovementCount, r.ReplayedKg.String(), r.StockKg.String())
	}
	fmt.Printf("paints checked: %d, mismatches: %d\n", len(replays), mismatches)
	if mismatches > 0 {
		os.Exit(1)
	}
}
