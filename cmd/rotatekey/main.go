// rotatekey re-encrypts every protected field in the primary database
// from one key to the next. Run it while writers are stopped; it is an
// administrative batch, not an online migration.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"caseguard.org/internal/config"
	"caseguard.org/internal/obs"
	"caseguard.org/internal/vault"
)

func main() {
	log.SetFlags(0)
	var (
		dsn     = flag.String("dsn", os.Getenv(config.EnvPrimaryDSN), "PostgreSQL DSN of the primary database")
		oldKey  = flag.String("old-key", "", "current field key, base64")
		newKey  = flag.String("new-key", "", "replacement field key, base64")
		dryRun  = flag.Bool("dry-run", false, "decrypt and count without writing")
		timeout = flag.Duration("timeout", 30*time.Minute, "overall run deadline")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatalf("missing DSN: provide via -dsn or %s", config.EnvPrimaryDSN)
	}
	if *oldKey == "" || *newKey == "" {
		log.Fatal("both -old-key and -new-key are required")
	}

	logger, err := obs.NewLogger("development")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report, err := vault.Rotate(ctx, vault.NewPGRotationStore(db), *oldKey, *newKey, *dryRun, logger)
	if err != nil {
		log.Fatalf("rotate: %v", err)
	}

	mode := "rotated"
	if report.DryRun {
		mode = "would rotate"
	}
	fmt.Printf("%s %d fields, %d empty, %d skipped\n", mode, report.Rotated, report.Empty, report.Skipped())
	for _, f := range report.Failures {
		fmt.Printf("  skipped %s.%s row %s: %v\n", f.Field.Table, f.Field.Column, f.Field.RowID, f.Err)
	}
}
