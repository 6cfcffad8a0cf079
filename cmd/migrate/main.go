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
	"caseguard.org/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		target = flag.String("target", "primary", "database to migrate: primary or audit")
		dsn    = flag.String("dsn", "", "PostgreSQL DSN, overrides the environment")
		dir    = flag.String("migrations", "", "path to SQL migrations, defaults per target")
	)
	flag.Parse()

	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [-target primary|audit] [up|down|status]")
	}

	envVar := config.EnvPrimaryDSN
	defaultDir := "migrations/primary"
	switch *target {
	case "primary":
	case "audit":
		envVar = config.EnvAuditDSN
		defaultDir = "migrations/audit"
	default:
		log.Fatalf("unknown target %q", *target)
	}
	if *dsn == "" {
		*dsn = os.Getenv(envVar)
	}
	if *dsn == "" {
		log.Fatalf("missing DSN: provide via -dsn or %s", envVar)
	}
	if *dir == "" {
		*dir = defaultDir
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *dir)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s %s: %v", *target, flag.Arg(0), err)
	}
}
