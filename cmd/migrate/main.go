// Command migrate applies or rolls back the SQL schema under migrations/
// against DATABASE_URL, via internal/database.Migrator.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/ignite/gatewayd/internal/database"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [-dir=migrations] <up|down|version> [steps]")
	}
	dir := flag.String("dir", "migrations", "path to the migrations directory")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}

	mg, err := database.NewMigrator(db, "file://"+*dir)
	if err != nil {
		log.Fatalf("build migrator: %v", err)
	}

	switch args[0] {
	case "up":
		if err := mg.Up(); err != nil {
			log.Fatalf("migrate up: %v", err)
		}
		log.Println("migrations applied")
	case "down":
		steps := 1
		if len(args) > 1 {
			if _, err := fmt.Sscanf(args[1], "%d", &steps); err != nil {
				log.Fatalf("invalid steps %q: %v", args[1], err)
			}
		}
		if err := mg.Down(steps); err != nil {
			log.Fatalf("migrate down: %v", err)
		}
		log.Printf("rolled back %d migration(s)\n", steps)
	case "version":
		version, dirty, err := mg.Version()
		if err != nil {
			log.Fatalf("read version: %v", err)
		}
		log.Printf("version=%d dirty=%v\n", version, dirty)
	default:
		flag.Usage()
		os.Exit(2)
	}
}
