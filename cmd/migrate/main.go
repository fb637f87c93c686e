package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ignite/mautic-sync/internal/config"
	"github.com/ignite/mautic-sync/internal/db"
)

const usage = `usage: migrate [up|down|version]

Applies the embedded schema migrations to DATABASE_URL (or database.url in
the file named by CONFIG_PATH). Defaults to "up".`

func main() {
	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	cfg, err := config.LoadFromEnv(config.DefaultPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	dsn := cfg.Database.URL

	switch direction {
	case "up", "down":
		if err := db.Migrate(dsn, direction); err != nil {
			log.Fatalf("migrate %s: %v", direction, err)
		}
		log.Printf("Migrations %s complete", direction)
	case "version":
		v, dirty, err := db.Version(dsn)
		if err != nil {
			log.Fatalf("version: %v", err)
		}
		fmt.Printf("version %d (dirty: %v)\n", v, dirty)
	case "-h", "--help", "help":
		fmt.Println(usage)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}
