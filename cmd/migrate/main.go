package main

import (
	"flag"
	"fmt"
	"log"

	"wagate/internal/platform/config"
	"wagate/internal/platform/database"
)

func main() {
	target := flag.String("target", "global", "Migration target: global or tenant")
	direction := flag.String("direction", "up", "Migration direction: up or down")
	orgID := flag.String("org", "", "Organization ID (required for tenant migrations)")
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	switch *target {
	case "global":
		if err := run(cfg.Database.Global.Path, "migrations/global", *direction); err != nil {
			log.Fatal(err)
		}
	case "tenant":
		if *orgID == "" {
			log.Fatal("--org flag required for tenant migrations")
		}

		// The tenant DB path lives in the global organizations table.
		globalDB, err := database.NewGlobalDB(cfg.Database.Global)
		if err != nil {
			log.Fatalf("Failed to connect to global DB: %v", err)
		}

		var dbFilePath string
		err = globalDB.QueryRow("SELECT db_file_path FROM organizations WHERE id = ?", *orgID).Scan(&dbFilePath)
		globalDB.Close()
		if err != nil {
			log.Fatalf("Failed to get organization DB path: %v", err)
		}

		if err := run(dbFilePath, "migrations/tenant", *direction); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatal("Invalid target: must be 'global' or 'tenant'")
	}

	fmt.Println("Migration completed successfully")
}

func run(dbPath, sourcePath, direction string) error {
	switch direction {
	case "up":
		return database.MigrateUp(dbPath, sourcePath)
	case "down":
		return database.MigrateDown(dbPath, sourcePath)
	default:
		return fmt.Errorf("invalid direction %q: must be 'up' or 'down'", direction)
	}
}
