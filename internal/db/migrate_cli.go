package db

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching
func RunMigrateCommand(args []string, dbPath, migrationsDir string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}

	action := args[0]

	database, err := NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	switch action {
	case "up":
		log.Printf("Running migrations...")
		if err := database.MigrateUp(migrationsDir); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("All migrations applied successfully")
		version, dirty, _ := database.MigrateVersion(migrationsDir)
		log.Printf("Current version: %d (dirty: %v)", version, dirty)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := database.MigrateDown(migrationsDir); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		version, dirty, _ := database.MigrateVersion(migrationsDir)
		log.Printf("Current version: %d (dirty: %v)", version, dirty)

	case "status":
		version, dirty, err := database.MigrateVersion(migrationsDir)
		if err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}
		latest, err := LatestMigrationVersion(migrationsDir)
		if err != nil {
			log.Fatalf("Failed to get latest migration version: %v", err)
		}
		fmt.Printf("Current version: %d\n", version)
		fmt.Printf("Latest version:  %d\n", latest)
		fmt.Printf("Dirty: %v\n", dirty)

	case "force":
		if len(args) < 2 {
			log.Fatal("Usage: focusd migrate force <version_number>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("Invalid version number %q: %v", args[1], err)
		}
		if err := database.MigrateForce(migrationsDir, version); err != nil {
			log.Fatalf("Force migration failed: %v", err)
		}
		log.Printf("Forced migration version to %d", version)

	case "to":
		if len(args) < 2 {
			log.Fatal("Usage: focusd migrate to <version_number>")
		}
		version, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			log.Fatalf("Invalid version number %q: %v", args[1], err)
		}
		if err := database.MigrateTo(migrationsDir, uint(version)); err != nil {
			log.Fatalf("Migration to version %d failed: %v", version, err)
		}
		log.Printf("Migrated to version %d", version)

	case "help":
		PrintMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp() {
	fmt.Println("Usage: focusd migrate <action> [args]")
	fmt.Println()
	fmt.Println("Actions:")
	fmt.Println("  up               Apply all pending migrations")
	fmt.Println("  down             Roll back the most recent migration")
	fmt.Println("  status           Show current and latest migration versions")
	fmt.Println("  force <version>  Force the recorded version (dirty-state recovery)")
	fmt.Println("  to <version>     Migrate up or down to a specific version")
	fmt.Println("  help             Show this help")
}
