package db

import (
	"fmt"
	"io"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand: up, down, status or
// force <version>. Output goes to w.
func RunMigrateCommand(w io.Writer, args []string, dbPath string) error {
	if len(args) < 1 || args[0] == "help" {
		PrintMigrateHelp(w)
		if len(args) < 1 {
			return fmt.Errorf("missing migrate action")
		}
		return nil
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
	case "status":
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: watercolumn migrate force <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number %q: %w", args[1], err)
		}
		if err := database.MigrateForce(version); err != nil {
			return err
		}
	default:
		PrintMigrateHelp(w)
		return fmt.Errorf("unknown migrate action %q", action)
	}

	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigrationVersion()
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	fmt.Fprintf(w, "Current version: %d\nLatest available: %d\nDirty: %v\n", version, latest, dirty)
	if dirty {
		fmt.Fprintln(w, "A migration failed mid-execution. Inspect the database, then run: watercolumn migrate force <version>")
	}
	return nil
}

// PrintMigrateHelp describes the migrate subcommand.
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: watercolumn migrate <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  up               apply all pending migrations")
	fmt.Fprintln(w, "  down             roll back the most recent migration")
	fmt.Fprintln(w, "  status           show the current schema version")
	fmt.Fprintln(w, "  force <version>  set the version without migrating (recovery only)")
}
