// Command migrate-gen generates SQL migration files for the event store.
//
// Usage:
//
//	go run github.com/getpup/pupkernel/cmd/migrate-gen -output migrations -filename init.sql
//
// Generate migrations for different database adapters:
//
//	go run github.com/getpup/pupkernel/cmd/migrate-gen -adapter postgres -output migrations
//	go run github.com/getpup/pupkernel/cmd/migrate-gen -adapter mysql -output migrations
//	go run github.com/getpup/pupkernel/cmd/migrate-gen -adapter sqlite -output migrations
//
// Pass -stdout to print the script instead of writing a file.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/pupkernel/es/migrations"
)

func main() {
	var (
		adapter          = flag.String("adapter", "postgres", "Database adapter: postgres, mysql, or sqlite")
		outputFolder     = flag.String("output", "migrations", "Output folder for migration file")
		outputFilename   = flag.String("filename", "", "Output filename (default: timestamp-based)")
		eventsTable      = flag.String("events-table", "events", "Name of events table")
		checkpointsTable = flag.String("checkpoints-table", "projection_checkpoints", "Name of checkpoints table")
		headsTable       = flag.String("heads-table", "aggregate_heads", "Name of aggregate heads table")
		stdout           = flag.Bool("stdout", false, "Print the migration instead of writing a file")
	)

	flag.Parse()

	dialect, err := migrations.ParseDialect(*adapter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v. Supported adapters are: postgres, mysql, sqlite\n", err)
		os.Exit(1)
	}

	config := migrations.DefaultConfig()
	config.OutputFolder = *outputFolder
	config.EventsTable = *eventsTable
	config.CheckpointsTable = *checkpointsTable
	config.AggregateHeadsTable = *headsTable

	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	if *stdout {
		sql, err := migrations.SQL(dialect, config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(sql)
		return
	}

	if err := migrations.Generate(dialect, &config); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", dialect, config.OutputFolder, config.OutputFilename)
}
