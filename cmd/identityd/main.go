package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caasmo/identity"
	"github.com/caasmo/identity/core"
	"github.com/caasmo/identity/db/zombiezen"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to TOML config file (defaults apply when empty)")
	dbPath := flag.String("db", "identity.db", "path to SQLite database file")
	verbose := flag.Bool("v", false, "log with the text handler instead of JSON")
	flag.Parse()

	if err := run(*configPath, *dbPath, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, dbPath string, verbose bool) error {
	database, err := zombiezen.New(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	defer database.Close()

	loggerOpt := identity.WithPhusLogger(nil)
	if verbose {
		loggerOpt = identity.WithTextLogger(nil)
	}

	app, scheduler, err := identity.New(configPath,
		core.WithDbApp(database),
		identity.WithCacheRistretto("small"),
		loggerOpt,
	)
	if err != nil {
		return err
	}

	scheduler.Start()
	app.Logger().Info("identityd started", "db", dbPath)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	app.Logger().Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return scheduler.Stop(ctx)
}
