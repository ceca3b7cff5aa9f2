package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-core/pkg/config"
	"github.com/angelmondragon/storefront-core/pkg/db"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/migrate"
)

type dbCommand func(ctx context.Context, runner *migrate.Runner) ([]migrate.Step, error)

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory; the embedded set is used when it does not exist")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate only touch files.
	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	commands := map[string]dbCommand{
		"up": func(ctx context.Context, runner *migrate.Runner) ([]migrate.Step, error) {
			return runner.Up(ctx)
		},
		"down": func(ctx context.Context, runner *migrate.Runner) ([]migrate.Step, error) {
			return runner.Down(ctx)
		},
		"status": func(ctx context.Context, runner *migrate.Runner) ([]migrate.Step, error) {
			states, err := runner.Status(ctx)
			for _, st := range states {
				applied := "pending"
				if st.Applied {
					applied = st.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%-16d %-26s %s\n", st.Version, applied, st.Path)
			}
			return nil, err
		},
		"version": func(ctx context.Context, runner *migrate.Runner) ([]migrate.Step, error) {
			target, err := migrate.ParseVersion(*version)
			if err != nil {
				return nil, err
			}
			return runner.To(ctx, target)
		},
	}
	run, ok := commands[*cmd]
	if !ok {
		fail("unknown -cmd value: %s", *cmd)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd, "dir": *dir})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to unwrap sql database", err)
		os.Exit(1)
	}

	runner, err := migrate.NewRunner(sqlDB, *dir)
	if err != nil {
		logg.Error(ctx, "failed to prepare migrations", err)
		os.Exit(1)
	}
	steps, err := run(ctx, runner)
	for _, step := range steps {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":   step.Version,
			"direction": step.Direction,
			"took_ms":   step.Took.Milliseconds(),
		}), step.Path)
	}
	if err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(logg.WithField(ctx, "steps", len(steps)), "migration finished")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
