package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/rxtech-lab/argo-engine/internal/config"
	"github.com/rxtech-lab/argo-engine/internal/engine"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/strategies"
)

// runAction loads the configuration, assembles the engine, and runs it until
// the context is cancelled by a signal or a fatal stream error.
func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logInstance, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	registry := engine.NewRegistry()
	if err := strategies.Register(registry); err != nil {
		return fmt.Errorf("failed to register strategies: %w", err)
	}

	e, err := engine.New(cfg, registry, logInstance)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return e.Run(runCtx)
}

// schemaAction prints the JSON schema of the engine configuration so config
// files can be validated in editors and CI.
func schemaAction(ctx context.Context, cmd *cli.Command) error {
	schema, err := config.GenerateSchema()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	fmt.Println(schema)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "engine",
		Usage: "Run the trading engine",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the engine with the given configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the engine configuration file",
						Required: true,
					},
				},
				Action: runAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the configuration file",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
