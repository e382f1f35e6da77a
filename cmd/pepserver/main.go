package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/splitkey-pep/cmd/flags"
	"github.com/ruteri/splitkey-pep/httpserver"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/metrics"
)

func main() {
	app := &cli.App{
		Name:  "pepserver",
		Usage: "Serve one role of the PEP constellation",
		Commands: []*cli.Command{
			accessManagerCommand,
			transcryptorCommand,
			keyServerCommand,
			storageFacilityCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func roleFlags(traits interfaces.ServerTraits, flagSets ...[]cli.Flag) []cli.Flag {
	result := append([]cli.Flag{flags.LogServiceFlagFn(traits.MetricsID())}, flags.CommonFlags...)
	for _, set := range flagSets {
		result = append(result, set...)
	}
	return result
}

// serve runs handlers until SIGINT or SIGTERM.
func serve(cCtx *cli.Context, logger *slog.Logger, m *metrics.Metrics, ready func() error, handlers ...httpserver.RouteRegistrar) error {
	cfg := flags.ConfigureServer(cCtx, logger, m)
	cfg.ReadyCheck = ready
	srv, err := httpserver.New(cfg, handlers...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	srv.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	srv.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}
