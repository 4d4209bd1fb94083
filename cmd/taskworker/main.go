// Command taskworker accepts orders over HTTP and NATS and processes them in the background.
package main

import (
	"embed"
	"log/slog"

	"github.com/zircuit-labs/zkr-taskworker/config"
	"github.com/zircuit-labs/zkr-taskworker/runner"
)

//go:embed data
var settings embed.FS

func main() {
	runner.Run("taskworker", settings, run)
}

func run(cfg *config.Configuration, r runner.Runner, logger *slog.Logger) error {
	a, err := newApp(r.Context(), cfg, logger)
	if err != nil {
		return err
	}
	r.Cleanup(a.close)
	r.Run(a.services(r)...)
	return nil
}
