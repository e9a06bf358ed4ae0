package main

import (
	"fmt"
	"os"

	"codeberg.org/mutker/thermoctl/internal/app"
	"codeberg.org/mutker/thermoctl/internal/config"
	"codeberg.org/mutker/thermoctl/internal/errors"
	"codeberg.org/mutker/thermoctl/internal/exitcode"
	"codeberg.org/mutker/thermoctl/internal/logger"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run().Int())
}

func run() exitcode.Code {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitcode.Success
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return exitcode.Config
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return exitcode.Config
	}
	logger.Debug().Msg("Config loaded")

	return app.New(cfg).Run()
}
