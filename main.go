package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/tubelens/tubelens/internal"
	"github.com/tubelens/tubelens/pkg/logger"
)

var log = logger.Get("Main")

// main loads the user configuration (an optional YAML file overlaid with
// environment variables), constructs the server, and runs it until
// interrupted.
func main() {
	if err := godotenv.Load(); err == nil {
		log.Emit(logger.DEBUG, "Loaded environment overrides from .env\n")
	}

	configPath := flag.String("config", "", "path to YAML config file (optional, env vars used otherwise)")
	flag.Parse()

	config := internal.TubelensConfig{}
	if *configPath != "" {
		if err := config.LoadFromFile(*configPath); err != nil {
			log.Emit(logger.FATAL, "Failed to load config from %s: %v\n", *configPath, err)
			os.Exit(1)
		}
	} else if err := config.LoadFromEnv(); err != nil {
		log.Emit(logger.FATAL, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	exitChannel := make(chan os.Signal, 1)
	signal.Notify(exitChannel, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-exitChannel
		log.Emit(logger.INFO, "Interrupt received, shutting down...\n")
		cancel()
	}()

	if err := internal.New(config).Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Server stopped with error: %v\n", err)
		os.Exit(1)
	}
}
