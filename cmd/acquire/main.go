package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"epicflow/archive"
	"epicflow/config"
	"epicflow/internal/model"
	"epicflow/logger"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] <folder> <observation_id> [instrument...]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 2 {
		usage()
		os.Exit(2)
	}
	folder, obsID := flag.Arg(0), flag.Arg(1)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	instruments, err := config.Instruments(flag.Args()[2:])
	if err != nil {
		log.WithError(err).Error("Invalid instrument selection")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	obs := model.NewObservation(folder, obsID)
	stage := archive.NewStage(cfg.Archive)
	if err := stage.Run(ctx, obs, instruments); err != nil {
		log.WithError(err).WithFields(logger.Fields{"observation": obsID}).Error("acquisition failed")
		os.Exit(1)
	}
}
