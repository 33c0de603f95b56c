package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"epicflow/config"
	"epicflow/filtering"
	"epicflow/internal/model"
	"epicflow/internal/sas"
	"epicflow/logger"
)

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	observation := flag.String("observation", "", "Observation id to filter")
	rate := flag.Float64("rate", 0, "Flare-rate threshold in counts/s (0 applies the instrument's default)")
	instrument := flag.String("instrument", "PN", "Instrument to filter (PN, MOS1, MOS2)")
	folder := flag.String("folder", "", "Data folder holding observation directories")
	flag.String("scripts-dir", "", "Directory of helper scripts (unused by this stage)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if *observation == "" || *folder == "" {
		log.Error("--observation and --folder are required")
		os.Exit(2)
	}
	spec, err := config.LookupInstrument(*instrument)
	if err != nil {
		log.WithError(err).Error("Invalid instrument")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	obs := model.NewObservation(*folder, *observation)
	runner := sas.NewRunner(sas.EnvFor(cfg.SAS, obs.Dir, obs.CalibrationIndex()), obs.Dir, cfg.SAS.ToolTimeout)

	stage := filtering.NewStage(runner)
	if err := stage.Run(ctx, filtering.Params{
		Observation: obs,
		Instrument:  spec,
		Rate:        *rate,
	}); err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"observation": *observation,
			"instrument":  spec.Name,
		}).Error("filtering failed")
		os.Exit(1)
	}
}
