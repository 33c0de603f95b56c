package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"epicflow/archive"
	"epicflow/config"
	"epicflow/filtering"
	"epicflow/internal/channel"
	"epicflow/internal/model"
	"epicflow/internal/region"
	"epicflow/internal/sas"
	"epicflow/internal/store"
	"epicflow/lightcurve"
	"epicflow/logger"
	"epicflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	observationsPath := flag.String("observations", "", "Path to observation batch file (overrides configuration)")
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

	log.WithFields(logger.Fields{
		"service": cfg.Epicflow.Name,
		"version": cfg.Epicflow.Version,
	}).Info("starting epicflow")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.InitCloudWatch(cfg.Storage.S3.Region, cfg.Logging.DashboardName)
		logger.StartReport(ctx, log, 30*time.Second)
	}

	batchPath := cfg.Driver.ObservationsFile
	if *observationsPath != "" {
		batchPath = *observationsPath
	}
	batch, err := config.LoadObservations(batchPath)
	if err != nil {
		log.WithError(err).Error("Failed to load observation batch")
		os.Exit(1)
	}

	var index *store.Index
	if cfg.Driver.ResultsDB != "" {
		index, err = store.Open(cfg.Driver.ResultsDB)
		if err != nil {
			log.WithError(err).Error("Failed to open results index")
			os.Exit(1)
		}
		defer index.Close()
	}

	var archiver *writer.ProductArchiver
	if cfg.Storage.S3.Enabled {
		archiver, err = writer.NewProductArchiver(ctx, cfg.Storage.S3)
		if err != nil {
			log.WithError(err).Error("Failed to create product archiver")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; products stay local")
	}

	channels := channel.NewManager(cfg.Channels.ResultsBuffer)
	resultsWriter := writer.NewResultsWriter(cfg.Driver.ResultsLog, channels.ResultsReader(), index)
	if err := resultsWriter.Start(ctx); err != nil {
		log.WithError(err).Error("Failed to start results writer")
		os.Exit(1)
	}

	acquisition := archive.NewStage(cfg.Archive)

	var wg sync.WaitGroup
	sem := make(chan struct{}, cfg.Driver.MaxWorkers)

	for _, entry := range batch.Observations {
		wg.Add(1)
		go func(entry config.ObservationEntry) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			runObservation(ctx, cfg, entry, acquisition, channels, archiver)
		}(entry)
	}

	wg.Wait()
	channels.Close()
	resultsWriter.Stop()

	log.WithFields(logger.Fields{
		"observations": len(batch.Observations),
		"results":      resultsWriter.Written(),
	}).Info("epicflow finished")
}

// runObservation drives the full pipeline for one observation. Failures
// are logged and isolated; sibling observations keep running.
func runObservation(ctx context.Context, cfg *config.Config, entry config.ObservationEntry, acquisition *archive.Stage, channels *channel.Manager, archiver *writer.ProductArchiver) {
	log := logger.GetLogger().WithComponent("driver").WithFields(logger.Fields{"observation": entry.ID})

	instruments, err := config.Instruments(entry.Instruments)
	if err != nil {
		log.WithError(err).Error("invalid instrument selection, skipping observation")
		return
	}

	// Threshold resolution order: per-observation override, driver-wide
	// setting, then the instrument's own default inside the stage.
	rate := entry.Rate
	if rate == 0 {
		rate = cfg.Driver.Rate
	}

	obs := model.NewObservation(cfg.Driver.DataDir, entry.ID)
	if err := acquisition.Run(ctx, obs, instruments); err != nil {
		log.WithError(err).Error("acquisition failed, skipping observation")
		return
	}

	runner := sas.NewRunner(sas.EnvFor(cfg.SAS, obs.Dir, obs.CalibrationIndex()), obs.Dir, cfg.SAS.ToolTimeout)
	filterStage := filtering.NewStage(runner)
	extractStage := lightcurve.NewStage(runner)

	detection := model.DetectionParams{
		DetectionLevel: cfg.Driver.DetectionLevel,
		TimeWindow:     cfg.Driver.TimeWindow,
		GoodTimeRatio:  cfg.Driver.GoodTimeRatio,
		BoxSize:        cfg.Driver.BoxSize,
	}

	for _, inst := range instruments {
		if err := filterStage.Run(ctx, filtering.Params{
			Observation: obs,
			Instrument:  inst,
			Rate:        rate,
		}); err != nil {
			log.WithError(err).WithFields(logger.Fields{"instrument": inst.Name}).Error("filtering failed, skipping instrument")
			continue
		}

		candidates, err := region.ListCandidates(obs.DetectionRegions())
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"instrument": inst.Name}).Error("no detection regions, skipping instrument")
			continue
		}

		for _, cand := range candidates {
			if ctx.Err() != nil {
				return
			}
			res, err := extractStage.Run(ctx, lightcurve.Params{
				Observation: obs,
				Instrument:  inst,
				CandidateID: cand.ID,
				Detection:   detection,
				ScriptsDir:  cfg.Driver.ScriptsDir,
			})
			if err != nil {
				log.WithError(err).WithFields(logger.Fields{
					"instrument": inst.Name,
					"candidate":  cand.ID,
				}).Error("extraction failed, skipping candidate")
				continue
			}

			select {
			case channels.ResultsWriter() <- res:
			case <-ctx.Done():
				return
			}

			if archiver != nil {
				dir := obs.LightcurveDir(detection.TimeWindow, inst.Name, cand.ID)
				if err := archiver.ArchiveDir(ctx, dir, obs.ID); err != nil {
					log.WithError(err).Warn("failed to archive products")
				}
			}
		}
	}
}
