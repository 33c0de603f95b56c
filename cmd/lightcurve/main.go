package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"epicflow/config"
	"epicflow/internal/channel"
	"epicflow/internal/model"
	"epicflow/internal/region"
	"epicflow/internal/sas"
	"epicflow/lightcurve"
	"epicflow/logger"
	"epicflow/writer"
)

func usage() {
	fmt.Fprintf(os.Stderr,
		"usage: %s [flags] <obs_path> <scripts_path> <instrument> <candidate_id> "+
			"<detection_level> <time_window> <good_time_ratio> <box_size> <output_log_path>\n",
		os.Args[0])
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

	if flag.NArg() != 9 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	obsPath := filepath.Clean(flag.Arg(0))
	scriptsPath := flag.Arg(1)
	spec, err := config.LookupInstrument(flag.Arg(2))
	if err != nil {
		log.WithError(err).Error("Invalid instrument")
		os.Exit(1)
	}
	candidateID := flag.Arg(3)

	nums := make([]float64, 4)
	for i, arg := range flag.Args()[4:8] {
		if nums[i], err = strconv.ParseFloat(arg, 64); err != nil {
			log.WithError(err).Error(fmt.Sprintf("Invalid numeric argument %q", arg))
			os.Exit(1)
		}
	}
	outputLog := flag.Arg(8)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	obs := model.NewObservation(filepath.Dir(obsPath), filepath.Base(obsPath))
	runner := sas.NewRunner(sas.EnvFor(cfg.SAS, obs.Dir, obs.CalibrationIndex()), obs.Dir, cfg.SAS.ToolTimeout)

	stage := lightcurve.NewStage(runner)
	res, err := stage.Run(ctx, lightcurve.Params{
		Observation: obs,
		Instrument:  spec,
		CandidateID: candidateID,
		Detection: model.DetectionParams{
			DetectionLevel: nums[0],
			TimeWindow:     nums[1],
			GoodTimeRatio:  nums[2],
			BoxSize:        int(nums[3]),
		},
		ScriptsDir: scriptsPath,
	})
	if err != nil {
		var nf *region.NotFoundError
		if errors.As(err, &nf) {
			log.WithError(err).Error("Candidate not found; nothing recorded")
		} else {
			log.WithError(err).WithFields(logger.Fields{
				"observation": obs.ID,
				"candidate":   candidateID,
			}).Error("lightcurve extraction failed")
		}
		os.Exit(1)
	}

	channels := channel.NewManager(1)
	resultsWriter := writer.NewResultsWriter(outputLog, channels.ResultsReader(), nil)
	if err := resultsWriter.Start(ctx); err != nil {
		log.WithError(err).Error("Failed to start results writer")
		os.Exit(1)
	}
	channels.ResultsWriter() <- res
	channels.Close()
	resultsWriter.Stop()
}
