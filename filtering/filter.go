// Package filtering implements the flare-filtering stage: from a raw
// event list to a clean event file, a GTI table and a binned sky image.
package filtering

import (
	"context"
	"fmt"
	"os"
	"time"

	"epicflow/config"
	"epicflow/internal/model"
	"epicflow/internal/sas"
	"epicflow/logger"
)

const (
	// Flare-rate curves are binned at 100 s.
	rateBinSeconds = 100
	// Sky images are binned on an 80x80 pixel grid.
	imageBinSize = 80
)

// Params configures one filtering run.
type Params struct {
	Observation model.Observation
	Instrument  config.InstrumentSpec

	// Rate is the flare-rate threshold in counts/s. Zero applies the
	// instrument's default threshold; negative values are rejected.
	// There is no interactive fallback.
	Rate float64
}

// Stage drives the linear filtering state machine. All science is done by
// the external tools; the stage sequences them and owns the file layout.
type Stage struct {
	runner sas.Runner
	log    *logger.Log
}

func NewStage(runner sas.Runner) *Stage {
	return &Stage{runner: runner, log: logger.GetLogger()}
}

// Run produces the clean event file, GTI table and sky image for one
// (observation, instrument) pair. When all three outputs already exist
// the run is a no-op and no external tool is invoked.
func (s *Stage) Run(ctx context.Context, p Params) error {
	obs, inst := p.Observation, p.Instrument
	log := s.log.WithComponent("filtering").WithObservation(obs.ID, string(inst.Name))

	rate := p.Rate
	if rate == 0 {
		rate = inst.DefaultRate
	}
	if rate <= 0 {
		return fmt.Errorf("flare-rate threshold must be positive, got %g", rate)
	}

	raw := obs.RawEventFile(inst.Name)
	if !fileExists(raw) {
		return fmt.Errorf("raw event file %s missing; acquisition has not run", raw)
	}

	clean := obs.CleanEventFile(inst.Name)
	gti := obs.GTIFile(inst.Name)
	image := obs.ImageFile(inst.Name)

	if fileExists(clean) && fileExists(gti) && fileExists(image) {
		log.Info("filtered products already exist, skipping")
		return nil
	}

	log.WithFields(logger.Fields{"rate": rate}).Info("starting filtering")
	start := time.Now()

	if !fileExists(obs.CalibrationIndex()) {
		if _, err := s.runner.Run(ctx, "cifbuild",
			"calindexset="+obs.CalibrationIndex(),
			"withccfpath=no",
		); err != nil {
			return fmt.Errorf("build calibration index: %w", err)
		}
	}

	rateFile := obs.RateFile(inst.Name)
	if !fileExists(rateFile) {
		if _, err := s.runner.Run(ctx, "evselect",
			"table="+raw,
			"withrateset=yes",
			"rateset="+rateFile,
			"maketimecolumn=yes",
			"makeratecolumn=yes",
			fmt.Sprintf("timebinsize=%d", rateBinSeconds),
			"expression="+inst.FlareExpr(),
		); err != nil {
			return fmt.Errorf("build flare-rate curve: %w", err)
		}
	}

	if !fileExists(gti) {
		if _, err := s.runner.Run(ctx, "tabgtigen",
			"table="+rateFile,
			fmt.Sprintf("expression=RATE<=%g", rate),
			"gtiset="+gti,
		); err != nil {
			return fmt.Errorf("derive GTI table: %w", err)
		}
	}

	if !fileExists(clean) {
		if _, err := s.runner.Run(ctx, "evselect",
			"table="+raw,
			"withfilteredset=yes",
			"filteredset="+clean,
			"destruct=yes",
			"keepfilteroutput=yes",
			"expression="+inst.CleanExpr(gti),
		); err != nil {
			return fmt.Errorf("build clean event file: %w", err)
		}
	}

	if !fileExists(image) {
		if _, err := s.runner.Run(ctx, "evselect",
			"table="+clean,
			"withimageset=yes",
			"imageset="+image,
			"xcolumn=X",
			"ycolumn=Y",
			"imagebinning=binSize",
			fmt.Sprintf("ximagebinsize=%d", imageBinSize),
			fmt.Sprintf("yimagebinsize=%d", imageBinSize),
		); err != nil {
			return fmt.Errorf("build sky image: %w", err)
		}
	}

	if err := s.appendThreshold(obs, inst, rate); err != nil {
		return err
	}

	logger.LogPerformanceEntry(log, "filtering", "filter_observation", time.Since(start), nil)
	logger.RecordStageUnit("filtering", 0)
	s.log.LogMetric("filtering", "observations_filtered", 1, "counter", logger.Fields{
		"instrument": string(inst.Name),
	})
	log.Info("filtering complete")
	return nil
}

// appendThreshold records the resolved flare threshold in the
// per-instrument processing log.
func (s *Stage) appendThreshold(obs model.Observation, inst config.InstrumentSpec, rate float64) error {
	f, err := os.OpenFile(obs.ProcessingLog(inst.Name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open processing log: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s rate_threshold=%g\n", time.Now().UTC().Format(time.RFC3339), rate)
	if err != nil {
		return fmt.Errorf("append threshold: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
