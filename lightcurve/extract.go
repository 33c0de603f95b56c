// Package lightcurve implements the per-candidate extraction stage: from
// a filtered observation and a detected candidate id to a
// background-corrected lightcurve, constancy probabilities, and one
// results-log record.
package lightcurve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"epicflow/config"
	"epicflow/internal/fits"
	"epicflow/internal/model"
	"epicflow/internal/region"
	"epicflow/internal/sas"
	"epicflow/logger"
)

const (
	// Detection radii come back in raw detector pixels; sky pixels are
	// finer by this fixed factor.
	detectionRadiusScale = 64

	// Background surface density assumed by the region optimizer, in
	// counts per square pixel.
	backgroundSurfaceDensity = 1e-4
)

// Per-source output file names inside the lcurve directory.
const (
	sourceFrameLC  = "src_frame.lc"
	bkgFrameLC     = "bkg_frame.lc"
	sourceWindowLC = "src_window.lc"
	bkgWindowLC    = "bkg_window.lc"
	correctedLC    = "corrected.lc"
	statsLogFile   = "lcstats.log"
	regionInfoFile = "regions.txt"

	plotScript = "plot_lightcurve.py"
)

// Params configures one candidate extraction run.
type Params struct {
	Observation model.Observation
	Instrument  config.InstrumentSpec
	CandidateID string

	// Detection carries the parameters the upstream detector ran with;
	// they name the output directory and annotate the result record.
	Detection model.DetectionParams

	// ScriptsDir locates the external plotting script.
	ScriptsDir string
}

// Stage drives the extraction algorithm. External tools do the science;
// the stage sequences them, parses their reports and owns the per-source
// output directory.
type Stage struct {
	runner sas.Runner
	log    *logger.Log

	// frameTime reads the native CCD integration time from an event
	// file; overridable in tests.
	frameTime func(path string) (float64, error)
}

func NewStage(runner sas.Runner) *Stage {
	return &Stage{
		runner:    runner,
		log:       logger.GetLogger(),
		frameTime: fits.FrameTime,
	}
}

// Run extracts, corrects and characterizes the lightcurve of one
// candidate. On success it returns the record to append to the results
// log; a missing candidate id surfaces as *region.NotFoundError before
// any external tool is invoked.
func (s *Stage) Run(ctx context.Context, p Params) (model.LightcurveResult, error) {
	obs, inst := p.Observation, p.Instrument
	log := s.log.WithComponent("lightcurve").
		WithObservation(obs.ID, string(inst.Name)).
		WithFields(logger.Fields{"candidate": p.CandidateID})

	var res model.LightcurveResult
	start := time.Now()

	cand, err := region.FindCandidate(obs.DetectionRegions(), p.CandidateID)
	if err != nil {
		return res, err
	}
	initialRadius := cand.Radius * detectionRadiusScale

	clean := obs.CleanEventFile(inst.Name)
	image := obs.ImageFile(inst.Name)
	for _, f := range []string{clean, obs.GTIFile(inst.Name), image} {
		if !fileExists(f) {
			return res, fmt.Errorf("filtered product %s missing; filtering has not run", f)
		}
	}

	outDir := obs.LightcurveDir(p.Detection.TimeWindow, inst.Name, p.CandidateID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return res, fmt.Errorf("create lightcurve directory: %w", err)
	}

	log.WithFields(logger.Fields{"ra": cand.RA, "dec": cand.Dec}).Info("starting extraction")

	conv, err := s.runner.Run(ctx, "ecoordconv",
		"imageset="+image,
		fmt.Sprintf("x=%g", cand.RA),
		fmt.Sprintf("y=%g", cand.Dec),
		"coordtype=eqpos",
	)
	if err != nil {
		return res, fmt.Errorf("convert sky coordinates: %w", err)
	}
	x, y, err := sas.ParseImageCoords(conv.Stdout)
	if err != nil {
		return res, err
	}

	srcRegion := model.ExtractionRegion{X: x, Y: y, Radius: initialRadius}
	opt, err := s.runner.Run(ctx, "eregionanalyse",
		"imageset="+image,
		fmt.Sprintf("srcexp=(X,Y) in circle(%.1f,%.1f,%.1f)", x, y, initialRadius),
		fmt.Sprintf("backval=%g", backgroundSurfaceDensity),
	)
	if err != nil {
		return res, fmt.Errorf("optimize source region: %w", err)
	}
	if srcRegion.Radius, err = sas.ParseOptimizedRadius(opt.Stdout); err != nil {
		return res, err
	}

	name := region.SourceName(cand.RA, cand.Dec)

	bkgRegion, err := s.backgroundRegion(ctx, obs, inst, srcRegion)
	if err != nil {
		return res, err
	}

	frame, err := s.frameTime(obs.RawEventFile(inst.Name))
	if err != nil {
		return res, fmt.Errorf("frame time lookup: %w", err)
	}

	sourceless := obs.SourcelessEventFile(inst.Name)
	for _, c := range []struct {
		table string
		reg   model.ExtractionRegion
		bin   float64
		out   string
	}{
		{clean, srcRegion, frame, sourceFrameLC},
		{sourceless, bkgRegion, frame, bkgFrameLC},
		{clean, srcRegion, p.Detection.TimeWindow, sourceWindowLC},
		{sourceless, bkgRegion, p.Detection.TimeWindow, bkgWindowLC},
	} {
		if err := s.extractRateSeries(ctx, c.table, c.reg, c.bin, filepath.Join(outDir, c.out)); err != nil {
			return res, err
		}
	}

	corrected := filepath.Join(outDir, correctedLC)
	if _, err := s.runner.Run(ctx, "epiclccorr",
		"srctslist="+filepath.Join(outDir, sourceFrameLC),
		"eventlist="+clean,
		"outset="+corrected,
		"withbkgset=yes",
		"bkgtslist="+filepath.Join(outDir, bkgFrameLC),
		"applyabsolutecorrections=yes",
	); err != nil {
		return res, fmt.Errorf("background correction: %w", err)
	}

	probs, err := s.constancyTest(ctx, obs, inst, corrected, frame, filepath.Join(outDir, statsLogFile))
	if err != nil {
		return res, err
	}

	if _, err := s.runner.Run(ctx, "python3",
		filepath.Join(p.ScriptsDir, plotScript),
		corrected,
		name,
		fmt.Sprintf("%g", probs.ChiSquare),
		fmt.Sprintf("%g", probs.Kolmogorov),
		outDir,
	); err != nil {
		return res, fmt.Errorf("plot generation: %w", err)
	}

	elapsed := time.Since(start)
	if err := writeRegionInfo(filepath.Join(outDir, regionInfoFile), srcRegion, bkgRegion, elapsed); err != nil {
		return res, err
	}

	res = model.LightcurveResult{
		Observation:    obs.ID,
		CandidateID:    p.CandidateID,
		SourceName:     name,
		Instrument:     inst.Name,
		DetectionLevel: p.Detection.DetectionLevel,
		TimeWindow:     p.Detection.TimeWindow,
		PChiSquare:     probs.ChiSquare,
		PKolmogorov:    probs.Kolmogorov,
	}

	logger.LogPerformanceEntry(log, "lightcurve", "extract_candidate", elapsed, nil)
	logger.RecordStageUnit("lightcurve", 0)
	s.log.LogMetric("lightcurve", "candidates_extracted", 1, "counter", logger.Fields{
		"instrument": string(inst.Name),
	})
	log.WithFields(logger.Fields{
		"source":       name,
		"p_chi_square": probs.ChiSquare,
		"p_ks":         probs.Kolmogorov,
	}).Info("extraction complete")
	return res, nil
}

// backgroundRegion builds the sourceless event file if needed and asks
// the toolkit for a background circle of the refined radius, placed near
// the source but clear of every catalogued source.
func (s *Stage) backgroundRegion(ctx context.Context, obs model.Observation, inst config.InstrumentSpec, src model.ExtractionRegion) (model.ExtractionRegion, error) {
	var bkg model.ExtractionRegion

	sourceless := obs.SourcelessEventFile(inst.Name)
	if !fileExists(sourceless) {
		catalog, err := region.ParseCatalog(obs.SourceCatalog())
		if err != nil {
			return bkg, err
		}
		if len(catalog) == 0 {
			return bkg, fmt.Errorf("source catalog %s lists no regions", obs.SourceCatalog())
		}
		if _, err := s.runner.Run(ctx, "evselect",
			"table="+obs.CleanEventFile(inst.Name),
			"withfilteredset=yes",
			"filteredset="+sourceless,
			"destruct=yes",
			"keepfilteroutput=yes",
			"expression="+region.ExcludeExpr(catalog),
		); err != nil {
			return bkg, fmt.Errorf("build sourceless event file: %w", err)
		}
	}

	out, err := s.runner.Run(ctx, "ebkgreg",
		"imageset="+obs.ImageFile(inst.Name),
		"srcexp="+region.CircleExpr(src),
		fmt.Sprintf("radius=%.1f", src.Radius),
	)
	if err != nil {
		return bkg, fmt.Errorf("locate background region: %w", err)
	}
	bkg.X, bkg.Y, bkg.Radius, err = sas.ParseCircle(out.Stdout)
	if err != nil {
		return bkg, err
	}
	return bkg, nil
}

// extractRateSeries builds one binned rate series for a circular region.
func (s *Stage) extractRateSeries(ctx context.Context, table string, reg model.ExtractionRegion, binSize float64, out string) error {
	if _, err := s.runner.Run(ctx, "evselect",
		"table="+table,
		"withrateset=yes",
		"rateset="+out,
		"maketimecolumn=yes",
		"makeratecolumn=yes",
		fmt.Sprintf("timebinsize=%g", binSize),
		"expression="+region.CircleExpr(reg),
	); err != nil {
		return fmt.Errorf("extract rate series %s: %w", filepath.Base(out), err)
	}
	return nil
}

// constancyTest runs the Xronos statistics task over the corrected
// lightcurve within the observation's good-time windows, saves its full
// report, and parses the two constancy probabilities out of it.
func (s *Stage) constancyTest(ctx context.Context, obs model.Observation, inst config.InstrumentSpec, corrected string, frame float64, statsLog string) (sas.ConstancyProbabilities, error) {
	out, err := s.runner.Run(ctx, "lcstats",
		"cfile1="+corrected,
		"window="+obs.GTIFile(inst.Name),
		fmt.Sprintf("dtnb=%g", frame),
		"nbint=INDEF",
	)
	if err != nil {
		return sas.ConstancyProbabilities{}, fmt.Errorf("constancy test: %w", err)
	}
	if err := os.WriteFile(statsLog, []byte(out.Stdout), 0644); err != nil {
		return sas.ConstancyProbabilities{}, fmt.Errorf("save statistics log: %w", err)
	}
	return sas.ParseConstancyProbabilities(out.Stdout)
}

// writeRegionInfo records the final region expressions and the wall time
// of the run in the per-source description file.
func writeRegionInfo(path string, src, bkg model.ExtractionRegion, elapsed time.Duration) error {
	body := fmt.Sprintf("source %s\nbackground %s\nelapsed %.2fs\n",
		region.CircleExpr(src), region.CircleExpr(bkg), elapsed.Seconds())
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return fmt.Errorf("write region description: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
