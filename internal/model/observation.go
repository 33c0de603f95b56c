package model

import (
	"fmt"
	"path/filepath"

	"epicflow/config"
)

// Canonical per-observation file names. Downstream stages locate every
// product by these names, so they are part of the on-disk contract.
const (
	CalibrationIndexFile = "ccf.cif"
	SummaryFile          = "odf_summary.SAS"
	DetectionRegionFile  = "detected_sources.reg"
	SourceCatalogFile    = "sources.reg"
)

// Observation is one archive observation unit rooted at Dir. All stage
// outputs for it live under Dir; nothing outside is touched.
type Observation struct {
	ID  string
	Dir string
}

func NewObservation(folder, id string) Observation {
	return Observation{ID: id, Dir: filepath.Join(folder, id)}
}

func (o Observation) path(name string) string {
	return filepath.Join(o.Dir, name)
}

// CalibrationIndex returns the path of the calibration index file built by
// cifbuild.
func (o Observation) CalibrationIndex() string {
	return o.path(CalibrationIndexFile)
}

// RawEventFile returns the pipeline event list fetched from the archive
// for the given instrument.
func (o Observation) RawEventFile(inst config.Instrument) string {
	return o.path(fmt.Sprintf("%s_events.fits", inst))
}

// FlareBackgroundFile returns the archive background-rejection timeseries.
func (o Observation) FlareBackgroundFile(inst config.Instrument) string {
	return o.path(fmt.Sprintf("%s_fbktsr.fits", inst))
}

// RateFile returns the 100 s binned flare-rate curve.
func (o Observation) RateFile(inst config.Instrument) string {
	return o.path(fmt.Sprintf("%s_rate.fits", inst))
}

// GTIFile returns the good-time-interval table.
func (o Observation) GTIFile(inst config.Instrument) string {
	return o.path(fmt.Sprintf("%s_gti.fits", inst))
}

// CleanEventFile returns the flare-filtered event list.
func (o Observation) CleanEventFile(inst config.Instrument) string {
	return o.path(fmt.Sprintf("%s_clean.fits", inst))
}

// ImageFile returns the binned sky image.
func (o Observation) ImageFile(inst config.Instrument) string {
	return o.path(fmt.Sprintf("%s_image.fits", inst))
}

// SourcelessEventFile returns the clean event list with every catalogued
// source region excised, used for background extraction.
func (o Observation) SourcelessEventFile(inst config.Instrument) string {
	return o.path(fmt.Sprintf("%s_sourceless.fits", inst))
}

// ProcessingLog returns the per-instrument log the resolved flare
// threshold is appended to.
func (o Observation) ProcessingLog(inst config.Instrument) string {
	return o.path(fmt.Sprintf("%s_processing.log", inst))
}

// DetectionRegions returns the detection-stage region file listing
// candidate sources.
func (o Observation) DetectionRegions() string {
	return o.path(DetectionRegionFile)
}

// SourceCatalog returns the externally supplied catalog of all source
// regions in the field.
func (o Observation) SourceCatalog() string {
	return o.path(SourceCatalogFile)
}

// LightcurveDir returns the per-source output directory for one candidate
// extraction run.
func (o Observation) LightcurveDir(timeWindow float64, inst config.Instrument, candidateID string) string {
	return o.path(fmt.Sprintf("lcurve_%g_%s_%s", timeWindow, inst, candidateID))
}
