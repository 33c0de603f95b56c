package archive

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"epicflow/config"
	"epicflow/internal/model"
	"epicflow/logger"
)

// Stage downloads every product one observation needs: the pipeline
// event list and flare-background timeseries per requested instrument,
// plus one shared summary archive that is unpacked and pruned in place.
type Stage struct {
	baseURL    string
	downloader *Downloader
	log        *logger.Log
}

func NewStage(cfg config.ArchiveConfig) *Stage {
	return &Stage{
		baseURL:    cfg.BaseURL,
		downloader: NewDownloader(cfg),
		log:        logger.GetLogger(),
	}
}

// Run acquires the observation into obs.Dir for the given instruments.
func (s *Stage) Run(ctx context.Context, obs model.Observation, instruments []config.InstrumentSpec) error {
	log := s.log.WithComponent("acquisition").WithFields(logger.Fields{"observation": obs.ID})

	if obs.ID == "" {
		return fmt.Errorf("observation id is required")
	}
	if err := os.MkdirAll(obs.Dir, 0755); err != nil {
		return fmt.Errorf("create observation directory: %w", err)
	}

	log.WithFields(logger.Fields{"instruments": len(instruments)}).Info("starting acquisition")

	for _, inst := range instruments {
		if err := s.downloader.Fetch(ctx, s.productURL(obs.ID, inst.ArchiveTag, "PIEVLI"), obs.RawEventFile(inst.Name)); err != nil {
			return fmt.Errorf("event list for %s: %w", inst.Name, err)
		}
		if err := s.downloader.Fetch(ctx, s.productURL(obs.ID, inst.ArchiveTag, "FBKTSR"), obs.FlareBackgroundFile(inst.Name)); err != nil {
			return fmt.Errorf("flare background for %s: %w", inst.Name, err)
		}
	}

	tarPath := filepath.Join(obs.Dir, "odf.tar")
	if err := s.downloader.Fetch(ctx, s.summaryURL(obs.ID), tarPath); err != nil {
		return fmt.Errorf("summary archive: %w", err)
	}
	if err := UnpackTar(tarPath, obs.Dir); err != nil {
		return err
	}
	if err := os.Remove(tarPath); err != nil {
		return fmt.Errorf("remove unpacked archive: %w", err)
	}

	deleted, err := Prune(obs.Dir)
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{"pruned": len(deleted)}).Info("acquisition complete")
	return nil
}

// productURL builds the archive request for one named pipeline product.
func (s *Stage) productURL(obsID, instrument, product string) string {
	q := url.Values{}
	q.Set("obsno", obsID)
	q.Set("instname", instrument)
	q.Set("name", product)
	q.Set("level", "PPS")
	return s.baseURL + "?" + q.Encode()
}

// summaryURL builds the archive request for the observation's raw data
// summary archive.
func (s *Stage) summaryURL(obsID string) string {
	q := url.Values{}
	q.Set("obsno", obsID)
	q.Set("level", "ODF")
	return s.baseURL + "?" + q.Encode()
}
