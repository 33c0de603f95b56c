package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// prunePatterns match the unpacked summary-archive members no downstream
// stage reads: attitude and telemetry timeseries, raw ASCII logs, and
// the archive manifest.
var prunePatterns = []string{
	"*ATT*.FIT",
	"*TCS*.FIT",
	"*.ASC",
	"MANIFEST*",
}

// UnpackTar extracts the observation summary archive into dir. The
// archive may be gzip compressed. A corrupt archive is a hard error for
// the acquisition stage, not a silent partial extraction.
func UnpackTar(path, dir string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if gz, err := gzip.NewReader(f); err == nil {
		defer gz.Close()
		r = gz
	} else {
		// Not gzip; rewind and treat as a plain tar.
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind archive: %w", err)
		}
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("decompress archive %s: %w", path, err)
		}

		name := filepath.Clean(hdr.Name)
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return fmt.Errorf("archive member %q escapes extraction directory", hdr.Name)
		}
		target := filepath.Join(dir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("create directory for %s: %w", target, err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0777)
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			_, err = io.Copy(out, tr)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("extract %s: %w", target, err)
			}
		}
	}
	return nil
}

// Prune deletes the unpacked members not required downstream. Returns
// the deleted file names.
func Prune(dir string) ([]string, error) {
	var deleted []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		base := filepath.Base(path)
		for _, pattern := range prunePatterns {
			ok, merr := filepath.Match(pattern, base)
			if merr != nil {
				return merr
			}
			if ok {
				if err := os.Remove(path); err != nil {
					return fmt.Errorf("prune %s: %w", path, err)
				}
				deleted = append(deleted, base)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
