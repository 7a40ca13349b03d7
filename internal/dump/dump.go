package dump

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openmedline/medmirror/internal/domain"
	"github.com/openmedline/medmirror/internal/medline"
)

// Options controls a dump run.
type Options struct {
	// Unique skips citations whose VersionID is not "1".
	Unique bool

	// UpdateAll adds every parsed PMID to the deletion list so a COPY load
	// can replace existing citations.
	UpdateAll bool
}

// Run parses the given MEDLINE XML files (plain or gzip) and writes the
// table files and deletion list into dir.
func Run(paths []string, dir string, opts Options, logger zerolog.Logger) error {
	writer, err := NewWriter(dir)
	if err != nil {
		return err
	}

	for _, path := range paths {
		if err := dumpFile(path, writer, opts, logger); err != nil {
			writer.Close()
			return err
		}
	}

	if err := writer.Close(); err != nil {
		return err
	}

	for _, table := range domain.TableOrder {
		if count := writer.Count(table); count > 0 {
			logger.Info().Str("table", table).Int("rows", count).Msg("dumped rows")
		}
	}
	if count := writer.Count(DeleteFile); count > 0 {
		logger.Info().Int("pmids", count).Msg("dumped deletion list")
	}
	return nil
}

func dumpFile(path string, writer *Writer, opts Options, logger zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	logger.Debug().Str("path", path).Msg("dumping file")

	grouper := medline.NewGrouper(medline.NewParser(r, medline.Medline, opts.Unique, logger))
	for grouper.Scan() {
		item := grouper.Item()
		if item.IsDelete() {
			if err := writer.Delete(item.Delete); err != nil {
				return err
			}
			continue
		}

		root := item.Root()
		if root == nil {
			// a corrupt archive can cut the stream between a citation's
			// children and its root; the partial group is unusable
			logger.Warn().Int("records", len(item.Group)).
				Msg("discarding incomplete citation group")
			continue
		}

		if opts.UpdateAll {
			if err := writer.Delete(root.ID); err != nil {
				return err
			}
		}
		for _, record := range item.Group {
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	if err := grouper.Err(); err != nil {
		return fmt.Errorf("parse of %s failed: %w", path, err)
	}
	return nil
}
