// Package dump writes parsed citation records as tab-separated files
// suitable for PostgreSQL COPY, one file per table plus a deletion list.
package dump

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/openmedline/medmirror/internal/domain"
)

// DeleteFile is the name of the deletion list written next to the table
// files.
const DeleteFile = "delete.txt"

// nullValue is the COPY representation of SQL NULL.
const nullValue = `\N`

var escaper = strings.NewReplacer(
	`\`, `\\`,
	"\t", `\t`,
	"\n", `\n`,
)

// Writer streams records into one tab-separated file per table. All files
// are created up front; files that received no rows are removed on Close.
type Writer struct {
	dir    string
	files  map[string]*os.File
	bufs   map[string]*bufio.Writer
	counts map[string]int
}

// NewWriter creates the output directory if needed and opens one file per
// table plus the deletion list.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	w := &Writer{
		dir:    dir,
		files:  make(map[string]*os.File),
		bufs:   make(map[string]*bufio.Writer),
		counts: make(map[string]int),
	}

	names := append([]string{}, domain.TableOrder...)
	names = append(names, DeleteFile)
	for _, name := range names {
		path := filepath.Join(dir, fileName(name))
		f, err := os.Create(path)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to create %s: %w", path, err)
		}
		w.files[name] = f
		w.bufs[name] = bufio.NewWriter(f)
	}
	return w, nil
}

func fileName(name string) string {
	if name == DeleteFile {
		return name
	}
	return name + ".txt"
}

// Write appends one record to its table file.
func (w *Writer) Write(record domain.Record) error {
	buf, ok := w.bufs[record.Table()]
	if !ok {
		return fmt.Errorf("no output file for table %s", record.Table())
	}

	values := record.Values()
	fields := make([]string, len(values))
	for i, value := range values {
		field, err := formatValue(value)
		if err != nil {
			return fmt.Errorf("%s row for citation %d: %w", record.Table(), record.PMID(), err)
		}
		fields[i] = field
	}

	if _, err := buf.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
		return fmt.Errorf("failed to write %s row: %w", record.Table(), err)
	}
	w.counts[record.Table()]++
	return nil
}

// Delete appends one PMID to the deletion list.
func (w *Writer) Delete(pmid int64) error {
	if _, err := w.bufs[DeleteFile].WriteString(strconv.FormatInt(pmid, 10) + "\n"); err != nil {
		return fmt.Errorf("failed to write deletion: %w", err)
	}
	w.counts[DeleteFile]++
	return nil
}

// Count returns the number of rows written for a table (or DeleteFile).
func (w *Writer) Count(name string) int { return w.counts[name] }

// Close flushes and closes all files and removes those that stayed empty.
func (w *Writer) Close() error {
	var errs []string
	for name, buf := range w.bufs {
		if err := buf.Flush(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := w.files[name].Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if w.counts[name] == 0 {
			if err := os.Remove(filepath.Join(w.dir, fileName(name))); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close dump: %s", strings.Join(errs, "; "))
	}
	return nil
}

// formatValue renders one column value in COPY text format: NULL as \N,
// booleans as T/F, dates as ISO-8601, strings with backslash, tab, and
// newline escaped.
func formatValue(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return nullValue, nil
	case string:
		return escaper.Replace(v), nil
	case *string:
		if v == nil {
			return nullValue, nil
		}
		return escaper.Replace(*v), nil
	case bool:
		if v {
			return "T", nil
		}
		return "F", nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case time.Time:
		return v.Format("2006-01-02"), nil
	case *time.Time:
		if v == nil {
			return nullValue, nil
		}
		return v.Format("2006-01-02"), nil
	default:
		return "", fmt.Errorf("unsupported column type %T", value)
	}
}
