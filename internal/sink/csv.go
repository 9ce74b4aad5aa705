// Package sink streams crawl records into a CSV target file. Records
// are spilled to a line-delimited buffer and flushed in batches, so
// peak memory stays proportional to one batch rather than the dataset.
package sink

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/naramarket/crawler/internal/crawl"
)

// Config controls a CSVSink.
type Config struct {
	Path             string
	Append           bool
	FailOnNewColumns bool
	BatchSize        int
	Logger           *zap.Logger
}

// CSVSink implements crawl.RecordSink against a single CSV file. It
// owns the file and its schema for the duration of one invocation;
// concurrent invocations against the same path are the caller's problem
// to serialize.
type CSVSink struct {
	mu sync.Mutex

	path      string
	failOnNew bool
	batchSize int
	logger    *zap.Logger

	file   *os.File
	writer *csv.Writer

	spill    *os.File
	spillEnc *json.Encoder

	schema        []string
	seen          map[string]struct{}
	headerWritten bool

	batch []crawl.Record
	rows  int
}

type spillLine struct {
	ID      string            `json:"id"`
	Columns map[string]string `json:"columns"`
}

// Open prepares the sink. In append mode the target file must already
// exist; its header row becomes the schema. Otherwise the file is
// (over)written and the schema is established from the first batch.
func Open(cfg Config) (*CSVSink, error) {
	if cfg.Path == "" {
		return nil, &crawl.ConfigError{Field: "output_path", Msg: "is required"}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if err := ensureDir(cfg.Path); err != nil {
		return nil, err
	}

	s := &CSVSink{
		path:      cfg.Path,
		failOnNew: cfg.FailOnNewColumns,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger,
		seen:      make(map[string]struct{}),
	}

	if cfg.Append {
		header, err := readHeader(cfg.Path)
		if err != nil {
			return nil, err
		}
		s.setSchema(header)
		s.headerWritten = true
		file, err := os.OpenFile(cfg.Path, os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, &crawl.IOError{Path: cfg.Path, Err: err}
		}
		s.file = file
	} else {
		file, err := os.Create(cfg.Path)
		if err != nil {
			return nil, &crawl.IOError{Path: cfg.Path, Err: err}
		}
		s.file = file
	}
	s.writer = csv.NewWriter(s.file)

	spill, err := os.CreateTemp(filepath.Dir(cfg.Path), ".spill-*.jsonl")
	if err != nil {
		s.file.Close()
		return nil, &crawl.IOError{Path: cfg.Path, Err: fmt.Errorf("create spill buffer: %w", err)}
	}
	s.spill = spill
	s.spillEnc = json.NewEncoder(spill)

	return s, nil
}

// WriteBatch admits records one at a time: each is schema-checked,
// spilled to the line-delimited buffer, then queued for the next flush.
// A SchemaError rejects the offending record before anything of it is
// written; earlier records of the same call stay queued.
func (s *CSVSink) WriteBatch(records []crawl.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if err := s.admit(rec); err != nil {
			return err
		}
		if err := s.spillEnc.Encode(spillLine{ID: rec.ID, Columns: rec.Columns}); err != nil {
			return &crawl.IOError{Path: s.spill.Name(), Err: err}
		}
		s.batch = append(s.batch, rec)
		if len(s.batch) >= s.batchSize {
			if err := s.flushLocked(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush commits all queued records to the CSV file and syncs it, so a
// later crash cannot lose them.
func (s *CSVSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(); err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return &crawl.IOError{Path: s.path, Err: err}
	}
	return nil
}

// Close flushes pending rows, releases the file, and removes the spill
// buffer on success.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flushErr := s.flushLocked()
	if s.spill != nil {
		s.spill.Close()
		if flushErr == nil {
			os.Remove(s.spill.Name())
		} else {
			s.logger.Warn("keeping spill buffer after failed flush", zap.String("spill", s.spill.Name()))
		}
	}
	if err := s.file.Close(); err != nil && flushErr == nil {
		return &crawl.IOError{Path: s.path, Err: err}
	}
	return flushErr
}

// Rows returns the count of data rows flushed to the file this run.
func (s *CSVSink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Schema returns a copy of the current column set, in file order.
func (s *CSVSink) Schema() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.schema))
	copy(out, s.schema)
	return out
}

// admit checks a record's columns against the schema. Unknown columns
// fail the run under fail_on_new_columns once the header is committed;
// otherwise they are appended to the in-memory schema, widening rows
// written from here on (the on-disk header row is never rewritten).
func (s *CSVSink) admit(rec crawl.Record) error {
	var newCols []string
	for col := range rec.Columns {
		if _, ok := s.seen[col]; !ok {
			newCols = append(newCols, col)
		}
	}
	if len(newCols) == 0 {
		return nil
	}
	sort.Strings(newCols)
	if s.headerWritten && s.failOnNew {
		return &crawl.SchemaError{NewColumns: newCols}
	}
	if s.headerWritten {
		s.logger.Warn("widening schema with new columns", zap.Strings("columns", newCols))
	}
	for _, col := range newCols {
		s.seen[col] = struct{}{}
		s.schema = append(s.schema, col)
	}
	return nil
}

func (s *CSVSink) flushLocked() error {
	if !s.headerWritten {
		if len(s.batch) == 0 {
			return nil
		}
		if err := s.writer.Write(s.schema); err != nil {
			return &crawl.IOError{Path: s.path, Err: fmt.Errorf("write header: %w", err)}
		}
		s.headerWritten = true
	}
	for _, rec := range s.batch {
		row := make([]string, len(s.schema))
		for i, col := range s.schema {
			row[i] = rec.Columns[col]
		}
		if err := s.writer.Write(row); err != nil {
			return &crawl.IOError{Path: s.path, Err: err}
		}
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return &crawl.IOError{Path: s.path, Err: err}
	}
	s.rows += len(s.batch)
	s.batch = s.batch[:0]
	return nil
}

func (s *CSVSink) setSchema(cols []string) {
	s.schema = append([]string(nil), cols...)
	for _, col := range cols {
		s.seen[col] = struct{}{}
	}
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &crawl.IOError{Path: path, Err: fmt.Errorf("append mode requires an existing file: %w", err)}
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return nil, &crawl.IOError{Path: path, Err: fmt.Errorf("append mode requires a header row")}
	}
	if err != nil {
		return nil, &crawl.IOError{Path: path, Err: fmt.Errorf("read header: %w", err)}
	}
	return header, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &crawl.IOError{Path: path, Err: fmt.Errorf("create directory %q: %w", dir, err)}
	}
	return nil
}
