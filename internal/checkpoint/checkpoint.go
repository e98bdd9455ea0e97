// Package checkpoint persists completed work items to an append-only JSONL
// file so an interrupted run can resume without repeating external calls.
//
// Each line is one JSON object. A "run" line is written when a process opens
// the file; an "item" line is written once per resolved WorkItem with a
// single write followed by fsync. When a key appears more than once the last
// line wins. A trailing line torn by a crash is discarded on open.
package checkpoint

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/seenimoa/newsentiment/internal/faults"
	"github.com/seenimoa/newsentiment/pkg/models"
)

// FileName is the checkpoint's name inside a run's output directory.
const FileName = "checkpoint.jsonl"

// Version is the record format version written into run headers.
const Version = 1

const (
	kindRun  = "run"
	kindItem = "item"
)

// Header is written once per process that opens the checkpoint.
type Header struct {
	Kind      string    `json:"kind"`
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Start     string    `json:"start,omitempty"`
	End       string    `json:"end,omitempty"`
	Source    string    `json:"source,omitempty"`
	Scorer    string    `json:"scorer,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Record is the persisted result of one resolved WorkItem.
type Record struct {
	Kind        string                   `json:"kind"`
	RunID       string                   `json:"run_id"`
	Key         models.ItemKey           `json:"key"`
	CompanyID   string                   `json:"company_id"`
	CompanyName string                   `json:"company_name"`
	Date        string                   `json:"date"`
	Outcome     models.Outcome           `json:"outcome"`
	FetchError  string                   `json:"fetch_error,omitempty"`
	News        []models.NewsItem        `json:"news,omitempty"`
	Results     []models.SentimentResult `json:"results,omitempty"`
	WrittenAt   time.Time                `json:"written_at"`
}

// NewRecord starts a record for item. The caller fills in the outcome.
func NewRecord(item models.WorkItem) Record {
	return Record{
		Kind:        kindItem,
		Key:         item.Key(),
		CompanyID:   item.CompanyID,
		CompanyName: item.CompanyName,
		Date:        item.Day(),
	}
}

// Item rebuilds the WorkItem the record belongs to.
func (r Record) Item() models.WorkItem {
	d, _ := time.Parse(models.DateLayout, r.Date)
	return models.WorkItem{CompanyID: r.CompanyID, CompanyName: r.CompanyName, TargetDate: d}
}

// NewRunID returns a time-ordered run identifier.
func NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Snapshot is the parsed content of a checkpoint file.
type Snapshot struct {
	Runs    []Header
	records map[models.ItemKey]Record
	order   []models.ItemKey
}

// Len returns the number of distinct completed items.
func (s *Snapshot) Len() int { return len(s.order) }

// Has reports whether key has a record.
func (s *Snapshot) Has(key models.ItemKey) bool {
	_, ok := s.records[key]
	return ok
}

// Get returns the latest record for key.
func (s *Snapshot) Get(key models.ItemKey) (Record, bool) {
	r, ok := s.records[key]
	return r, ok
}

// Records returns the latest record of every key in first-written order.
func (s *Snapshot) Records() []Record {
	out := make([]Record, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.records[k])
	}
	return out
}

func (s *Snapshot) put(r Record) {
	if s.records == nil {
		s.records = make(map[models.ItemKey]Record)
	}
	if _, ok := s.records[r.Key]; !ok {
		s.order = append(s.order, r.Key)
	}
	s.records[r.Key] = r
}

// Read parses the checkpoint at path without modifying it. A missing file
// yields an empty snapshot. A torn trailing line is ignored.
func Read(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open %s: %w", path, err)
	}
	defer f.Close()

	snap, _, err := parse(f)
	return snap, err
}

// parse reads JSONL records and returns the byte offset just past the last
// intact line.
func parse(r io.Reader) (*Snapshot, int64, error) {
	snap := &Snapshot{}
	br := bufio.NewReader(r)
	var good int64
	lineNo := 0
	for {
		line, err := br.ReadBytes('\n')
		if err == io.EOF {
			// no trailing newline: torn write
			return snap, good, nil
		}
		if err != nil {
			return nil, good, fmt.Errorf("checkpoint: read: %w", err)
		}
		lineNo++

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			if perr := parseLine(snap, trimmed); perr != nil {
				// A corrupt final line is a torn write; anything earlier is damage.
				if _, peek := br.Peek(1); peek == io.EOF {
					return snap, good, nil
				}
				return nil, good, fmt.Errorf("%w: line %d: %v", faults.ErrCheckpoint, lineNo, perr)
			}
		}
		good += int64(len(line))
	}
}

func parseLine(snap *Snapshot, line []byte) error {
	var tag struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(line, &tag); err != nil {
		return err
	}
	switch tag.Kind {
	case kindRun:
		var h Header
		if err := json.Unmarshal(line, &h); err != nil {
			return err
		}
		snap.Runs = append(snap.Runs, h)
	case kindItem:
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		if rec.Key == "" {
			return errors.New("item record without key")
		}
		snap.put(rec)
	default:
		return fmt.Errorf("unknown record kind %q", probe.Kind)
	}
	return nil
}

// Store is an open checkpoint. Append is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	runID  string
	snap   *Snapshot
	logger *log.Logger
}

// Option configures Open.
type Option func(*Store)

// WithLogger sets the logger used to report repairs.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open loads the checkpoint at path, truncates a torn tail, and appends a
// run header for header.RunID (generated when empty).
func Open(path string, header Header, opts ...Option) (*Store, error) {
	s := &Store{path: path, logger: &log.DefaultLogger}
	for _, o := range opts {
		o(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create dir: %v", faults.ErrCheckpoint, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", faults.ErrCheckpoint, path, err)
	}

	snap, good, err := parse(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat: %v", faults.ErrCheckpoint, err)
	}
	if info.Size() > good {
		s.logger.Warn().Str("path", path).Int64("size", info.Size()).Int64("kept", good).
			Msg("checkpoint: discarding torn trailing record")
		if err := f.Truncate(good); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: truncate: %v", faults.ErrCheckpoint, err)
		}
	}
	f.Close()

	// O_APPEND makes every write land at the end even with concurrent writers.
	s.f, err = os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: reopen %s: %v", faults.ErrCheckpoint, path, err)
	}
	s.snap = snap

	if header.RunID == "" {
		header.RunID = NewRunID()
	}
	header.Kind = kindRun
	header.Version = Version
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	s.runID = header.RunID
	if err := s.writeLine(header); err != nil {
		s.f.Close()
		return nil, err
	}
	s.snap.Runs = append(s.snap.Runs, header)
	return s, nil
}

// Path returns the checkpoint file path.
func (s *Store) Path() string { return s.path }

// RunID returns the id stamped into records written by this process.
func (s *Store) RunID() string { return s.runID }

// Has reports whether key was completed by this or an earlier run.
func (s *Store) Has(key models.ItemKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Has(key)
}

// Get returns the latest record for key.
func (s *Store) Get(key models.ItemKey) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Get(key)
}

// Len returns the number of distinct completed items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Len()
}

// Records returns the latest record of every completed item.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Records()
}

// Runs returns every run header in file order.
func (s *Store) Runs() []Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Header(nil), s.snap.Runs...)
}

// Append durably writes rec. It returns only after the line is fsynced.
func (s *Store) Append(rec Record) error {
	rec.Kind = kindItem
	rec.RunID = s.runID
	if rec.WrittenAt.IsZero() {
		rec.WrittenAt = time.Now().UTC()
	}
	if rec.Key == "" {
		return fmt.Errorf("%w: record without key", faults.ErrCheckpoint)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLine(rec); err != nil {
		return err
	}
	s.snap.put(rec)
	return nil
}

// writeLine marshals v and appends it with one write and one fsync.
// Callers hold s.mu or have exclusive access.
func (s *Store) writeLine(v any) error {
	if s.f == nil {
		return fmt.Errorf("%w: store closed", faults.ErrCheckpoint)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", faults.ErrCheckpoint, err)
	}
	data = append(data, '\n')
	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("%w: write: %v", faults.ErrCheckpoint, err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("%w: fsync: %v", faults.ErrCheckpoint, err)
	}
	return nil
}

// Close closes the file. It is safe to call more than once.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
