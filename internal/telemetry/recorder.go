package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"
)

// Recorder appends WorldStats rows to <dir>/ecosystem.csv.
type Recorder struct {
	mu            sync.Mutex
	path          string
	file          *os.File
	headerWritten bool
}

// NewRecorder creates the output directory and file.
// Returns nil if dir is empty (recording disabled).
func NewRecorder(dir string) (*Recorder, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating telemetry directory: %w", err)
	}

	path := filepath.Join(dir, "ecosystem.csv")
	info, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening ecosystem.csv: %w", err)
	}
	return &Recorder{
		path: path,
		file: f,
		// Appending to an existing file keeps its header.
		headerWritten: statErr == nil && info.Size() > 0,
	}, nil
}

// Record writes one sample.
func (r *Recorder) Record(s WorldStats) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	records := []WorldStats{s}
	if !r.headerWritten {
		if err := gocsv.Marshal(records, r.file); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
		r.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, r.file); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

// Path returns the CSV file path.
func (r *Recorder) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

// Close closes the output file.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
