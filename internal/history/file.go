package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/FairForge/loginramp/internal/loadtest"
	"github.com/FairForge/loginramp/internal/reporting"
)

// FileStore keeps one JSON report per run in a directory.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("history: directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Save writes the run's JSON report.
func (s *FileStore) Save(_ context.Context, run *loadtest.TestRun) error {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("history: create dir: %w", err)
	}
	data, err := json.MarshalIndent(reporting.FromRun(run), "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal run: %w", err)
	}
	name := filepath.Join(s.dir, reporting.FileName(run, reporting.FormatJSON))
	if err := os.WriteFile(name, data, 0600); err != nil {
		return fmt.Errorf("history: write %s: %w", name, err)
	}
	return nil
}

// List reads every stored report. Unreadable files are skipped with a
// warning.
func (s *FileStore) List(_ context.Context, endpoint string, limit int) ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: read dir: %w", err)
	}

	var records []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable history file", zap.String("path", path), zap.Error(err))
			continue
		}
		rep, err := reporting.Decode(data)
		if err != nil {
			s.logger.Warn("skipping invalid history file", zap.String("path", path), zap.Error(err))
			continue
		}
		if endpoint != "" && rep.Target.Endpoint != endpoint {
			continue
		}
		records = append(records, FromReport(rep))
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartTime.After(records[j].StartTime)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Report finds the stored report of one run.
func (s *FileStore) Report(_ context.Context, runID string) (*reporting.Report, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("history: read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		rep, err := reporting.Decode(data)
		if err != nil {
			continue
		}
		if rep.RunID == runID {
			return rep, nil
		}
	}
	return nil, fmt.Errorf("history: run %s: %w", runID, ErrNotFound)
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
