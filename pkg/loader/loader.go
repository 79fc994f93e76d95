// Package loader reads exported expert record files. Each file is a JSON
// array of combined profile+works records; schema violations on individual
// records are skipped, not fatal to the file.
package loader

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/soundprediction/expertgraph/pkg/types"
)

// Loader reads SourceRecord files from disk.
type Loader struct {
	logger *slog.Logger
}

// New creates a Loader. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// LoadFile reads one JSON array of source records. Records that fail to
// decode or validate are logged and skipped.
func (l *Loader) LoadFile(path string) ([]types.SourceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file %s: %w", path, err)
	}

	// Decode into raw messages first so one malformed element does not
	// poison its siblings. Exports ship either an array of records or one
	// record per file.
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var single json.RawMessage
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return nil, fmt.Errorf("record file %s is not valid JSON: %w", path, err2)
		}
		raw = []json.RawMessage{single}
	}

	records := make([]types.SourceRecord, 0, len(raw))
	for i, msg := range raw {
		var rec types.SourceRecord
		if err := json.Unmarshal(msg, &rec); err != nil {
			l.logger.Warn("skipping undecodable record",
				"file", path,
				"index", i,
				"error", err)
			continue
		}
		if err := rec.Validate(); err != nil {
			l.logger.Warn("skipping invalid record",
				"file", path,
				"index", i,
				"record_id", rec.ID,
				"error", err)
			continue
		}
		records = append(records, rec)
	}

	l.logger.Info("loaded record file",
		"file", path,
		"records", len(records),
		"skipped", len(raw)-len(records))
	return records, nil
}

// LoadDir reads every .json file in a directory, in lexical order so a build
// over the same export is deterministic.
func (l *Loader) LoadDir(dir string) ([]types.SourceRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read record directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no JSON record files found in %s", dir)
	}

	var records []types.SourceRecord
	for _, file := range files {
		recs, err := l.LoadFile(file)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}
