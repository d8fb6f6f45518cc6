package history

// This file contains shared utilities for loading and parsing run
// records out of the local results tree.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/quicbench/quicbench/model"
)

type Entry struct {
	Record   model.Record
	FullPath string
}

// LoadEntries loads all run records found directly under resultsRoot.
// Session directories without a record (interrupted before the record
// was written) are skipped with a debug message.
func LoadEntries(logger zerolog.Logger, resultsRoot string) ([]Entry, error) {
	dirs, err := os.ReadDir(resultsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no runs found in %s", resultsRoot)
		}
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}

	var entries []Entry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}

		recordPath := filepath.Join(resultsRoot, d.Name(), model.RecordFile)
		record, err := parseRecord(recordPath)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Debug().Str("dir", d.Name()).Msg("Session directory has no run record, skipping")
			} else {
				logger.Warn().Err(err).Str("path", recordPath).Msg("Failed to parse run record")
			}
			continue
		}

		entries = append(entries, Entry{
			Record:   record,
			FullPath: filepath.Join(resultsRoot, d.Name()),
		})
	}

	return entries, nil
}

// parseRecord parses a run.json file.
func parseRecord(path string) (model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Record{}, err
	}

	var record model.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return model.Record{}, err
	}

	return record, nil
}
