package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"aaveCustody/internal/model"
)

// JsonlStorage appends records to a JSONL file, one JSON object per line.
// It serves both as an event sink and as the audit output.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

var (
	_ EventSink    = (*JsonlStorage)(nil)
	_ ActivitySink = (*JsonlStorage)(nil)
)

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

func (s *JsonlStorage) PutEventBatch(_ context.Context, events []model.CustodyEvent) error {
	return appendLines(s, events)
}

func (s *JsonlStorage) PutActivityBatch(activity []model.PoolActivity) error {
	return appendLines(s, activity)
}

func appendLines[T any](s *JsonlStorage, records []T) error {
	if len(records) == 0 {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for i := range records {
		// Encode terminates each value with '\n'
		if err := enc.Encode(records[i]); err != nil {
			file.Close()
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	return file.Close()
}
