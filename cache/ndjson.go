package cache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

const maxLineSize = 16 << 20

// NDJSONStore keeps records in an append-only newline-delimited JSON file,
// one {"key","arguments","value"} object per line.
type NDJSONStore struct {
	path   string
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewNDJSONStore opens (creating if needed) the log at path.
func NewNDJSONStore(path string, logger zerolog.Logger) (*NDJSONStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	//nolint:gosec // G304: cache path comes from configuration
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close cache file %s: %w", path, err)
	}
	return &NDJSONStore{
		path:   path,
		logger: logger.With().Str("component", "ndjsonCache").Logger(),
	}, nil
}

// Get implements Store. Lines that fail to parse are skipped.
func (s *NDJSONStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}

	//nolint:gosec // G304: cache path comes from configuration
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	needle := []byte(`"` + key + `"`)
	var (
		found json.RawMessage
		line  int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		raw := scanner.Bytes()
		if !bytes.Contains(raw, needle) {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Warn().Err(err).Int("line", line).Msg("Skipping malformed cache line")
			continue
		}
		if rec.Key == key {
			found = append(json.RawMessage(nil), rec.Value...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to read cache file: %w", err)
	}
	return found, found != nil, nil
}

// Append implements Store. Each record is written with a single write call.
// A log left ending in a partial line gets a newline first, so the torn line
// stays malformed on its own and the new record remains readable.
func (s *NDJSONStore) Append(ctx context.Context, rec Record) error {
	if len(rec.Value) == 0 {
		rec.Value = json.RawMessage("null")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode cache record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	//nolint:gosec // G304: cache path comes from configuration
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	torn, err := endsMidLine(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to inspect cache file: %w", err)
	}
	if torn {
		s.logger.Warn().Str("path", s.path).Msg("Cache log ends in a partial line, starting a new one")
		data = append([]byte{'\n'}, data...)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append cache record: %w", err)
	}
	return f.Close()
}

// endsMidLine reports whether f is non-empty and its last byte is not '\n'.
func endsMidLine(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

// Close implements Store.
func (s *NDJSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
