package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/FranksOps/rankwatch/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

// maxLine bounds a single NDJSON record; a ten-page snapshot is well below it.
const maxLine = 16 << 20

type jsonBackend struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a new NDJSON-backed storage.Backend. Each line holds one snapshot.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("jsonbackend: open: %w", err)
	}

	return &jsonBackend{
		file: f,
	}, nil
}

func (b *jsonBackend) Save(ctx context.Context, snapshot *storage.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("jsonbackend: marshal: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	all, err := b.readAll()
	if err != nil {
		return err
	}
	for _, s := range all {
		if s.ID == snapshot.ID {
			return nil
		}
	}

	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("jsonbackend: write: %w", err)
	}
	return nil
}

func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	all, err := b.readAll()
	if err != nil {
		return nil, err
	}

	var filtered []*storage.Snapshot
	for _, s := range all {
		if filter.Query != "" && s.Query != filter.Query {
			continue
		}
		if filter.Since != nil && s.RequestedAt.Before(*filter.Since) {
			continue
		}
		filtered = append(filtered, s)
	}

	// newest first
	slices.SortStableFunc(filtered, func(a, b *storage.Snapshot) int {
		return b.RequestedAt.Compare(a.RequestedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(filtered) {
			return []*storage.Snapshot{}, nil
		}
		filtered = filtered[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(filtered) {
		filtered = filtered[:filter.Limit]
	}

	return filtered, nil
}

// readAll must be called with the lock held.
func (b *jsonBackend) readAll() ([]*storage.Snapshot, error) {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("jsonbackend: seek: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	scanner := bufio.NewScanner(b.file)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	var all []*storage.Snapshot
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var s storage.Snapshot
		if err := json.Unmarshal(line, &s); err != nil {
			return nil, fmt.Errorf("jsonbackend: decode: %w", err)
		}
		all = append(all, &s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("jsonbackend: scan: %w", err)
	}
	return all, nil
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
