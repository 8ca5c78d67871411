package csvbackend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/rankwatch/internal/ranking"
	"github.com/FranksOps/rankwatch/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order. Every row is one result; snapshot
// columns repeat. A snapshot without results is stored as a single row with
// rank 0.
var headers = []string{
	"snapshot_id",
	"query",
	"engine",
	"requested_at",
	"requested_pages",
	"page",
	"rank",
	"uri",
	"advertisement",
}

// New creates a new CSV-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: stat: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
	}

	return &csvBackend{
		file: f,
	}, nil
}

func (b *csvBackend) Save(ctx context.Context, snapshot *storage.Snapshot) error {
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

	prefix := []string{
		snapshot.ID,
		snapshot.Query,
		snapshot.Engine,
		snapshot.RequestedAt.UTC().Format(time.RFC3339Nano),
		strconv.Itoa(snapshot.RequestedPages),
	}

	var records [][]string
	for _, r := range snapshot.Results {
		records = append(records, append(slices.Clone(prefix),
			strconv.Itoa(r.Page),
			strconv.Itoa(r.Rank),
			r.URI,
			strconv.FormatBool(r.Advertisement),
		))
	}
	if len(records) == 0 {
		records = append(records, append(slices.Clone(prefix), "0", "0", "", "false"))
	}

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("csvbackend: seek: %w", err)
	}
	w := csv.NewWriter(b.file)
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("csvbackend: write: %w", err)
	}
	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Snapshot, error) {
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

// readAll groups rows back into snapshots in file order. Must be called with
// the lock held.
func (b *csvBackend) readAll() ([]*storage.Snapshot, error) {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: seek: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("csvbackend: read header: %w", err)
	}

	byID := make(map[string]*storage.Snapshot)
	var all []*storage.Snapshot
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvbackend: read: %w", err)
		}
		if len(record) != len(headers) {
			continue // skip malformed rows
		}

		s, ok := byID[record[0]]
		if !ok {
			requestedAt, _ := time.Parse(time.RFC3339Nano, record[3])
			pages, _ := strconv.Atoi(record[4])
			s = &storage.Snapshot{
				ID:             record[0],
				Query:          record[1],
				Engine:         record[2],
				RequestedAt:    requestedAt,
				RequestedPages: pages,
				Results:        []ranking.Result{},
			}
			byID[s.ID] = s
			all = append(all, s)
		}

		rank, _ := strconv.Atoi(record[6])
		if rank == 0 {
			continue
		}
		page, _ := strconv.Atoi(record[5])
		ad, _ := strconv.ParseBool(record[8])
		s.Results = append(s.Results, ranking.Result{
			Page:          page,
			Rank:          rank,
			URI:           record[7],
			Advertisement: ad,
		})
	}

	return all, nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
