package pagestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxPages is the largest page ordinal whose three-digit zero-padded file
// name still sorts lexicographically in fetch order.
const MaxPages = 999

// ManifestFile holds the run metadata next to the stored pages.
const ManifestFile = "run.json"

// StopInProgress marks the manifest of a crawl that has not finished. Pages
// of such a directory are partial.
const StopInProgress = "in-progress"

var (
	// ErrNoManifest is returned by ReadManifest when a directory has no run.json.
	ErrNoManifest = errors.New("pagestore: no manifest")
	// ErrOutsideBase is returned for directories that are not a query
	// directory below the store's base.
	ErrOutsideBase = errors.New("pagestore: directory outside base")
)

var pageName = regexp.MustCompile(`^page-\d{3}\.html$`)

// Manifest describes the crawl run that produced a page directory.
type Manifest struct {
	ID             string    `json:"id"`
	Query          string    `json:"query"`
	Engine         string    `json:"engine"`
	RequestedAt    time.Time `json:"requested_at"`
	RequestedPages int       `json:"requested_pages"`
	FetchedPages   int       `json:"fetched_pages"`
	StopReason     string    `json:"stop_reason,omitempty"`
}

// Complete reports whether the crawl that wrote m ran to its end.
func (m Manifest) Complete() bool {
	return m.StopReason != StopInProgress
}

// Store keeps captured result pages, one directory per query, below a base path.
type Store struct {
	fs   afero.Fs
	base string
}

// New creates a Store on fsys rooted at base. A nil fsys uses the OS filesystem.
func New(fsys afero.Fs, base string) *Store {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if base == "" {
		base = "."
	}
	return &Store{fs: fsys, base: base}
}

var separators = strings.NewReplacer("/", "_", `\`, "_", "\x00", "_")

// DirName maps a query to its directory name: lower-cased with German casing
// rules, whitespace runs collapsed to a single underscore. The result is
// always one path element; separators become underscores and the names
// "", "." and ".." get an underscore prefix.
func DirName(query string) string {
	lower := cases.Lower(language.German).String(query)
	name := separators.Replace(strings.Join(strings.Fields(lower), "_"))
	switch name {
	case "", ".", "..":
		return "_" + name
	}
	return name
}

// PageName returns the file name of the n-th (1-based) page.
func PageName(n int) string {
	return fmt.Sprintf("page-%03d.html", n)
}

// QueryDir returns the directory holding the pages of query.
func (s *Store) QueryDir(query string) string {
	return filepath.Join(s.base, DirName(query))
}

// Prepare creates dir including parents.
func (s *Store) Prepare(dir string) error {
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("pagestore: create %s: %w", dir, err)
	}
	return nil
}

// Owns reports whether dir lies strictly below the store's base.
func (s *Store) Owns(dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(s.base), filepath.Clean(dir))
	if err != nil || rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Reset removes dir and everything in it. Only directories below the base
// can be reset.
func (s *Store) Reset(dir string) error {
	if !s.Owns(dir) {
		return fmt.Errorf("%w: %s", ErrOutsideBase, dir)
	}
	if err := s.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("pagestore: reset %s: %w", dir, err)
	}
	return nil
}

// WritePage stores body verbatim as the n-th page of dir and returns its path.
func (s *Store) WritePage(dir string, n int, body []byte) (string, error) {
	if n < 1 || n > MaxPages {
		return "", fmt.Errorf("pagestore: page %d out of range 1..%d", n, MaxPages)
	}
	path := filepath.Join(dir, PageName(n))
	if err := afero.WriteFile(s.fs, path, body, 0o644); err != nil {
		return "", fmt.Errorf("pagestore: write %s: %w", path, err)
	}
	return path, nil
}

// Pages lists the page files of dir sorted by name, which is fetch order.
// A missing directory has no pages.
func (s *Store) Pages(dir string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("pagestore: list %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !pageName.MatchString(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

// ReadPage returns the stored bytes of the named page in dir.
func (s *Store) ReadPage(dir, name string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("pagestore: read %s: %w", name, err)
	}
	return data, nil
}

// WriteManifest stores m as dir/run.json.
func (s *Store) WriteManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("pagestore: encode manifest: %w", err)
	}
	if err := afero.WriteFile(s.fs, filepath.Join(dir, ManifestFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("pagestore: write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads dir/run.json.
func (s *Store) ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := afero.ReadFile(s.fs, filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, ErrNoManifest
		}
		return m, fmt.Errorf("pagestore: read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("pagestore: decode manifest: %w", err)
	}
	return m, nil
}

// CapturedAt returns when the pages of dir were requested. Directories
// without a manifest fall back to their modification time.
func (s *Store) CapturedAt(dir string) (time.Time, error) {
	m, err := s.ReadManifest(dir)
	if err == nil && !m.RequestedAt.IsZero() {
		return m.RequestedAt, nil
	}
	info, statErr := s.fs.Stat(dir)
	if statErr != nil {
		if errors.Is(statErr, fs.ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("pagestore: stat %s: %w", dir, statErr)
	}
	return info.ModTime(), nil
}

// Fresh reports whether dir was captured less than maxAge before now.
// A missing directory is never fresh.
func (s *Store) Fresh(dir string, maxAge time.Duration, now time.Time) (bool, error) {
	captured, err := s.CapturedAt(dir)
	if err != nil {
		return false, err
	}
	if captured.IsZero() {
		return false, nil
	}
	return now.Sub(captured) < maxAge, nil
}

// Create opens a file below dir for writing, e.g. a report next to the pages.
func (s *Store) Create(path string) (afero.File, error) {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("pagestore: create %s: %w", filepath.Dir(path), err)
	}
	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pagestore: create %s: %w", path, err)
	}
	return f, nil
}
