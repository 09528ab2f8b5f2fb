// Package corpus persists chunk records as one JSON file per subject.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"scolaire/textutil"
	"scolaire/types"
)

// FileName is the corpus file inside each subject directory.
const FileName = "chunks.json"

var ErrNoCorpusDir = errors.New("corpus directory not found")

type Store struct {
	dir    string
	logger *slog.Logger
}

func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:    dir,
		logger: logger,
	}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Path(subject types.Subject) string {
	return filepath.Join(s.dir, string(subject), FileName)
}

// Load reads the corpus of a subject. A subject without a corpus file has no records.
func (s *Store) Load(subject types.Subject) ([]types.ChunkRecord, error) {
	data, err := os.ReadFile(s.Path(subject))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", subject, err)
	}

	var records []types.ChunkRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode corpus %s: %w", subject, err)
	}
	return records, nil
}

// Merge appends records to the subject's corpus, skipping records already
// present, and rewrites the file atomically. It returns the number of records added.
func (s *Store) Merge(subject types.Subject, records []types.ChunkRecord) (int, error) {
	existing, err := s.Load(subject)
	if err != nil {
		return 0, err
	}

	seen := make(map[types.ChunkRecord]struct{}, len(existing)+len(records))
	for _, r := range existing {
		seen[r] = struct{}{}
	}

	merged := existing
	added := 0
	for _, r := range records {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		merged = append(merged, r)
		added++
	}
	if merged == nil {
		merged = []types.ChunkRecord{}
	}

	if err := writeJSON(s.Path(subject), merged); err != nil {
		return 0, fmt.Errorf("failed to write corpus %s: %w", subject, err)
	}
	s.logger.Info("[CORPUS] saved", "subject", subject, "added", added, "total", len(merged), "path", s.Path(subject))
	return added, nil
}

// SaveAll merges every group into its subject's corpus. A failing subject does
// not stop the others; their errors are joined.
func (s *Store) SaveAll(grouped map[types.Subject][]types.ChunkRecord) error {
	subjects := make([]types.Subject, 0, len(grouped))
	for subject := range grouped {
		subjects = append(subjects, subject)
	}
	slices.Sort(subjects)

	var errs []error
	for _, subject := range subjects {
		if _, err := s.Merge(subject, grouped[subject]); err != nil {
			s.logger.Error("[CORPUS] save failed", "subject", subject, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subjects lists the subjects that have a corpus file, sorted.
func (s *Store) Subjects() ([]types.Subject, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoCorpusDir, s.dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list corpus directory: %w", err)
	}

	var subjects []types.Subject
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.dir, e.Name(), FileName)); err == nil {
			subjects = append(subjects, types.Subject(e.Name()))
		}
	}
	return subjects, nil
}

func (s *Store) LoadAll() (map[types.Subject][]types.ChunkRecord, error) {
	subjects, err := s.Subjects()
	if err != nil {
		return nil, err
	}

	all := make(map[types.Subject][]types.ChunkRecord, len(subjects))
	for _, subject := range subjects {
		records, err := s.Load(subject)
		if err != nil {
			return nil, err
		}
		all[subject] = records
	}
	return all, nil
}

// SaveRaw writes a snapshot of fetched pages to <dir>/<name>.json and returns its path.
func SaveRaw(dir, name string, pages []types.RawPage) (string, error) {
	base := textutil.SanitizeFileName(name)
	if base == "" {
		return "", fmt.Errorf("invalid snapshot name %q", name)
	}
	if pages == nil {
		pages = []types.RawPage{}
	}

	path := filepath.Join(dir, base+".json")
	if err := writeJSON(path, pages); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return path, nil
}

func LoadRaw(path string) ([]types.RawPage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var pages []types.RawPage
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return pages, nil
}

// writeJSON replaces path with the indented JSON of v through a temporary
// file in the same directory.
func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
