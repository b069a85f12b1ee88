package chunk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/JakeFAU/location-crawler/internal/location"
)

// ErrLocked is returned by Lock when another crawl holds the type directory.
var ErrLocked = errors.New("chunk directory is locked")

const lockFileName = ".lock"

// Store owns the chunk files of a single location type.
type Store struct {
	dir    string
	typ    location.Type
	logger *zap.Logger
}

// NewStore returns a store rooted at <root>/<TYPE>, creating the directory.
func NewStore(root string, typ location.Type, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("chunk root directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Join(root, string(typ))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create chunk dir %s: %w", dir, err)
	}
	return &Store{dir: dir, typ: typ, logger: logger}, nil
}

// Dir is the directory holding this type's chunk files.
func (s *Store) Dir() string {
	return s.dir
}

// Type is the location type the store was opened for.
func (s *Store) Type() location.Type {
	return s.typ
}

// Path returns the file backing r.
func (s *Store) Path(r Range) string {
	return filepath.Join(s.dir, r.FileName())
}

// List returns every chunk range on disk ordered by start. Hidden files and
// non-JSON files are ignored; any other JSON file must be a valid chunk name.
func (s *Store) List() ([]Range, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read chunk dir %s: %w", s.dir, err)
	}
	ranges := make([]Range, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		r, err := ParseFileName(name)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	return ranges, nil
}

// Load reads the records stored for r. A missing file yields no records.
func (s *Store) Load(r Range) ([]location.Record, error) {
	path := s.Path(r)
	// #nosec G304 -- path is built from the store directory and a validated range.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read chunk %s: %w", path, err)
	}
	var records []location.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode chunk %s: %w", path, err)
	}
	return records, nil
}

// Ensure creates an empty chunk file for r if none exists yet.
func (s *Store) Ensure(r Range) error {
	path := s.Path(r)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat chunk %s: %w", path, err)
	}
	return s.write(r, []location.Record{})
}

// Append adds rec to the chunk r and durably rewrites the whole file before
// returning. A record for an index already present replaces the old one so
// repeated appends never introduce duplicates.
func (s *Store) Append(r Range, rec location.Record) error {
	if !r.Contains(rec.Index) {
		return fmt.Errorf("record index %d outside chunk %s", rec.Index, r)
	}
	records, err := s.Load(r)
	if err != nil {
		return err
	}
	records = mergeRecord(records, rec)
	if err := s.write(r, records); err != nil {
		return err
	}
	s.logger.Debug("chunk record appended",
		zap.String("chunk", r.FileName()),
		zap.String("identifier", rec.Identifier),
		zap.Int("records", len(records)),
	)
	return nil
}

// mergeRecord inserts rec keeping records ordered by index and unique.
func mergeRecord(records []location.Record, rec location.Record) []location.Record {
	pos := sort.Search(len(records), func(i int) bool { return records[i].Index >= rec.Index })
	if pos < len(records) && records[pos].Index == rec.Index {
		records[pos] = rec
		return records
	}
	records = append(records, location.Record{})
	copy(records[pos+1:], records[pos:])
	records[pos] = rec
	return records
}

func (s *Store) write(r Range, records []location.Record) error {
	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chunk %s: %w", r.FileName(), err)
	}
	if err := writeFileAtomic(s.Path(r), payload); err != nil {
		return fmt.Errorf("write chunk %s: %w", r.FileName(), err)
	}
	return nil
}

// writeFileAtomic replaces path with data via a synced temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// Lock takes an advisory lock on the type directory through a flock on the
// sentinel file. The kernel drops the lock when the holding process exits, so
// a sentinel left behind by a killed run does not block the next one. The
// returned func releases it; the sentinel file itself stays in place.
func (s *Store) Lock() (func() error, error) {
	path := filepath.Join(s.dir, lockFileName)
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	s.logger.Debug("chunk directory locked", zap.String("path", path))
	return func() error {
		if err := lock.Unlock(); err != nil {
			return fmt.Errorf("unlock %s: %w", path, err)
		}
		return nil
	}, nil
}
