// Package export turns chunk files into the combined, mapping and duplicate
// reports and writes them to a blob store.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/location-crawler/internal/chunk"
	"github.com/JakeFAU/location-crawler/internal/hash/sha256"
	"github.com/JakeFAU/location-crawler/internal/location"
)

// ChunkReader is the read side of a chunk store.
type ChunkReader interface {
	List() ([]chunk.Range, error)
	Load(r chunk.Range) ([]location.Record, error)
}

// BlobStore receives the reports.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	ReadObject(ctx context.Context, path string) ([]byte, error)
}

// RecordSink receives combined records for upsert into a database.
type RecordSink interface {
	UpsertRecords(ctx context.Context, recs []location.Record) (int, error)
}

// Key is the record field mappings group by.
type Key string

// Supported keys.
const (
	KeyName       Key = "name"
	KeyArea       Key = "area"
	KeyIdentifier Key = "identifier"
	KeyType       Key = "type"
	KeyIndex      Key = "index"
)

// ParseKey validates a configured mapping key.
func ParseKey(raw string) (Key, error) {
	k := Key(strings.ToLower(strings.TrimSpace(raw)))
	switch k {
	case KeyName, KeyArea, KeyIdentifier, KeyType, KeyIndex:
		return k, nil
	default:
		return "", fmt.Errorf("unknown mapping key %q", raw)
	}
}

// Of returns rec's value for k.
func (k Key) Of(rec location.Record) string {
	switch k {
	case KeyArea:
		return rec.Area
	case KeyIdentifier:
		return rec.Identifier
	case KeyType:
		return string(rec.Type)
	case KeyIndex:
		return strconv.Itoa(rec.Index)
	default:
		return rec.Name
	}
}

// CombinedName is the object name of a type's combined file.
func CombinedName(typ location.Type) string {
	return string(typ) + "-all.json"
}

// Combine concatenates every chunk file in index order. For zero-padded
// names this is file-name order; it stays correct once indices need more
// than eight digits.
func Combine(src ChunkReader) ([]location.Record, error) {
	ranges, err := src.List()
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	combined := []location.Record{}
	for _, r := range ranges {
		recs, err := src.Load(r)
		if err != nil {
			return nil, fmt.Errorf("load chunk %s: %w", r.FileName(), err)
		}
		combined = append(combined, recs...)
	}
	return combined, nil
}

// Group buckets records by key, keeping input order within each bucket.
func Group(recs []location.Record, key Key) map[string][]location.Record {
	groups := make(map[string][]location.Record)
	for _, rec := range recs {
		k := key.Of(rec)
		groups[k] = append(groups[k], rec)
	}
	return groups
}

// Split separates groups holding exactly one record from the rest.
func Split(groups map[string][]location.Record) (single, multiple map[string][]location.Record) {
	single = make(map[string][]location.Record)
	multiple = make(map[string][]location.Record)
	for k, recs := range groups {
		if len(recs) == 1 {
			single[k] = recs
		} else {
			multiple[k] = recs
		}
	}
	return single, multiple
}

// Duplicates returns names shared by more than one identifier, with the
// identifiers sorted.
func Duplicates(recs []location.Record) map[string][]string {
	byName := make(map[string][]string)
	for _, rec := range recs {
		ids := byName[rec.Name]
		if !slices.Contains(ids, rec.Identifier) {
			byName[rec.Name] = append(ids, rec.Identifier)
		}
	}
	dupes := make(map[string][]string)
	for name, ids := range byName {
		if len(ids) > 1 {
			sort.Strings(ids)
			dupes[name] = ids
		}
	}
	return dupes
}

// Writer serialises reports into a BlobStore.
type Writer struct {
	store  BlobStore
	hasher *sha256.Hasher
	logger *zap.Logger
}

// NewWriter builds a Writer.
func NewWriter(store BlobStore, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, hasher: sha256.New(), logger: logger.Named("export")}
}

// WriteCombined stores recs as the combined file for typ.
func (w *Writer) WriteCombined(ctx context.Context, typ location.Type, recs []location.Record) (string, error) {
	return w.writeJSON(ctx, CombinedName(typ), recs)
}

// ReadCombined loads a combined file previously written for typ.
func (w *Writer) ReadCombined(ctx context.Context, typ location.Type) ([]location.Record, error) {
	data, err := w.store.ReadObject(ctx, CombinedName(typ))
	if err != nil {
		return nil, fmt.Errorf("read combined %s: %w", typ, err)
	}
	var recs []location.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode combined %s: %w", typ, err)
	}
	return recs, nil
}

// WriteMappings stores the grouping of recs by key under <stem>-mappings-by-<key>.json
// and its single/multiple split. Empty splits are not written.
func (w *Writer) WriteMappings(ctx context.Context, stem string, recs []location.Record, key Key) ([]string, error) {
	groups := Group(recs, key)
	uris := make([]string, 0, 3)
	uri, err := w.writeJSON(ctx, fmt.Sprintf("%s-mappings-by-%s.json", stem, key), groups)
	if err != nil {
		return uris, err
	}
	uris = append(uris, uri)

	single, multiple := Split(groups)
	for suffix, part := range map[string]map[string][]location.Record{"single": single, "multiple": multiple} {
		if len(part) == 0 {
			continue
		}
		uri, err := w.writeJSON(ctx, fmt.Sprintf("%s-mappings-%s.json", stem, suffix), part)
		if err != nil {
			return uris, err
		}
		uris = append(uris, uri)
	}
	sort.Strings(uris[1:])
	return uris, nil
}

// WriteDuplicates stores the duplicate-name report as <stem>-dupes.json. It
// returns "" when there are no duplicates.
func (w *Writer) WriteDuplicates(ctx context.Context, stem string, recs []location.Record) (string, error) {
	dupes := Duplicates(recs)
	if len(dupes) == 0 {
		return "", nil
	}
	return w.writeJSON(ctx, stem+"-dupes.json", dupes)
}

func (w *Writer) writeJSON(ctx context.Context, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	data = append(data, '\n')
	uri, err := w.store.PutObject(ctx, name, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	w.logger.Info("report written",
		zap.String("uri", uri),
		zap.Int("bytes", len(data)),
		zap.String("sha256", w.hasher.Hash(data)),
	)
	return uri, nil
}
