package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hyperjump/mensetsu/internal/models"
)

// memoryFileMagic identifies files written by MemoryIndex.Save.
const memoryFileMagic = "MVX1"

type memoryEntry struct {
	vec  []float32
	norm float64
	meta models.ChunkMetadata
}

// MemoryIndex is an in-memory vector index using brute-force cosine similarity.
// Suitable for tests and single-node deployments with a few thousand resumes.
type MemoryIndex struct {
	dimensions int
	entries    map[string]*memoryEntry
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", models.ErrConfig)
	}
	return &MemoryIndex{
		dimensions: dimensions,
		entries:    make(map[string]*memoryEntry),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Upsert stores a copy of vec under id, replacing any previous vector and metadata.
func (m *MemoryIndex) Upsert(ctx context.Context, id string, vec []float32, meta models.ChunkMetadata) error {
	if id == "" {
		return fmt.Errorf("%w: empty vector id", models.ErrIndex)
	}
	if len(vec) != m.dimensions {
		return fmt.Errorf("%w: vector dimension mismatch: got %d, expected %d", models.ErrIndex, len(vec), m.dimensions)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrIndex, err)
	}
	cp := make([]float32, m.dimensions)
	copy(cp, vec)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = &memoryEntry{vec: cp, norm: L2Norm(cp), meta: meta}
	return nil
}

// Query returns the top-k entries by cosine similarity that satisfy filter. Ties are broken
// by id so results are deterministic.
func (m *MemoryIndex) Query(ctx context.Context, vec []float32, k int, filter *models.Filter) ([]*models.Match, error) {
	if len(vec) != m.dimensions {
		return nil, fmt.Errorf("%w: query dimension mismatch: got %d, expected %d", models.ErrIndex, len(vec), m.dimensions)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrIndex, err)
	}
	if k <= 0 {
		return []*models.Match{}, nil
	}
	qNorm := L2Norm(vec)

	m.mu.RLock()
	matches := make([]*models.Match, 0, len(m.entries))
	for id, e := range m.entries {
		if !filter.Matches(e.meta) {
			continue
		}
		matches = append(matches, &models.Match{ID: id, Score: Cosine(vec, e.vec, qNorm, e.norm), Metadata: e.meta})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// Delete removes vectors by id.
func (m *MemoryIndex) Delete(ctx context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

// DeleteByPrefix removes every vector whose id starts with parentKey's chunk prefix.
func (m *MemoryIndex) DeleteByPrefix(ctx context.Context, parentKey string) error {
	if parentKey == "" {
		return fmt.Errorf("%w: empty parent key", models.ErrIndex)
	}
	prefix := models.ChunkIDPrefix(parentKey)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.entries {
		if strings.HasPrefix(id, prefix) {
			delete(m.entries, id)
		}
	}
	return nil
}

// Count returns the number of vectors in the index.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	return m.Size(), nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Save persists the index to path. Directory is created if needed. Format: magic (4),
// dimension (4), n (4), then per vector: idLen (4), id, metaLen (4), metadata JSON,
// vector (dimension*4 bytes). The file is written to a temp name and renamed into place.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: create index dir: %w", models.ErrIndex, err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create index file: %w", models.ErrIndex, err)
	}
	if err := m.writeTo(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", models.ErrIndex, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: close index file: %w", models.ErrIndex, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: rename index file: %w", models.ErrIndex, err)
	}
	return nil
}

func (m *MemoryIndex) writeTo(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(memoryFileMagic); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, [2]uint32{uint32(m.dimensions), uint32(len(m.entries))}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := m.entries[id]
		meta, err := json.Marshal(e.meta)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", id, err)
		}
		if err := writeBlock(bw, []byte(id)); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if err := writeBlock(bw, meta); err != nil {
			return fmt.Errorf("write metadata: %w", err)
		}
		if _, err := bw.Write(float32SliceToBytes(e.vec)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return bw.Flush()
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: open index file: %w", models.ErrIndex, err)
	}
	defer f.Close()
	entries, err := m.readFrom(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("%w: load %s: %w", models.ErrIndex, path, err)
	}
	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) readFrom(r io.Reader) (map[string]*memoryEntry, error) {
	magic := make([]byte, len(memoryFileMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != memoryFileMagic {
		return nil, fmt.Errorf("not a vector index file")
	}
	var header [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if int(header[0]) != m.dimensions {
		return nil, fmt.Errorf("dimension mismatch: file has %d, index expects %d", header[0], m.dimensions)
	}
	n := header[1]
	entries := make(map[string]*memoryEntry, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		id, err := readBlock(r)
		if err != nil {
			return nil, fmt.Errorf("read id: %w", err)
		}
		metaJSON, err := readBlock(r)
		if err != nil {
			return nil, fmt.Errorf("read metadata: %w", err)
		}
		var meta models.ChunkMetadata
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector: %w", err)
		}
		vec := bytesToFloat32Slice(buf)
		entries[string(id)] = &memoryEntry{vec: vec, norm: L2Norm(vec), meta: meta}
	}
	return entries, nil
}

// maxBlockLen bounds a single id or metadata block when loading.
const maxBlockLen = 16 << 20

func writeBlock(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBlock(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > maxBlockLen {
		return nil, fmt.Errorf("block of %d bytes exceeds limit", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
